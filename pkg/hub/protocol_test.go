package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brendandebeasi/floatchart/pkg/state"
)

func TestDecodePartialUpdate(t *testing.T) {
	line := []byte(`{"type":"update-global-state","id":"r1","client_id":"tab-3","payload":{"state":{"settings":{"x":40}}}}`)

	f, err := Decode(line)
	require.NoError(t, err)
	assert.Equal(t, "r1", f.ID)
	assert.Equal(t, "tab-3", f.ClientID)

	m, ok := f.Msg.(UpdateGlobalState)
	require.True(t, ok, "got %T", f.Msg)
	assert.Nil(t, m.Patch.IsVisible)
	require.NotNil(t, m.Patch.Settings)
	assert.Equal(t, 40, *m.Patch.Settings.X)
	assert.Nil(t, m.Patch.Settings.Y)
}

func TestDecodeWithoutPayload(t *testing.T) {
	f, err := Decode([]byte(`{"type":"toggle-from-command-surface"}`))
	require.NoError(t, err)
	assert.Equal(t, ToggleFromCommandSurface{}, f.Msg)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"open-popup"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownMessage)
}

func TestEncodeToggleKeepsFalse(t *testing.T) {
	data, err := Encode(Frame{Msg: Toggle{IsVisible: false}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"toggle","payload":{"isVisible":false}}`, string(data))
}

func TestEncodeOmitsEmptyPayload(t *testing.T) {
	data, err := Encode(Frame{ID: "x", Msg: GetGlobalState{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"get-global-state","id":"x"}`, string(data))
}

func TestSyncStateWireShape(t *testing.T) {
	data, err := Encode(Frame{Msg: SyncState{State: state.Default()}})
	require.NoError(t, err)

	var env struct {
		Type    string `json:"type"`
		Payload struct {
			State map[string]any `json:"state"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "sync-state", env.Type)
	assert.Equal(t, false, env.Payload.State["isVisible"])
	assert.Contains(t, env.Payload.State, "settings")
}

func TestReplyDecode(t *testing.T) {
	r := NewReply(Toggle{IsVisible: true}, nil)
	var got Toggle
	require.NoError(t, r.Decode(&got))
	assert.True(t, got.IsVisible)

	r = NewReply(nil, ErrNotConnected)
	err := r.Decode(&got)
	assert.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "not connected")
}
