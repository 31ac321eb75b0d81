package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	g := Default()

	assert.False(t, g.IsVisible)
	assert.False(t, g.IsMinimized)
	assert.Equal(t, Settings{
		Symbol: "BTCUSD", Interval: "D", Theme: ThemeDark, Style: "1",
		Width: 600, Height: 400, X: 100, Y: 100, Opacity: 1,
	}, g.Settings)
	require.NoError(t, g.Validate())
}

func TestSettingsApplyLeavesAbsentFields(t *testing.T) {
	base := DefaultSettings()
	got := base.Apply(SettingsPatch{Opacity: Ptr(0.5)})

	want := base
	want.Opacity = 0.5
	assert.Equal(t, want, got)
}

func TestGlobalStateApplyMergesSettingsKeyByKey(t *testing.T) {
	base := Default()
	got := base.Apply(Patch{
		IsVisible: Ptr(true),
		Settings:  &SettingsPatch{X: Ptr(10), Y: Ptr(20)},
	})

	assert.True(t, got.IsVisible)
	assert.False(t, got.IsMinimized)
	assert.Equal(t, 10, got.Settings.X)
	assert.Equal(t, 20, got.Settings.Y)
	assert.Equal(t, "BTCUSD", got.Settings.Symbol)
	assert.Equal(t, 600, got.Settings.Width)
}

func TestPatchJSONPartial(t *testing.T) {
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(`{"settings":{"opacity":0.25}}`), &p))

	require.NotNil(t, p.Settings)
	assert.Nil(t, p.IsVisible)
	assert.Nil(t, p.Settings.Symbol)
	require.NotNil(t, p.Settings.Opacity)
	assert.Equal(t, 0.25, *p.Settings.Opacity)
}

func TestSnapshotRoundTrip(t *testing.T) {
	g := Default()
	g.IsMinimized = true
	g.Settings.Symbol = "AAPL"

	assert.Equal(t, g, GlobalState{}.Apply(Snapshot(g)))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults", func(*Settings) {}, false},
		{"narrow", func(s *Settings) { s.Width = 299 }, true},
		{"short", func(s *Settings) { s.Height = 199 }, true},
		{"negative x", func(s *Settings) { s.X = -1 }, true},
		{"opacity above one", func(s *Settings) { s.Opacity = 1.1 }, true},
		{"opacity zero", func(s *Settings) { s.Opacity = 0 }, false},
		{"unknown theme", func(s *Settings) { s.Theme = "blue" }, true},
		{"unknown interval", func(s *Settings) { s.Interval = "2" }, true},
		{"weekly", func(s *Settings) { s.Interval = "W" }, false},
		{"empty symbol", func(s *Settings) { s.Symbol = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChartChanged(t *testing.T) {
	base := DefaultSettings()

	moved := base
	moved.X, moved.Width, moved.Opacity = 5, 900, 0.3
	assert.False(t, base.ChartChanged(moved))

	restyled := base
	restyled.Style = "3"
	assert.True(t, base.ChartChanged(restyled))
}
