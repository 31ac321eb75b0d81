package hub

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brendandebeasi/floatchart/pkg/state"
)

// MessageType identifies the type of message
type MessageType string

const (
	MsgGetGlobalState           MessageType = "get-global-state"            // Instance -> Hub
	MsgUpdateGlobalState        MessageType = "update-global-state"         // Instance -> Hub
	MsgToggleFromCommandSurface MessageType = "toggle-from-command-surface" // CommandSurface -> Hub
	MsgUpdateSettings           MessageType = "update-settings"             // CommandSurface -> Hub, Hub -> Instance
	MsgResetSettings            MessageType = "reset-settings"              // CommandSurface -> Hub
	MsgCommand                  MessageType = "command"                     // keyboard command, e.g. toggle-widget
	MsgSyncState                MessageType = "sync-state"                  // Hub -> Instance
	MsgToggle                   MessageType = "toggle"                      // Hub -> Instance
	MsgGetStatus                MessageType = "get-status"                  // CommandSurface -> Instance (via Hub)
	MsgSubscribe                MessageType = "subscribe"
	MsgUnsubscribe              MessageType = "unsubscribe"
	MsgTabOpened                MessageType = "tab-opened" // Background -> Hub
	MsgTabClosed                MessageType = "tab-closed" // Background -> Hub
	MsgInject                   MessageType = "inject"     // Hub -> Background
	MsgReply                    MessageType = "reply"
	MsgPing                     MessageType = "ping"
	MsgPong                     MessageType = "pong"
)

// ErrUnknownMessage is returned for an envelope whose type has no variant.
var ErrUnknownMessage = errors.New("unknown message type")

// Message is one variant of the hub protocol. The set is closed.
type Message interface {
	Type() MessageType
	isMessage()
}

type GetGlobalState struct{}

type UpdateGlobalState struct {
	Patch state.Patch `json:"state"`
}

type ToggleFromCommandSurface struct{}

// UpdateSettings carries a partial settings record towards the hub and the
// full merged settings when broadcast by it.
type UpdateSettings struct {
	Settings state.SettingsPatch `json:"settings"`
}

type ResetSettings struct{}

// Command is a named keyboard command.
type Command struct {
	Name string `json:"name"`
}

// CommandToggleWidget is the only keyboard command the hub knows.
const CommandToggleWidget = "toggle-widget"

type SyncState struct {
	State state.GlobalState `json:"state"`
}

type Toggle struct {
	IsVisible bool `json:"isVisible"`
}

type GetStatus struct {
	TabID string `json:"tabId,omitempty"` // empty asks any live instance
}

// Status is the result of get-status.
type Status struct {
	IsVisible bool           `json:"isVisible"`
	Settings  state.Settings `json:"settings"`
}

// Role distinguishes widget instances from the extension background peer.
type Role string

const (
	RoleWidget     Role = "widget"
	RoleBackground Role = "background"
)

type Subscribe struct {
	Role Role `json:"role,omitempty"`
	Tab  Tab  `json:"tab"`
}

type Unsubscribe struct{}

type TabOpened struct {
	Tab Tab `json:"tab"`
}

type TabClosed struct {
	TabID string `json:"tabId"`
}

type Inject struct {
	Tab Tab `json:"tab"`
}

// Reply answers the request with the same envelope id.
type Reply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type Ping struct{}

type Pong struct{}

func (GetGlobalState) Type() MessageType           { return MsgGetGlobalState }
func (UpdateGlobalState) Type() MessageType        { return MsgUpdateGlobalState }
func (ToggleFromCommandSurface) Type() MessageType { return MsgToggleFromCommandSurface }
func (UpdateSettings) Type() MessageType           { return MsgUpdateSettings }
func (ResetSettings) Type() MessageType            { return MsgResetSettings }
func (Command) Type() MessageType                  { return MsgCommand }
func (SyncState) Type() MessageType                { return MsgSyncState }
func (Toggle) Type() MessageType                   { return MsgToggle }
func (GetStatus) Type() MessageType                { return MsgGetStatus }
func (Subscribe) Type() MessageType                { return MsgSubscribe }
func (Unsubscribe) Type() MessageType              { return MsgUnsubscribe }
func (TabOpened) Type() MessageType                { return MsgTabOpened }
func (TabClosed) Type() MessageType                { return MsgTabClosed }
func (Inject) Type() MessageType                   { return MsgInject }
func (Reply) Type() MessageType                    { return MsgReply }
func (Ping) Type() MessageType                     { return MsgPing }
func (Pong) Type() MessageType                     { return MsgPong }

func (GetGlobalState) isMessage()           {}
func (UpdateGlobalState) isMessage()        {}
func (ToggleFromCommandSurface) isMessage() {}
func (UpdateSettings) isMessage()           {}
func (ResetSettings) isMessage()            {}
func (Command) isMessage()                  {}
func (SyncState) isMessage()                {}
func (Toggle) isMessage()                   {}
func (GetStatus) isMessage()                {}
func (Subscribe) isMessage()                {}
func (Unsubscribe) isMessage()              {}
func (TabOpened) isMessage()                {}
func (TabClosed) isMessage()                {}
func (Inject) isMessage()                   {}
func (Reply) isMessage()                    {}
func (Ping) isMessage()                     {}
func (Pong) isMessage()                     {}

// Envelope is the wire form: one JSON object per line.
type Envelope struct {
	Type     MessageType     `json:"type"`
	ID       string          `json:"id,omitempty"`
	ClientID string          `json:"client_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Frame is a decoded envelope.
type Frame struct {
	ID       string
	ClientID string
	Msg      Message
}

// Encode renders f as a single JSON line without the trailing newline.
func Encode(f Frame) ([]byte, error) {
	if f.Msg == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	env := Envelope{Type: f.Msg.Type(), ID: f.ID, ClientID: f.ClientID}
	payload, err := json.Marshal(f.Msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", env.Type, err)
	}
	if string(payload) != "{}" {
		env.Payload = payload
	}
	return json.Marshal(env)
}

// Decode parses one envelope into its message variant.
func Decode(data []byte) (Frame, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("decode envelope: %w", err)
	}
	msg, err := newMessage(env.Type)
	if err != nil {
		return Frame{}, err
	}
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return Frame{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	return Frame{ID: env.ID, ClientID: env.ClientID, Msg: deref(msg)}, nil
}

func newMessage(t MessageType) (any, error) {
	switch t {
	case MsgGetGlobalState:
		return &GetGlobalState{}, nil
	case MsgUpdateGlobalState:
		return &UpdateGlobalState{}, nil
	case MsgToggleFromCommandSurface:
		return &ToggleFromCommandSurface{}, nil
	case MsgUpdateSettings:
		return &UpdateSettings{}, nil
	case MsgResetSettings:
		return &ResetSettings{}, nil
	case MsgCommand:
		return &Command{}, nil
	case MsgSyncState:
		return &SyncState{}, nil
	case MsgToggle:
		return &Toggle{}, nil
	case MsgGetStatus:
		return &GetStatus{}, nil
	case MsgSubscribe:
		return &Subscribe{}, nil
	case MsgUnsubscribe:
		return &Unsubscribe{}, nil
	case MsgTabOpened:
		return &TabOpened{}, nil
	case MsgTabClosed:
		return &TabClosed{}, nil
	case MsgInject:
		return &Inject{}, nil
	case MsgReply:
		return &Reply{}, nil
	case MsgPing:
		return &Ping{}, nil
	case MsgPong:
		return &Pong{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, t)
}

// deref turns the decode target back into a value variant so callers can
// type-switch on value types only.
func deref(m any) Message {
	switch v := m.(type) {
	case *GetGlobalState:
		return *v
	case *UpdateGlobalState:
		return *v
	case *ToggleFromCommandSurface:
		return *v
	case *UpdateSettings:
		return *v
	case *ResetSettings:
		return *v
	case *Command:
		return *v
	case *SyncState:
		return *v
	case *Toggle:
		return *v
	case *GetStatus:
		return *v
	case *Subscribe:
		return *v
	case *Unsubscribe:
		return *v
	case *TabOpened:
		return *v
	case *TabClosed:
		return *v
	case *Inject:
		return *v
	case *Reply:
		return *v
	case *Ping:
		return *v
	case *Pong:
		return *v
	}
	return nil
}

// NewReply builds a reply carrying result, or err when non-nil.
func NewReply(result any, err error) Reply {
	if err != nil {
		return Reply{Error: err.Error()}
	}
	if result == nil {
		return Reply{}
	}
	raw, mErr := json.Marshal(result)
	if mErr != nil {
		return Reply{Error: mErr.Error()}
	}
	return Reply{Result: raw}
}

// ErrRemote is wrapped around errors reported by the other side of a link.
var ErrRemote = errors.New("remote error")

// Decode unmarshals the reply result into v, or returns the remote error.
func (r Reply) Decode(v any) error {
	if r.Error != "" {
		return fmt.Errorf("%w: %s", ErrRemote, r.Error)
	}
	if v == nil || len(r.Result) == 0 {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}
