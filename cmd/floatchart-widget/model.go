package main

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"go.uber.org/zap"

	"github.com/brendandebeasi/floatchart/pkg/hub"
	"github.com/brendandebeasi/floatchart/pkg/interaction"
	"github.com/brendandebeasi/floatchart/pkg/widget"
)

var errHubGone = errors.New("hub connection closed")

type (
	hubFrameMsg   hub.Frame
	hubGoneMsg    struct{}
	redrawMsg     struct{}
	subscribedMsg struct{ err error }
)

// Clickable regions of the overlay.
const (
	zoneHeader   = "header"
	zoneResize   = "resize"
	zoneMinimize = "minimize"
	zoneClose    = "close"
	zoneRetry    = "retry"
)

type model struct {
	ctx     context.Context
	widget  *widget.Instance
	surface *termSurface
	client  *hub.Client // nil when running without a hub
	tab     hub.Tab
	zones   *zone.Manager
	termBg  string
	log     *zap.Logger

	width  int
	height int
	err    error
}

func (m model) Init() tea.Cmd {
	if m.client == nil {
		return nil
	}
	return tea.Batch(m.subscribe, m.waitForHub)
}

// subscribe runs inside the program so the initial sync-state can be
// delivered with Send.
func (m model) subscribe() tea.Msg {
	return subscribedMsg{err: m.client.Subscribe(m.ctx, hub.RoleWidget, m.tab)}
}

func (m model) waitForHub() tea.Msg {
	<-m.client.Done()
	return hubGoneMsg{}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.surface.setTerminalSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)

	case hubFrameMsg:
		m.handleFrame(hub.Frame(msg))

	case subscribedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.log.Info("subscribed", zap.String("tab", m.tab.ID))

	case hubGoneMsg:
		m.err = errHubGone
		return m, tea.Quit

	case redrawMsg:
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "t":
		m.report("toggle", m.widget.Toggle(m.ctx))
		return m, nil
	case "m":
		m.report("minimize", m.widget.ToggleMinimize(m.ctx))
		return m, nil
	case "r":
		if m.surface.snapshot().Phase == chartError {
			m.widget.Loader().ManualRetry()
		}
		return m, nil
	}
	_, err := m.widget.HandleKey(m.ctx, keyEvent(msg))
	m.report("key", err)
	return m, nil
}

func (m model) handleMouse(msg tea.MouseMsg) {
	p := interaction.Pointer{ID: 1, X: msg.X * cellWidth, Y: msg.Y * cellHeight}
	bus := m.widget.Bus()

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return
		}
		switch {
		case m.zones.Get(zoneClose).InBounds(msg):
			m.report("toggle", m.widget.Toggle(m.ctx))
		case m.zones.Get(zoneMinimize).InBounds(msg):
			m.report("minimize", m.widget.ToggleMinimize(m.ctx))
		case m.zones.Get(zoneRetry).InBounds(msg):
			m.widget.Loader().ManualRetry()
		case m.zones.Get(zoneResize).InBounds(msg):
			bus.Dispatch(interaction.Event{Kind: interaction.PointerDown, Pointer: p, Target: interaction.HandleResize})
		case m.zones.Get(zoneHeader).InBounds(msg):
			bus.Dispatch(interaction.Event{Kind: interaction.PointerDown, Pointer: p, Target: interaction.HandleHeader})
		}
	case tea.MouseActionMotion:
		bus.Dispatch(interaction.Event{Kind: interaction.PointerMove, Pointer: p})
	case tea.MouseActionRelease:
		bus.Dispatch(interaction.Event{Kind: interaction.PointerUp, Pointer: p})
	}
}

// handleFrame applies a hub message and answers it when the hub asked.
func (m model) handleFrame(f hub.Frame) {
	res, err := m.widget.HandleMessage(m.ctx, f.Msg)
	if f.ID == "" {
		if err != nil {
			m.log.Debug("hub message ignored", zap.String("type", string(f.Msg.Type())), zap.Error(err))
		}
		return
	}
	if m.client != nil {
		if rerr := m.client.Respond(m.ctx, f.ID, res, err); rerr != nil {
			m.log.Warn("reply failed", zap.String("id", f.ID), zap.Error(rerr))
		}
	}
}

func (m model) report(action string, err error) {
	if err != nil {
		m.log.Warn("hub update failed", zap.String("action", action), zap.Error(err))
	}
}

// keyEvent converts bubbletea's key names ("ctrl+f", "alt+F") into a chord
// event. An upper-case letter implies shift.
func keyEvent(msg tea.KeyMsg) widget.KeyEvent {
	s := msg.String()
	var ev widget.KeyEvent
	if s == "+" {
		ev.Key = s
		return ev
	}
	parts := strings.Split(s, "+")
	for _, p := range parts[:len(parts)-1] {
		switch p {
		case "ctrl":
			ev.Ctrl = true
		case "alt":
			ev.Alt = true
		case "shift":
			ev.Shift = true
		}
	}
	key := parts[len(parts)-1]
	if r := []rune(key); len(r) == 1 && r[0] >= 'A' && r[0] <= 'Z' {
		ev.Shift = true
		key = strings.ToLower(key)
	}
	ev.Key = key
	return ev
}
