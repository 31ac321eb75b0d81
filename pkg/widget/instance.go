// Package widget is one chart overlay instance: visibility, minimized state,
// settings and rectangle, reconciled against a render surface and kept in
// step with the hub.
package widget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brendandebeasi/floatchart/pkg/chartload"
	"github.com/brendandebeasi/floatchart/pkg/hub"
	"github.com/brendandebeasi/floatchart/pkg/interaction"
	"github.com/brendandebeasi/floatchart/pkg/state"
	"github.com/brendandebeasi/floatchart/pkg/timer"
)

// Mode is the visibility state.
type Mode int

const (
	Hidden Mode = iota
	Visible
	Minimized
)

func (m Mode) String() string {
	switch m {
	case Visible:
		return "visible"
	case Minimized:
		return "minimized"
	}
	return "hidden"
}

// RenderSurface is the overlay the instance draws into. It hosts the chart
// frame and is the surface gestures move and resize.
type RenderSurface interface {
	interaction.Surface
	chartload.Frame

	// Build constructs the overlay. Called once, before anything is shown.
	Build(s state.Settings)
	SetVisible(bool)
	SetMinimized(bool)
	SetOpacity(float64)
}

// HubLink carries local changes to the hub.
type HubLink interface {
	UpdateGlobalState(ctx context.Context, p state.Patch) error
}

// DefaultToggleKey toggles the overlay.
const DefaultToggleKey = "ctrl+shift+f"

// pushTimeout bounds a single update sent to the hub.
const pushTimeout = 5 * time.Second

type Options struct {
	Chart        chartload.Config
	Scheduler    timer.Scheduler
	Logger       *zap.Logger
	ToggleKey    string // default DefaultToggleKey
	ResizeMargin int    // default interaction.DefaultMargin
}

// Instance is one widget. All methods are safe for concurrent use.
type Instance struct {
	surface RenderSurface
	link    HubLink
	log     *zap.Logger
	loader  *chartload.Loader
	bus     *interaction.Bus
	engine  *interaction.Engine
	chord   Chord

	mu        sync.Mutex
	visible   bool
	minimized bool
	built     bool
	settings  state.Settings
}

// New returns a hidden instance with default settings. It stays hidden until
// the hub's sync-state or a local toggle says otherwise.
func New(surface RenderSurface, link HubLink, opts Options) (*Instance, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	key := opts.ToggleKey
	if key == "" {
		key = DefaultToggleKey
	}
	chord, err := ParseChord(key)
	if err != nil {
		return nil, err
	}
	margin := opts.ResizeMargin
	if margin == 0 {
		margin = interaction.DefaultMargin
	}
	cfg := opts.Chart
	if cfg == (chartload.Config{}) {
		cfg = chartload.DefaultConfig()
	}

	w := &Instance{
		surface:  surface,
		link:     link,
		log:      log,
		loader:   chartload.New(surface, opts.Scheduler, cfg, log),
		bus:      interaction.NewBus(),
		chord:    chord,
		settings: state.DefaultSettings(),
	}
	w.engine = interaction.NewEngine(w.bus, surface, margin, w.commitRect)
	return w, nil
}

// Bus receives the host's pointer events.
func (w *Instance) Bus() *interaction.Bus { return w.bus }

// Loader is the chart load sequence. Hosts report Ready and Fail to it and
// wire the retry affordance to ManualRetry.
func (w *Instance) Loader() *chartload.Loader { return w.loader }

// Busy reports whether a drag or resize is in progress.
func (w *Instance) Busy() bool { return w.engine.Busy() }

func (w *Instance) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.modeLocked()
}

func (w *Instance) modeLocked() Mode {
	switch {
	case !w.visible:
		return Hidden
	case w.minimized:
		return Minimized
	}
	return Visible
}

// State returns the instance's view of the global state.
func (w *Instance) State() state.GlobalState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return state.GlobalState{IsVisible: w.visible, IsMinimized: w.minimized, Settings: w.settings}
}

// Status answers get-status.
func (w *Instance) Status() hub.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return hub.Status{IsVisible: w.visible, Settings: w.settings}
}

func rectOf(s state.Settings) interaction.Rect {
	return interaction.Rect{X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}
}

// reconcileLocked brings the surface and the chart in line with the fields.
// chartChanged forces a fresh chart when one has been started before.
func (w *Instance) reconcileLocked(chartChanged bool) {
	if w.visible && !w.built {
		w.surface.Build(w.settings)
		w.built = true
	}
	if w.built {
		w.surface.SetOpacity(w.settings.Opacity)
		// A gesture in flight owns the rectangle until it commits.
		if !w.engine.Busy() {
			w.surface.SetRect(rectOf(w.settings))
		}
		w.surface.SetMinimized(w.minimized)
		w.surface.SetVisible(w.visible)
	}

	phase := w.loader.Phase()
	switch {
	case chartChanged && phase != chartload.Idle:
		w.loader.Reload(w.settings)
	case w.visible && phase == chartload.Idle:
		w.loader.Load(w.settings)
	}
}

// Toggle flips visibility locally and reports it to the hub.
func (w *Instance) Toggle(ctx context.Context) error {
	w.mu.Lock()
	w.visible = !w.visible
	visible := w.visible
	w.reconcileLocked(false)
	w.mu.Unlock()

	w.log.Debug("toggled", zap.Bool("visible", visible))
	return w.push(ctx, state.Patch{IsVisible: state.Ptr(visible)})
}

// ToggleMinimize collapses or restores a visible overlay and reports it to
// the hub. Hidden instances ignore it.
func (w *Instance) ToggleMinimize(ctx context.Context) error {
	w.mu.Lock()
	if !w.visible {
		w.mu.Unlock()
		return nil
	}
	w.minimized = !w.minimized
	minimized := w.minimized
	w.reconcileLocked(false)
	w.mu.Unlock()

	return w.push(ctx, state.Patch{IsMinimized: state.Ptr(minimized)})
}

// SetVisible applies a toggle notification from the hub. Only visibility
// changes.
func (w *Instance) SetVisible(visible bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.visible == visible && (w.built || !visible) {
		return
	}
	w.visible = visible
	w.reconcileLocked(false)
}

// SyncState overwrites the instance with g. Applying the same state twice
// has no further effect; the chart reloads only when a chart setting changed.
func (w *Instance) SyncState(g state.GlobalState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := w.settings.ChartChanged(g.Settings)
	w.visible = g.IsVisible
	w.minimized = g.IsMinimized
	w.settings = g.Settings
	w.reconcileLocked(changed)
}

// ApplySettings merges p, applies opacity and geometry, and rebuilds the
// chart if one was started.
func (w *Instance) ApplySettings(p state.SettingsPatch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.settings = w.settings.Apply(p)
	w.reconcileLocked(true)
}

// HandleKey toggles on the configured chord. Returns whether the key was
// consumed.
func (w *Instance) HandleKey(ctx context.Context, ev KeyEvent) (bool, error) {
	if !w.chord.Matches(ev) {
		return false, nil
	}
	return true, w.Toggle(ctx)
}

// HandleMessage applies one hub message and returns the reply payload.
func (w *Instance) HandleMessage(ctx context.Context, msg hub.Message) (any, error) {
	switch m := msg.(type) {
	case hub.SyncState:
		w.SyncState(m.State)
		return nil, nil
	case hub.Toggle:
		w.SetVisible(m.IsVisible)
		return nil, nil
	case hub.UpdateSettings:
		w.ApplySettings(m.Settings)
		return nil, nil
	case hub.GetStatus:
		return w.Status(), nil
	case hub.Ping:
		return hub.Pong{}, nil
	}
	return nil, fmt.Errorf("%w: %q", hub.ErrUnknownMessage, msg.Type())
}

// commitRect stores the final rectangle of a gesture and reports it.
func (w *Instance) commitRect(mode interaction.Mode, r interaction.Rect) {
	var p state.SettingsPatch
	w.mu.Lock()
	switch mode {
	case interaction.ModeMove:
		w.settings.X, w.settings.Y = r.X, r.Y
		p = state.SettingsPatch{X: state.Ptr(r.X), Y: state.Ptr(r.Y)}
	case interaction.ModeResize:
		w.settings.Width, w.settings.Height = r.Width, r.Height
		p = state.SettingsPatch{Width: state.Ptr(r.Width), Height: state.Ptr(r.Height)}
	}
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := w.push(ctx, state.Patch{Settings: &p}); err != nil {
		w.log.Debug("gesture commit not delivered", zap.String("mode", mode.String()), zap.Error(err))
	}
}

func (w *Instance) push(ctx context.Context, p state.Patch) error {
	if w.link == nil {
		return nil
	}
	if err := w.link.UpdateGlobalState(ctx, p); err != nil {
		return fmt.Errorf("update hub: %w", err)
	}
	return nil
}

// Close drops any gesture in progress without reporting it, detaches
// listeners and stops the chart timers.
func (w *Instance) Close() {
	w.engine.Close()
	w.loader.Stop()
}
