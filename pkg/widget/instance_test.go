package widget

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brendandebeasi/floatchart/pkg/chartload"
	"github.com/brendandebeasi/floatchart/pkg/hub"
	"github.com/brendandebeasi/floatchart/pkg/interaction"
	"github.com/brendandebeasi/floatchart/pkg/state"
	"github.com/brendandebeasi/floatchart/pkg/store"
	"github.com/brendandebeasi/floatchart/pkg/timer"
)

type fakeSurface struct {
	mu        sync.Mutex
	rect      interaction.Rect
	builds    int
	mounts    []uint64
	visible   bool
	minimized bool
	opacity   float64
	errorText string
}

func (s *fakeSurface) Rect() interaction.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rect
}

func (s *fakeSurface) Viewport() interaction.Viewport {
	return interaction.Viewport{Width: 1920, Height: 1080}
}

func (s *fakeSurface) SetRect(r interaction.Rect) {
	s.mu.Lock()
	s.rect = r
	s.mu.Unlock()
}

func (s *fakeSurface) CapturePointer(int)            {}
func (s *fakeSurface) ReleasePointer(int)            {}
func (s *fakeSurface) BeginGesture(interaction.Mode) {}
func (s *fakeSurface) EndGesture(interaction.Mode)   {}
func (s *fakeSurface) ShowLoading()                  {}
func (s *fakeSurface) ShowLoaded()                   {}

func (s *fakeSurface) Mount(attempt uint64, markup string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts = append(s.mounts, attempt)
	return nil
}

func (s *fakeSurface) ShowError(msg string) {
	s.mu.Lock()
	s.errorText = msg
	s.mu.Unlock()
}

func (s *fakeSurface) Build(state.Settings) {
	s.mu.Lock()
	s.builds++
	s.mu.Unlock()
}

func (s *fakeSurface) SetVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	s.mu.Unlock()
}

func (s *fakeSurface) SetMinimized(v bool) {
	s.mu.Lock()
	s.minimized = v
	s.mu.Unlock()
}

func (s *fakeSurface) SetOpacity(v float64) {
	s.mu.Lock()
	s.opacity = v
	s.mu.Unlock()
}

func (s *fakeSurface) mountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mounts)
}

type fakeLink struct {
	mu      sync.Mutex
	patches []state.Patch
}

func (l *fakeLink) UpdateGlobalState(ctx context.Context, p state.Patch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patches = append(l.patches, p)
	return nil
}

func (l *fakeLink) sent() []state.Patch {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]state.Patch(nil), l.patches...)
}

func newTestInstance(t *testing.T, link HubLink) (*Instance, *fakeSurface) {
	t.Helper()
	s := &fakeSurface{}
	w, err := New(s, link, Options{Scheduler: timer.NewManual()})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w, s
}

func visibleState() state.GlobalState {
	g := state.Default()
	g.IsVisible = true
	return g
}

func TestStartsHidden(t *testing.T) {
	w, s := newTestInstance(t, nil)

	assert.Equal(t, Hidden, w.Mode())
	assert.Equal(t, state.DefaultSettings(), w.State().Settings)
	assert.Zero(t, s.builds)
	assert.Equal(t, chartload.Idle, w.Loader().Phase())
}

func TestSyncStateBuildsAndLoadsOnce(t *testing.T) {
	w, s := newTestInstance(t, nil)
	g := visibleState()

	w.SyncState(g)
	w.SyncState(g)

	assert.Equal(t, Visible, w.Mode())
	assert.Equal(t, 1, s.builds)
	assert.Equal(t, 1, s.mountCount(), "same state twice must not reload the chart")
	assert.Equal(t, chartload.Loading, w.Loader().Phase())
	assert.Equal(t, interaction.Rect{X: 100, Y: 100, Width: 600, Height: 400}, s.Rect())
	assert.True(t, s.visible)
	assert.Equal(t, g, w.State())
}

func TestSyncStateReloadsOnlyForChartSettings(t *testing.T) {
	w, s := newTestInstance(t, nil)
	g := visibleState()
	w.SyncState(g)
	w.Loader().Ready(w.Loader().Attempt())

	g.Settings.X = 300
	g.Settings.Opacity = 0.8
	w.SyncState(g)
	assert.Equal(t, 1, s.mountCount())
	assert.Equal(t, 300, s.Rect().X)
	assert.Equal(t, 0.8, s.opacity)
	assert.Equal(t, chartload.Loaded, w.Loader().Phase())

	g.Settings.Symbol = "ETHUSD"
	w.SyncState(g)
	assert.Equal(t, 2, s.mountCount())
	assert.Equal(t, chartload.Loading, w.Loader().Phase())
}

func TestSyncStateWhileHiddenDoesNotBuild(t *testing.T) {
	w, s := newTestInstance(t, nil)
	g := state.Default()
	g.Settings.Symbol = "AAPL"

	w.SyncState(g)

	assert.Zero(t, s.builds)
	assert.Zero(t, s.mountCount())
	assert.Equal(t, "AAPL", w.Status().Settings.Symbol)
}

func TestApplySettingsReloadsChart(t *testing.T) {
	w, s := newTestInstance(t, nil)
	w.SyncState(visibleState())

	w.ApplySettings(state.SettingsPatch{Opacity: state.Ptr(0.5)})

	assert.Equal(t, 0.5, s.opacity)
	assert.Equal(t, 0.5, w.State().Settings.Opacity)
	assert.Equal(t, 2, s.mountCount())
	assert.Equal(t, "BTCUSD", w.State().Settings.Symbol, "absent fields are kept")
}

func TestToggleReportsToHub(t *testing.T) {
	link := &fakeLink{}
	w, s := newTestInstance(t, link)
	ctx := context.Background()

	require.NoError(t, w.Toggle(ctx))
	assert.Equal(t, Visible, w.Mode())
	assert.Equal(t, 1, s.builds)
	assert.Equal(t, 1, s.mountCount())

	require.NoError(t, w.Toggle(ctx))
	assert.Equal(t, Hidden, w.Mode())
	assert.False(t, s.visible)

	assert.Equal(t, []state.Patch{
		{IsVisible: state.Ptr(true)},
		{IsVisible: state.Ptr(false)},
	}, link.sent())
}

func TestHubToggleIsNotReported(t *testing.T) {
	link := &fakeLink{}
	w, s := newTestInstance(t, link)

	_, err := w.HandleMessage(context.Background(), hub.Toggle{IsVisible: true})
	require.NoError(t, err)

	assert.Equal(t, Visible, w.Mode())
	assert.True(t, s.visible)
	assert.Empty(t, link.sent())
}

func TestToggleMinimize(t *testing.T) {
	link := &fakeLink{}
	w, s := newTestInstance(t, link)
	ctx := context.Background()

	require.NoError(t, w.ToggleMinimize(ctx))
	assert.Equal(t, Hidden, w.Mode(), "hidden instances ignore minimize")
	assert.Empty(t, link.sent())

	w.SyncState(visibleState())
	require.NoError(t, w.ToggleMinimize(ctx))
	assert.Equal(t, Minimized, w.Mode())
	assert.True(t, s.minimized)
	assert.Equal(t, []state.Patch{{IsMinimized: state.Ptr(true)}}, link.sent())
}

func TestDragCommitsPosition(t *testing.T) {
	link := &fakeLink{}
	w, s := newTestInstance(t, link)
	w.SyncState(visibleState())

	bus := w.Bus()
	bus.Dispatch(interaction.Event{Kind: interaction.PointerDown, Target: interaction.HandleHeader, Pointer: interaction.Pointer{ID: 1, X: 110, Y: 110}})
	assert.True(t, w.Busy())
	bus.Dispatch(interaction.Event{Kind: interaction.PointerMove, Pointer: interaction.Pointer{ID: 1, X: 160, Y: 130}})
	assert.Equal(t, 150, s.Rect().X, "applied during the drag")
	assert.Empty(t, link.sent(), "nothing is reported mid-gesture")
	bus.Dispatch(interaction.Event{Kind: interaction.PointerUp, Pointer: interaction.Pointer{ID: 1, X: 160, Y: 130}})

	assert.False(t, w.Busy())
	assert.Equal(t, 150, w.State().Settings.X)
	assert.Equal(t, 120, w.State().Settings.Y)
	assert.Equal(t, []state.Patch{{Settings: &state.SettingsPatch{X: state.Ptr(150), Y: state.Ptr(120)}}}, link.sent())
	assert.Equal(t, 1, s.mountCount(), "moving does not reload the chart")
}

func TestResizeCommitsSize(t *testing.T) {
	link := &fakeLink{}
	w, _ := newTestInstance(t, link)
	w.SyncState(visibleState())

	bus := w.Bus()
	bus.Dispatch(interaction.Event{Kind: interaction.PointerDown, Target: interaction.HandleResize, Pointer: interaction.Pointer{ID: 2, X: 700, Y: 500}})
	bus.Dispatch(interaction.Event{Kind: interaction.PointerMove, Pointer: interaction.Pointer{ID: 2, X: 800, Y: 550}})
	bus.Dispatch(interaction.Event{Kind: interaction.PointerUp, Pointer: interaction.Pointer{ID: 2, X: 800, Y: 550}})

	assert.Equal(t, 700, w.State().Settings.Width)
	assert.Equal(t, 450, w.State().Settings.Height)
	require.Len(t, link.sent(), 1)
	assert.Equal(t, &state.SettingsPatch{Width: state.Ptr(700), Height: state.Ptr(450)}, link.sent()[0].Settings)
}

func TestSyncDuringDragKeepsGestureRect(t *testing.T) {
	w, s := newTestInstance(t, &fakeLink{})
	w.SyncState(visibleState())

	w.Bus().Dispatch(interaction.Event{Kind: interaction.PointerDown, Target: interaction.HandleHeader, Pointer: interaction.Pointer{ID: 1, X: 110, Y: 110}})
	w.Bus().Dispatch(interaction.Event{Kind: interaction.PointerMove, Pointer: interaction.Pointer{ID: 1, X: 210, Y: 110}})

	g := visibleState()
	g.Settings.X = 500
	w.SyncState(g)
	assert.Equal(t, 200, s.Rect().X)
}

func TestCloseDuringDragReportsNothing(t *testing.T) {
	link := &fakeLink{}
	s := &fakeSurface{}
	w, err := New(s, link, Options{Scheduler: timer.NewManual()})
	require.NoError(t, err)
	w.SyncState(visibleState())

	w.Bus().Dispatch(interaction.Event{Kind: interaction.PointerDown, Target: interaction.HandleHeader, Pointer: interaction.Pointer{ID: 1, X: 110, Y: 110}})
	w.Bus().Dispatch(interaction.Event{Kind: interaction.PointerMove, Pointer: interaction.Pointer{ID: 1, X: 210, Y: 110}})
	w.Close()

	assert.False(t, w.Busy())
	assert.Empty(t, link.sent())
	assert.Equal(t, 100, s.Rect().X)
}

func TestHandleKey(t *testing.T) {
	link := &fakeLink{}
	w, _ := newTestInstance(t, link)
	ctx := context.Background()

	used, err := w.HandleKey(ctx, KeyEvent{Ctrl: true, Key: "f"})
	require.NoError(t, err)
	assert.False(t, used)
	assert.Equal(t, Hidden, w.Mode())

	used, err = w.HandleKey(ctx, KeyEvent{Ctrl: true, Shift: true, Key: "F"})
	require.NoError(t, err)
	assert.True(t, used)
	assert.Equal(t, Visible, w.Mode())
	assert.Len(t, link.sent(), 1)
}

func TestHandleMessage(t *testing.T) {
	w, _ := newTestInstance(t, nil)
	ctx := context.Background()

	res, err := w.HandleMessage(ctx, hub.GetStatus{})
	require.NoError(t, err)
	assert.Equal(t, hub.Status{IsVisible: false, Settings: state.DefaultSettings()}, res)

	_, err = w.HandleMessage(ctx, hub.UpdateSettings{Settings: state.SettingsPatch{Symbol: state.Ptr("SPX")}})
	require.NoError(t, err)
	assert.Equal(t, "SPX", w.Status().Settings.Symbol)

	_, err = w.HandleMessage(ctx, hub.Inject{})
	assert.ErrorIs(t, err, hub.ErrUnknownMessage)
}

func TestParseChord(t *testing.T) {
	tests := []struct {
		in      string
		want    Chord
		wantErr bool
	}{
		{"ctrl+shift+f", Chord{Ctrl: true, Shift: true, Key: "f"}, false},
		{"Ctrl+Shift+F", Chord{Ctrl: true, Shift: true, Key: "f"}, false},
		{"alt+t", Chord{Alt: true, Key: "t"}, false},
		{"t", Chord{Key: "t"}, false},
		{"ctrl+", Chord{}, true},
		{"hyper+f", Chord{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChord(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "ctrl+shift+f", Chord{Ctrl: true, Shift: true, Key: "f"}.String())
}

// localPeer delivers hub frames straight into an instance.
type localPeer struct {
	id string
	w  *Instance
}

func (p localPeer) ID() string { return p.id }

func (p localPeer) Send(ctx context.Context, f hub.Frame) error {
	_, err := p.w.HandleMessage(ctx, f.Msg)
	return err
}

// localLink reports into the hub as peer id.
type localLink struct {
	h  *hub.Hub
	id string
}

func (l localLink) UpdateGlobalState(ctx context.Context, p state.Patch) error {
	_, err := l.h.UpdateGlobalState(ctx, l.id, p)
	return err
}

func TestInstancesConvergeThroughHub(t *testing.T) {
	ctx := context.Background()
	h := hub.New(store.NewMemoryStore(), hub.Options{})
	require.NoError(t, h.Load(ctx))

	a, sa := newTestInstance(t, localLink{h: h, id: "a"})
	b, sb := newTestInstance(t, localLink{h: h, id: "b"})
	require.NoError(t, h.Subscribe(ctx, localPeer{id: "a", w: a}, hub.RoleWidget, hub.Tab{ID: "1", URL: "https://example.com"}))
	require.NoError(t, h.Subscribe(ctx, localPeer{id: "b", w: b}, hub.RoleWidget, hub.Tab{ID: "2", URL: "https://example.org"}))

	require.NoError(t, a.Toggle(ctx))
	assert.Equal(t, Visible, b.Mode())
	assert.True(t, sb.visible)

	a.Bus().Dispatch(interaction.Event{Kind: interaction.PointerDown, Target: interaction.HandleHeader, Pointer: interaction.Pointer{ID: 1, X: 110, Y: 110}})
	a.Bus().Dispatch(interaction.Event{Kind: interaction.PointerMove, Pointer: interaction.Pointer{ID: 1, X: 410, Y: 210}})
	a.Bus().Dispatch(interaction.Event{Kind: interaction.PointerUp, Pointer: interaction.Pointer{ID: 1, X: 410, Y: 210}})
	assert.Equal(t, interaction.Rect{X: 400, Y: 200, Width: 600, Height: 400}, sb.Rect())

	_, err := h.UpdateSettings(ctx, state.SettingsPatch{Symbol: state.Ptr("EURUSD")})
	require.NoError(t, err)
	assert.Equal(t, 2, sa.mountCount())
	assert.Equal(t, 2, sb.mountCount())

	want := h.GetGlobalState()
	assert.Equal(t, want, a.State())
	assert.Equal(t, want, b.State())
	assert.Equal(t, "EURUSD", want.Settings.Symbol)
	assert.Equal(t, 400, want.Settings.X)
}
