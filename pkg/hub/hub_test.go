package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brendandebeasi/floatchart/pkg/state"
	"github.com/brendandebeasi/floatchart/pkg/store"
)

type recordingPeer struct {
	id     string
	mu     sync.Mutex
	frames []Frame
	fail   error

	status Status
}

func newPeer(id string) *recordingPeer {
	return &recordingPeer{id: id}
}

func (p *recordingPeer) ID() string { return p.id }

func (p *recordingPeer) Send(ctx context.Context, f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.frames = append(p.frames, f)
	return nil
}

func (p *recordingPeer) Request(ctx context.Context, msg Message) (Reply, error) {
	if _, ok := msg.(GetStatus); !ok {
		return Reply{}, errors.New("unexpected request")
	}
	return NewReply(p.status, nil), nil
}

func (p *recordingPeer) messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.frames))
	for i, f := range p.frames {
		out[i] = f.Msg
	}
	return out
}

func (p *recordingPeer) reset() {
	p.mu.Lock()
	p.frames = nil
	p.mu.Unlock()
}

type recordingInjector struct {
	mu   sync.Mutex
	tabs []Tab
	fail error
}

func (r *recordingInjector) Inject(ctx context.Context, tab Tab) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.tabs = append(r.tabs, tab)
	return nil
}

func (r *recordingInjector) injected() []Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tab(nil), r.tabs...)
}

var testRestricted = []string{"chrome://", "chrome-extension://"}

func newLoadedHub(t *testing.T, st store.Store, opts Options) *Hub {
	t.Helper()
	if opts.RestrictedPrefixes == nil {
		opts.RestrictedPrefixes = testRestricted
	}
	h := New(st, opts)
	require.NoError(t, h.Load(context.Background()))
	return h
}

func subscribe(t *testing.T, h *Hub, id, tabID string) *recordingPeer {
	t.Helper()
	p := newPeer(id)
	require.NoError(t, h.Subscribe(context.Background(), p, RoleWidget, Tab{ID: tabID, URL: "https://example.com/" + tabID}))
	p.reset()
	return p
}

func TestLoadSeedsDefaults(t *testing.T) {
	st := store.NewMemoryStore()
	h := newLoadedHub(t, st, Options{})

	assert.Equal(t, state.Default(), h.GetGlobalState())

	var saved state.GlobalState
	require.NoError(t, st.Get(context.Background(), store.GlobalStateKey, &saved))
	assert.Equal(t, "BTCUSD", saved.Settings.Symbol)
	assert.Equal(t, "D", saved.Settings.Interval)
	assert.Equal(t, state.ThemeDark, saved.Settings.Theme)
	assert.Equal(t, "1", saved.Settings.Style)
	assert.Equal(t, 600, saved.Settings.Width)
	assert.Equal(t, 400, saved.Settings.Height)
	assert.Equal(t, 100, saved.Settings.X)
	assert.Equal(t, 100, saved.Settings.Y)
	assert.Equal(t, 1.0, saved.Settings.Opacity)
	assert.False(t, saved.IsVisible)
}

func TestLoadKeepsSavedState(t *testing.T) {
	st := store.NewMemoryStore()
	saved := state.Default()
	saved.IsVisible = true
	saved.Settings.Symbol = "ETHUSD"
	require.NoError(t, st.Set(context.Background(), store.GlobalStateKey, saved))

	h := newLoadedHub(t, st, Options{})
	assert.Equal(t, saved, h.GetGlobalState())
}

func TestLoadReseedsInvalidState(t *testing.T) {
	st := store.NewMemoryStore()
	bad := state.Default()
	bad.Settings.Width = 10
	require.NoError(t, st.Set(context.Background(), store.GlobalStateKey, bad))

	h := newLoadedHub(t, st, Options{})
	assert.Equal(t, state.Default(), h.GetGlobalState())
}

func TestUpdateGlobalStateBroadcastsToOthers(t *testing.T) {
	st := store.NewMemoryStore()
	h := newLoadedHub(t, st, Options{})
	a := subscribe(t, h, "a", "1")
	b := subscribe(t, h, "b", "2")

	got, err := h.UpdateGlobalState(context.Background(), "a", state.Patch{
		IsVisible: state.Ptr(true),
		Settings:  &state.SettingsPatch{X: state.Ptr(250), Y: state.Ptr(40)},
	})
	require.NoError(t, err)

	want := state.Default()
	want.IsVisible = true
	want.Settings.X = 250
	want.Settings.Y = 40
	assert.Equal(t, want, got)
	assert.Equal(t, want, h.GetGlobalState())

	assert.Empty(t, a.messages(), "origin must not be echoed")
	assert.Equal(t, []Message{SyncState{State: want}}, b.messages())

	var saved state.GlobalState
	require.NoError(t, st.Get(context.Background(), store.GlobalStateKey, &saved))
	assert.Equal(t, want, saved)
}

func TestToggleVisibilityBroadcastsToggleOnly(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})
	a := subscribe(t, h, "a", "1")
	b := subscribe(t, h, "b", "2")

	visible, err := h.ToggleVisibility(context.Background())
	require.NoError(t, err)
	assert.True(t, visible)

	for _, p := range []*recordingPeer{a, b} {
		assert.Equal(t, []Message{Toggle{IsVisible: true}}, p.messages())
	}

	visible, err = h.ToggleVisibility(context.Background())
	require.NoError(t, err)
	assert.False(t, visible)
	assert.False(t, h.GetGlobalState().IsVisible)
}

func TestUpdateSettingsBroadcastsMergedSettings(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})
	a := subscribe(t, h, "a", "1")

	settings, err := h.UpdateSettings(context.Background(), state.SettingsPatch{Opacity: state.Ptr(0.5)})
	require.NoError(t, err)

	want := state.DefaultSettings()
	want.Opacity = 0.5
	assert.Equal(t, want, settings)
	assert.Equal(t, []Message{UpdateSettings{Settings: state.FullPatch(want)}}, a.messages())
}

func TestResetSettingsKeepsVisibility(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})
	ctx := context.Background()
	_, err := h.UpdateGlobalState(ctx, "", state.Patch{
		IsVisible: state.Ptr(true),
		Settings:  &state.SettingsPatch{Symbol: state.Ptr("AAPL"), Width: state.Ptr(900)},
	})
	require.NoError(t, err)

	settings, err := h.ResetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.DefaultSettings(), settings)
	assert.True(t, h.GetGlobalState().IsVisible)
}

func TestBroadcastIsBestEffort(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})
	broken := subscribe(t, h, "broken", "1")
	broken.fail = errors.New("no receiver")
	ok := subscribe(t, h, "ok", "2")

	_, err := h.ToggleVisibility(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Message{Toggle{IsVisible: true}}, ok.messages())
}

func TestStorageFailureKeepsLastGoodState(t *testing.T) {
	st := store.NewMemoryStore()
	h := newLoadedHub(t, st, Options{})
	a := subscribe(t, h, "a", "1")
	diskFull := errors.New("disk full")
	st.FailWrites = diskFull

	_, err := h.UpdateSettings(context.Background(), state.SettingsPatch{Symbol: state.Ptr("SPX")})
	require.ErrorIs(t, err, diskFull)

	assert.Equal(t, "BTCUSD", h.GetGlobalState().Settings.Symbol)
	assert.Empty(t, a.messages())

	_, err = h.ToggleVisibility(context.Background())
	require.ErrorIs(t, err, diskFull)
	assert.False(t, h.GetGlobalState().IsVisible)
}

func TestInvalidUpdateRejected(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})

	_, err := h.UpdateGlobalState(context.Background(), "", state.Patch{
		Settings: &state.SettingsPatch{Width: state.Ptr(120)},
	})
	require.Error(t, err)
	assert.Equal(t, 600, h.GetGlobalState().Settings.Width)
}

func TestConcurrentUpdatesConverge(t *testing.T) {
	st := store.NewMemoryStore()
	h := newLoadedHub(t, st, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.UpdateSettings(context.Background(), state.SettingsPatch{X: state.Ptr(i * 10)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var saved state.GlobalState
	require.NoError(t, st.Get(context.Background(), store.GlobalStateKey, &saved))
	assert.Equal(t, h.GetGlobalState(), saved)
}

func TestSubscribeSendsCurrentState(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})
	p := newPeer("p")

	require.NoError(t, h.Subscribe(context.Background(), p, RoleWidget, Tab{ID: "7", URL: "https://example.com"}))
	assert.Equal(t, []Message{SyncState{State: state.Default()}}, p.messages())
	assert.True(t, h.Injected("7"))
	assert.Equal(t, []string{"p"}, h.PeerIDs())
}

func TestSubscribeRejectsRestrictedURL(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})

	err := h.Subscribe(context.Background(), newPeer("p"), RoleWidget, Tab{ID: "1", URL: "chrome://settings"})
	assert.ErrorIs(t, err, ErrRestrictedURL)
	assert.Empty(t, h.PeerIDs())
}

func TestTabOpenedInjects(t *testing.T) {
	inj := &recordingInjector{}
	h := newLoadedHub(t, store.NewMemoryStore(), Options{Injector: inj})
	ctx := context.Background()

	require.NoError(t, h.TabOpened(ctx, Tab{ID: "1", URL: "https://example.com"}))
	require.NoError(t, h.TabOpened(ctx, Tab{ID: "1", URL: "https://example.com"}))
	assert.ErrorIs(t, h.TabOpened(ctx, Tab{ID: "2", URL: "chrome-extension://abc/popup.html"}), ErrRestrictedURL)

	assert.Equal(t, []Tab{{ID: "1", URL: "https://example.com"}}, inj.injected())
	assert.True(t, h.Injected("1"))
	assert.False(t, h.Injected("2"))

	h.TabClosed("1")
	assert.False(t, h.Injected("1"))
}

func TestInjectionFailureSkipsTab(t *testing.T) {
	inj := &recordingInjector{fail: errors.New("cannot access page")}
	h := newLoadedHub(t, store.NewMemoryStore(), Options{Injector: inj})

	err := h.TabOpened(context.Background(), Tab{ID: "1", URL: "https://example.com"})
	require.Error(t, err)
	assert.False(t, h.Injected("1"))

	_, err = h.ToggleVisibility(context.Background())
	assert.NoError(t, err)
}

func TestBroadcastInjectsTabsWithoutWidget(t *testing.T) {
	inj := &recordingInjector{}
	h := newLoadedHub(t, store.NewMemoryStore(), Options{Injector: inj})
	a := subscribe(t, h, "a", "1")
	h.Unsubscribe(a)

	_, err := h.ToggleVisibility(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Tab{{ID: "1", URL: "https://example.com/1"}}, inj.injected())
}

func TestResubscribeKeepsNewerPeer(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})
	old := subscribe(t, h, "tab-1", "1")
	fresh := subscribe(t, h, "tab-1", "1")

	h.Unsubscribe(old)
	assert.Equal(t, []string{"tab-1"}, h.PeerIDs())
	assert.True(t, h.Injected("1"))

	_, err := h.ToggleVisibility(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Message{Toggle{IsVisible: true}}, fresh.messages())
	assert.Empty(t, old.messages())

	h.Unsubscribe(fresh)
	assert.Empty(t, h.PeerIDs())
}

type blockingInjector struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (b *blockingInjector) Inject(ctx context.Context, tab Tab) error {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	if first {
		close(b.entered)
		<-b.release
	}
	return nil
}

func TestInjectionInFlightIsNotRepeated(t *testing.T) {
	inj := &blockingInjector{entered: make(chan struct{}), release: make(chan struct{})}
	h := newLoadedHub(t, store.NewMemoryStore(), Options{Injector: inj})
	ctx := context.Background()
	tab := Tab{ID: "1", URL: "https://example.com"}

	done := make(chan error, 1)
	go func() { done <- h.TabOpened(ctx, tab) }()
	<-inj.entered

	require.NoError(t, h.TabOpened(ctx, tab))
	_, err := h.ToggleVisibility(ctx)
	require.NoError(t, err)
	assert.False(t, h.Injected("1"))

	close(inj.release)
	require.NoError(t, <-done)
	assert.True(t, h.Injected("1"))

	inj.mu.Lock()
	defer inj.mu.Unlock()
	assert.Equal(t, 1, inj.calls)
}

func TestInjectionIgnoredAfterTabClosed(t *testing.T) {
	inj := &blockingInjector{entered: make(chan struct{}), release: make(chan struct{})}
	h := newLoadedHub(t, store.NewMemoryStore(), Options{Injector: inj})

	done := make(chan error, 1)
	go func() { done <- h.TabOpened(context.Background(), Tab{ID: "1", URL: "https://example.com"}) }()
	<-inj.entered
	h.TabClosed("1")
	close(inj.release)

	require.NoError(t, <-done)
	assert.False(t, h.Injected("1"))
}

func TestInjectViaBackgroundPeer(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})
	ctx := context.Background()
	tab := Tab{ID: "9", URL: "https://example.com"}

	assert.ErrorIs(t, h.TabOpened(ctx, tab), ErrNotConnected)

	bg := newPeer("bg")
	require.NoError(t, h.Subscribe(ctx, bg, RoleBackground, Tab{}))
	assert.Empty(t, bg.messages(), "background peers get no state")

	require.NoError(t, h.TabOpened(ctx, tab))
	assert.Equal(t, []Message{Inject{Tab: tab}}, bg.messages())

	bg.reset()
	_, err := h.ToggleVisibility(ctx)
	require.NoError(t, err)
	assert.Empty(t, bg.messages(), "broadcasts skip background peers")
}

func TestReloadBroadcastsExternalChange(t *testing.T) {
	st := store.NewMemoryStore()
	h := newLoadedHub(t, st, Options{})
	a := subscribe(t, h, "a", "1")
	ctx := context.Background()

	require.NoError(t, h.Reload(ctx))
	assert.Empty(t, a.messages(), "unchanged store is not broadcast")

	edited := state.Default()
	edited.Settings.Theme = state.ThemeLight
	require.NoError(t, st.Set(ctx, store.GlobalStateKey, edited))

	require.NoError(t, h.Reload(ctx))
	assert.Equal(t, edited, h.GetGlobalState())
	assert.Equal(t, []Message{SyncState{State: edited}}, a.messages())
}

func TestGetStatus(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})
	ctx := context.Background()

	_, err := h.GetStatus(ctx, "")
	assert.ErrorIs(t, err, ErrNotConnected)

	p := subscribe(t, h, "a", "1")
	p.status = Status{IsVisible: true, Settings: state.DefaultSettings()}

	st, err := h.GetStatus(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, p.status, st)

	_, err = h.GetStatus(ctx, "other-tab")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestHandle(t *testing.T) {
	h := newLoadedHub(t, store.NewMemoryStore(), Options{})
	ctx := context.Background()

	res, err := h.Handle(ctx, "", ToggleFromCommandSurface{})
	require.NoError(t, err)
	assert.Equal(t, Toggle{IsVisible: true}, res)

	_, err = h.Handle(ctx, "", Command{Name: CommandToggleWidget})
	require.NoError(t, err)
	assert.False(t, h.GetGlobalState().IsVisible)

	_, err = h.Handle(ctx, "", Command{Name: "open-popup"})
	assert.Error(t, err)

	res, err = h.Handle(ctx, "", GetGlobalState{})
	require.NoError(t, err)
	assert.Equal(t, h.GetGlobalState(), res)

	_, err = h.Handle(ctx, "", SyncState{})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}
