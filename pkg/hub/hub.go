// Package hub holds the one authoritative GlobalState, persists it and fans
// change notifications out to every live widget instance.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/brendandebeasi/floatchart/pkg/state"
	"github.com/brendandebeasi/floatchart/pkg/store"
)

var (
	// ErrRestrictedURL is returned when a tab's URL may not host a widget.
	ErrRestrictedURL = errors.New("restricted url")
	// ErrNotConnected is returned when no peer can serve the request.
	ErrNotConnected = errors.New("not connected")
)

// Tab identifies a browser tab (or any other host of a widget instance).
type Tab struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Peer is a connected endpoint that receives hub notifications. Send is called
// with the hub's state lock held and must not call back into the hub.
type Peer interface {
	ID() string
	Send(ctx context.Context, f Frame) error
}

// Requester is implemented by peers that can answer requests.
type Requester interface {
	Request(ctx context.Context, msg Message) (Reply, error)
}

// Injector installs a widget instance into a tab that lacks one.
type Injector interface {
	Inject(ctx context.Context, tab Tab) error
}

// Watcher reports external changes to the backing store.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

type Options struct {
	Logger             *zap.Logger
	Injector           Injector // nil forwards inject requests to the background peer
	RestrictedPrefixes []string // URL prefixes or glob patterns
}

type peerEntry struct {
	peer Peer
	role Role
	tab  Tab
}

// Hub is the single writer of the global state. Every mutation runs under mu,
// including the store write and the broadcast that follows it, so peers see
// states in commit order.
type Hub struct {
	store      store.Store
	log        *zap.Logger
	injector   Injector
	restricted *urlMatcher

	mu    sync.Mutex
	state state.GlobalState

	peersMu   sync.RWMutex
	peers     map[string]*peerEntry
	tabs      map[string]Tab
	injected  map[string]bool
	injecting map[string]bool
}

// New creates a hub over st. Call Load before serving.
func New(st store.Store, opts Options) *Hub {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	restricted, errs := compileRestricted(opts.RestrictedPrefixes)
	for _, err := range errs {
		log.Warn("ignoring restricted url pattern", zap.Error(err))
	}
	return &Hub{
		store:      st,
		log:        log,
		injector:   opts.Injector,
		restricted: restricted,
		state:      state.Default(),
		peers:      make(map[string]*peerEntry),
		tabs:       make(map[string]Tab),
		injected:   make(map[string]bool),
		injecting:  make(map[string]bool),
	}
}

// Load reads the persisted record, seeding the store with defaults when it is
// absent or unusable.
func (h *Hub) Load(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var g state.GlobalState
	err := h.store.Get(ctx, store.GlobalStateKey, &g)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.log.Info("no saved state, seeding defaults")
	case err != nil:
		return fmt.Errorf("load state: %w", err)
	default:
		vErr := g.Validate()
		if vErr == nil {
			h.state = g
			h.log.Info("state loaded", zap.String("symbol", g.Settings.Symbol), zap.Bool("visible", g.IsVisible))
			return nil
		}
		h.log.Warn("saved state invalid, seeding defaults", zap.Error(vErr))
	}

	h.state = state.Default()
	if err := h.store.Set(ctx, store.GlobalStateKey, h.state); err != nil {
		return fmt.Errorf("seed state: %w", err)
	}
	return nil
}

// Reload re-reads the store after an external edit and broadcasts the result
// to every widget when it differs from the state in memory.
func (h *Hub) Reload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var g state.GlobalState
	if err := h.store.Get(ctx, store.GlobalStateKey, &g); err != nil {
		return fmt.Errorf("reload state: %w", err)
	}
	if g == h.state {
		return nil
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("reload state: %w", err)
	}
	h.state = g
	h.log.Info("state reloaded from store")
	h.broadcast(ctx, SyncState{State: g}, "")
	return nil
}

// Follow reloads the state whenever w reports a change, until ctx is done.
func (h *Hub) Follow(ctx context.Context, w Watcher) error {
	return w.Watch(ctx, func() {
		if err := h.Reload(ctx); err != nil {
			h.log.Warn("reload failed", zap.Error(err))
		}
	})
}

// GetGlobalState returns a copy of the current state.
func (h *Hub) GetGlobalState() state.GlobalState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// commit validates and persists next, then makes it current. The in-memory
// state only advances when the write succeeds.
func (h *Hub) commit(ctx context.Context, next state.GlobalState) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if err := h.store.Set(ctx, store.GlobalStateKey, next); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	h.state = next
	return nil
}

// UpdateGlobalState merges p into the state and sends the full result to every
// widget except origin.
func (h *Hub) UpdateGlobalState(ctx context.Context, origin string, p state.Patch) (state.GlobalState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.commit(ctx, h.state.Apply(p)); err != nil {
		return h.state, err
	}
	h.broadcast(ctx, SyncState{State: h.state}, origin)
	return h.state, nil
}

// ToggleVisibility flips IsVisible and notifies every widget.
func (h *Hub) ToggleVisibility(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.state
	next.IsVisible = !next.IsVisible
	if err := h.commit(ctx, next); err != nil {
		return h.state.IsVisible, err
	}
	h.broadcast(ctx, Toggle{IsVisible: next.IsVisible}, "")
	return next.IsVisible, nil
}

// UpdateSettings merges p into the settings and notifies every widget with the
// full merged settings.
func (h *Hub) UpdateSettings(ctx context.Context, p state.SettingsPatch) (state.Settings, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.state
	next.Settings = next.Settings.Apply(p)
	if err := h.commit(ctx, next); err != nil {
		return h.state.Settings, err
	}
	h.broadcast(ctx, UpdateSettings{Settings: state.FullPatch(next.Settings)}, "")
	return next.Settings, nil
}

// ResetSettings restores default settings. Visibility is kept.
func (h *Hub) ResetSettings(ctx context.Context) (state.Settings, error) {
	return h.UpdateSettings(ctx, state.FullPatch(state.DefaultSettings()))
}

// HandleCommand runs a named keyboard command.
func (h *Hub) HandleCommand(ctx context.Context, name string) error {
	switch name {
	case CommandToggleWidget:
		_, err := h.ToggleVisibility(ctx)
		return err
	}
	return fmt.Errorf("unknown command %q", name)
}

// broadcast delivers msg to every widget peer except the one named exclude.
// Delivery is best-effort. Known tabs without a live widget get one injected;
// the new instance receives the current state when it subscribes.
// Caller holds h.mu.
func (h *Hub) broadcast(ctx context.Context, msg Message, exclude string) {
	h.peersMu.Lock()
	targets := make([]Peer, 0, len(h.peers))
	live := make(map[string]bool, len(h.peers))
	for id, e := range h.peers {
		if e.role != RoleWidget {
			continue
		}
		live[e.tab.ID] = true
		if id == exclude || h.isRestricted(e.tab.URL) {
			continue
		}
		targets = append(targets, e.peer)
	}
	var missing []Tab
	for id, tab := range h.tabs {
		if !live[id] && !h.isRestricted(tab.URL) && h.claimInjection(id) {
			missing = append(missing, tab)
		}
	}
	h.peersMu.Unlock()

	for _, p := range targets {
		if err := p.Send(ctx, Frame{Msg: msg}); err != nil {
			h.log.Debug("delivery failed", zap.String("peer", p.ID()), zap.String("type", string(msg.Type())), zap.Error(err))
		}
	}
	for _, tab := range missing {
		if err := h.inject(ctx, tab); err != nil {
			h.log.Debug("inject skipped", zap.String("tab", tab.ID), zap.Error(err))
		}
	}
}

func (h *Hub) isRestricted(url string) bool {
	return h.restricted.Match(url)
}

// Subscribe registers peer. A widget peer immediately receives the current
// state.
func (h *Hub) Subscribe(ctx context.Context, peer Peer, role Role, tab Tab) error {
	if role == "" {
		role = RoleWidget
	}
	if role == RoleWidget && h.isRestricted(tab.URL) {
		return fmt.Errorf("%w: %s", ErrRestrictedURL, tab.URL)
	}

	h.peersMu.Lock()
	h.peers[peer.ID()] = &peerEntry{peer: peer, role: role, tab: tab}
	if role == RoleWidget && tab.ID != "" {
		h.tabs[tab.ID] = tab
		h.injected[tab.ID] = true
	}
	h.peersMu.Unlock()
	h.log.Info("peer subscribed", zap.String("peer", peer.ID()), zap.String("role", string(role)), zap.String("tab", tab.ID))

	if role != RoleWidget {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := peer.Send(ctx, Frame{Msg: SyncState{State: h.state}}); err != nil {
		h.log.Debug("initial sync failed", zap.String("peer", peer.ID()), zap.Error(err))
	}
	return nil
}

// Unsubscribe forgets the peer. Its tab stays known and is injected again on
// the next broadcast. A peer whose id was taken over by a newer subscription
// leaves the newer entry alone.
func (h *Hub) Unsubscribe(peer Peer) {
	id := peer.ID()
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	e, ok := h.peers[id]
	if !ok || e.peer != peer {
		return
	}
	delete(h.peers, id)
	if e.role == RoleWidget && e.tab.ID != "" {
		delete(h.injected, e.tab.ID)
	}
	h.log.Info("peer unsubscribed", zap.String("peer", id))
}

// TabOpened records a tab and injects a widget into it unless it already has
// one or its URL is restricted.
func (h *Hub) TabOpened(ctx context.Context, tab Tab) error {
	h.peersMu.Lock()
	h.tabs[tab.ID] = tab
	claimed := h.claimInjection(tab.ID)
	h.peersMu.Unlock()

	if !claimed {
		return nil
	}
	return h.inject(ctx, tab)
}

// claimInjection marks tabID as being injected unless it already has a widget
// or another injection is in flight. Caller holds h.peersMu.
func (h *Hub) claimInjection(tabID string) bool {
	if h.injected[tabID] || h.injecting[tabID] {
		return false
	}
	h.injecting[tabID] = true
	return true
}

// TabClosed drops all bookkeeping for the tab.
func (h *Hub) TabClosed(tabID string) {
	h.peersMu.Lock()
	defer h.peersMu.Unlock()
	delete(h.tabs, tabID)
	delete(h.injected, tabID)
	for id, e := range h.peers {
		if e.role == RoleWidget && e.tab.ID == tabID {
			delete(h.peers, id)
		}
	}
}

func (h *Hub) inject(ctx context.Context, tab Tab) error {
	var err error
	switch {
	case h.isRestricted(tab.URL):
		err = fmt.Errorf("%w: %s", ErrRestrictedURL, tab.URL)
	case h.injector != nil:
		err = h.injector.Inject(ctx, tab)
	default:
		err = h.injectViaBackground(ctx, tab)
	}

	h.peersMu.Lock()
	delete(h.injecting, tab.ID)
	if _, open := h.tabs[tab.ID]; err == nil && open {
		h.injected[tab.ID] = true
	}
	h.peersMu.Unlock()

	if err != nil {
		return fmt.Errorf("inject tab %s: %w", tab.ID, err)
	}
	return nil
}

func (h *Hub) injectViaBackground(ctx context.Context, tab Tab) error {
	h.peersMu.RLock()
	var bg Peer
	for _, e := range h.peers {
		if e.role == RoleBackground {
			bg = e.peer
			break
		}
	}
	h.peersMu.RUnlock()
	if bg == nil {
		return ErrNotConnected
	}
	return bg.Send(ctx, Frame{Msg: Inject{Tab: tab}})
}

// GetStatus asks a widget for its status. An empty tabID picks any live widget.
func (h *Hub) GetStatus(ctx context.Context, tabID string) (Status, error) {
	h.peersMu.RLock()
	var target Requester
	for _, id := range h.sortedPeerIDs() {
		e := h.peers[id]
		if e.role != RoleWidget || (tabID != "" && e.tab.ID != tabID) {
			continue
		}
		if r, ok := e.peer.(Requester); ok {
			target = r
			break
		}
	}
	h.peersMu.RUnlock()
	if target == nil {
		return Status{}, ErrNotConnected
	}

	reply, err := target.Request(ctx, GetStatus{TabID: tabID})
	if err != nil {
		return Status{}, err
	}
	var st Status
	if err := reply.Decode(&st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// caller holds peersMu
func (h *Hub) sortedPeerIDs() []string {
	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PeerIDs returns the ids of all registered peers, sorted.
func (h *Hub) PeerIDs() []string {
	h.peersMu.RLock()
	defer h.peersMu.RUnlock()
	return h.sortedPeerIDs()
}

// Injected reports whether the tab is known to host a widget.
func (h *Hub) Injected(tabID string) bool {
	h.peersMu.RLock()
	defer h.peersMu.RUnlock()
	return h.injected[tabID]
}

// Handle runs one request from peer origin and returns the reply payload.
// Subscribe and Unsubscribe need the transport's peer and are handled there.
func (h *Hub) Handle(ctx context.Context, origin string, msg Message) (any, error) {
	switch m := msg.(type) {
	case GetGlobalState:
		return h.GetGlobalState(), nil
	case UpdateGlobalState:
		return h.UpdateGlobalState(ctx, origin, m.Patch)
	case ToggleFromCommandSurface:
		visible, err := h.ToggleVisibility(ctx)
		return Toggle{IsVisible: visible}, err
	case UpdateSettings:
		return h.UpdateSettings(ctx, m.Settings)
	case ResetSettings:
		return h.ResetSettings(ctx)
	case Command:
		return nil, h.HandleCommand(ctx, m.Name)
	case GetStatus:
		return h.GetStatus(ctx, m.TabID)
	case TabOpened:
		return nil, h.TabOpened(ctx, m.Tab)
	case TabClosed:
		h.TabClosed(m.TabID)
		return nil, nil
	case Ping:
		return Pong{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type())
}
