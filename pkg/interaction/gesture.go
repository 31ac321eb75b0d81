package interaction

import "sync"

// Mode selects which part of the rectangle a gesture changes.
type Mode int

const (
	// ModeMove changes the origin and keeps the size.
	ModeMove Mode = iota
	// ModeResize changes the size and keeps the origin.
	ModeResize
)

func (m Mode) String() string {
	if m == ModeResize {
		return "resize"
	}
	return "move"
}

// Surface is the render surface a gesture manipulates.
type Surface interface {
	Rect() Rect
	Viewport() Viewport
	SetRect(Rect)
	// CapturePointer routes every event of the pointer to the handle until released.
	CapturePointer(id int)
	ReleasePointer(id int)
	// BeginGesture suppresses transitions and text selection; EndGesture restores them.
	BeginGesture(Mode)
	EndGesture(Mode)
}

// Gesture is one drag-style state machine: idle -> active -> idle.
type Gesture struct {
	mode    Mode
	surface Surface
	margin  int

	// OnCommit receives the final rectangle when a gesture ends.
	OnCommit func(Mode, Rect)

	mu        sync.Mutex
	active    bool
	pointerID int
	anchor    Point
	start     Rect
	current   Rect
	detach    func()
	blocked   func() bool
}

// NewGesture returns an idle gesture over surface.
func NewGesture(mode Mode, surface Surface) *Gesture {
	return &Gesture{mode: mode, surface: surface, margin: DefaultMargin}
}

// Mode returns what the gesture changes.
func (g *Gesture) Mode() Mode {
	return g.mode
}

// SetMargin sets the resize margin from the viewport edge.
func (g *Gesture) SetMargin(margin int) {
	g.mu.Lock()
	g.margin = margin
	g.mu.Unlock()
}

// Active reports whether a gesture is in progress.
func (g *Gesture) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Start begins a gesture for p. It refuses (returns false) while a gesture is
// already active or a sibling gesture is blocking.
func (g *Gesture) Start(p Pointer) bool {
	if g.blocked != nil && g.blocked() {
		return false
	}
	g.mu.Lock()
	if g.active {
		g.mu.Unlock()
		return false
	}
	rect := g.surface.Rect()
	g.active = true
	g.pointerID = p.ID
	g.start = rect
	g.current = rect
	switch g.mode {
	case ModeMove:
		g.anchor = Point{X: p.X - rect.X, Y: p.Y - rect.Y}
	case ModeResize:
		g.anchor = Point{X: p.X, Y: p.Y}
	}
	g.mu.Unlock()

	g.surface.BeginGesture(g.mode)
	g.surface.CapturePointer(p.ID)
	return true
}

// Move recomputes the rectangle for p and applies it to the surface
// immediately. Events from other pointers and moves while idle are ignored.
func (g *Gesture) Move(p Pointer) (Rect, bool) {
	g.mu.Lock()
	if !g.active || p.ID != g.pointerID {
		g.mu.Unlock()
		return Rect{}, false
	}
	vp := g.surface.Viewport()
	next := g.start
	switch g.mode {
	case ModeMove:
		next.X = p.X - g.anchor.X
		next.Y = p.Y - g.anchor.Y
		next = ClampMove(next, vp)
	case ModeResize:
		next.Width = g.start.Width + (p.X - g.anchor.X)
		next.Height = g.start.Height + (p.Y - g.anchor.Y)
		next = ClampResize(next, vp, g.margin)
	}
	g.current = next
	g.mu.Unlock()

	g.surface.SetRect(next)
	return next, true
}

// End finishes the gesture, releases the pointer and commits the final
// rectangle. Without an active gesture it does nothing.
func (g *Gesture) End(p Pointer) (Rect, bool) {
	g.mu.Lock()
	if !g.active || p.ID != g.pointerID {
		g.mu.Unlock()
		return Rect{}, false
	}
	return g.finishLocked(true)
}

// Cancel ends any active gesture regardless of pointer, committing the
// rectangle reached so far.
func (g *Gesture) Cancel() (Rect, bool) {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return Rect{}, false
	}
	return g.finishLocked(true)
}

// Abort ends any active gesture without committing and puts the surface back
// at the rectangle the gesture started from.
func (g *Gesture) Abort() bool {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return false
	}
	g.current = g.start
	_, ok := g.finishLocked(false)
	return ok
}

// finishLocked is called with g.mu held and releases it.
func (g *Gesture) finishLocked(commit bool) (Rect, bool) {
	final := g.current
	id := g.pointerID
	g.active = false
	detach := g.detach
	g.detach = nil
	onCommit := g.OnCommit
	g.mu.Unlock()

	if detach != nil {
		detach()
	}
	if !commit {
		g.surface.SetRect(final)
	}
	g.surface.ReleasePointer(id)
	g.surface.EndGesture(g.mode)
	if commit && onCommit != nil {
		onCommit(g.mode, final)
	}
	return final, true
}

// Attach wires the gesture to bus: a down event on handle starts it, and the
// move/up/cancel listener lives only for the duration of the gesture.
// The returned function detaches the permanent down listener.
func (g *Gesture) Attach(bus *Bus, handle Handle) (detach func()) {
	return bus.Listen(func(ev Event) {
		if ev.Kind != PointerDown || ev.Target != handle {
			return
		}
		if !g.Start(ev.Pointer) {
			return
		}
		remove := bus.Listen(g.follow)
		g.mu.Lock()
		if g.active {
			g.detach = remove
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()
		remove()
	})
}

func (g *Gesture) follow(ev Event) {
	switch ev.Kind {
	case PointerMove:
		g.Move(ev.Pointer)
	case PointerUp:
		g.End(ev.Pointer)
	case PointerCancel:
		g.Cancel()
	}
}

// Engine pairs the drag and resize gestures of one overlay so that at most
// one of them is active at a time.
type Engine struct {
	Drag   *Gesture
	Resize *Gesture

	detach []func()
}

// NewEngine attaches a drag gesture to the header handle and a resize gesture
// to the resize handle. onCommit receives the final rectangle of each gesture.
func NewEngine(bus *Bus, surface Surface, margin int, onCommit func(Mode, Rect)) *Engine {
	e := &Engine{
		Drag:   NewGesture(ModeMove, surface),
		Resize: NewGesture(ModeResize, surface),
	}
	e.Resize.SetMargin(margin)
	e.Drag.OnCommit = onCommit
	e.Resize.OnCommit = onCommit
	e.Drag.blocked = e.Resize.Active
	e.Resize.blocked = e.Drag.Active
	e.detach = append(e.detach,
		e.Drag.Attach(bus, HandleHeader),
		e.Resize.Attach(bus, HandleResize),
	)
	return e
}

// Busy reports whether either gesture is active.
func (e *Engine) Busy() bool {
	return e.Drag.Active() || e.Resize.Active()
}

// Close aborts active gestures without committing and removes every listener.
func (e *Engine) Close() {
	e.Drag.Abort()
	e.Resize.Abort()
	for _, d := range e.detach {
		d()
	}
	e.detach = nil
}
