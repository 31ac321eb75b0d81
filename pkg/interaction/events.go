package interaction

import "sync"

// EventKind is the phase of a pointer event.
type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	PointerCancel
)

func (k EventKind) String() string {
	switch k {
	case PointerDown:
		return "down"
	case PointerMove:
		return "move"
	case PointerUp:
		return "up"
	case PointerCancel:
		return "cancel"
	}
	return "unknown"
}

// Handle names the part of the overlay an event landed on.
type Handle string

const (
	HandleNone   Handle = ""
	HandleHeader Handle = "header"
	HandleResize Handle = "resize"
	HandleButton Handle = "button"
)

// Pointer is one mouse, pen or touch contact.
type Pointer struct {
	ID   int
	X, Y int
}

// Event is a pointer event delivered by the host.
type Event struct {
	Kind    EventKind
	Pointer Pointer
	Target  Handle
}

// Bus fans host pointer events out to listeners. Gestures attach a permanent
// down listener to their handle and a temporary listener for the rest of the
// gesture; the temporary one is removed when the gesture ends.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Event)
	order     []int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[int]func(Event))}
}

// Listen registers fn and returns the function that removes it.
func (b *Bus) Listen(fn func(Event)) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispatch delivers ev to every listener registered at the time of the call,
// in registration order. Listeners may add or remove listeners.
func (b *Bus) Dispatch(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Listeners returns the number of registered listeners.
func (b *Bus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
