package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Pending correlates outgoing requests with their replies by envelope id.
type Pending struct {
	mu      sync.Mutex
	waiters map[string]chan Reply
	closed  error
}

func NewPending() *Pending {
	return &Pending{waiters: make(map[string]chan Reply)}
}

// Register allocates a request id and the channel its reply arrives on.
func (p *Pending) Register() (string, <-chan Reply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed != nil {
		return "", nil, p.closed
	}
	id := uuid.NewString()
	ch := make(chan Reply, 1)
	p.waiters[id] = ch
	return id, ch, nil
}

// Resolve delivers r to the waiter for id. Returns false for unknown ids.
func (p *Pending) Resolve(id string, r Reply) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	delete(p.waiters, id)
	p.mu.Unlock()
	if ok {
		ch <- r
	}
	return ok
}

// Wait blocks until the reply for id arrives or ctx is done.
func (p *Pending) Wait(ctx context.Context, id string, ch <-chan Reply) (Reply, error) {
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.waiters, id)
		p.mu.Unlock()
		return Reply{}, ctx.Err()
	}
}

// Close fails every outstanding request with err and refuses new ones.
func (p *Pending) Close(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed != nil {
		return
	}
	p.closed = err
	for id, ch := range p.waiters {
		ch <- Reply{Error: err.Error()}
		delete(p.waiters, id)
	}
}
