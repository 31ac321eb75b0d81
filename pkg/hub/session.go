package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RequestTimeout bounds a single request handled for a peer, including the
// store write and broadcast it triggers.
const RequestTimeout = 5 * time.Second

// WriteFunc writes one encoded envelope to the transport.
type WriteFunc func(ctx context.Context, data []byte) error

// Session is one transport connection served by the hub. The socket server and
// the web bridge both feed it raw frames; it implements Peer and Requester so
// the hub can push notifications and ask for status.
type Session struct {
	hub     *Hub
	write   WriteFunc
	pending *Pending
	log     *zap.Logger

	mu         sync.Mutex
	id         string
	subscribed bool
}

// NewSession creates a session with the given initial id.
func (h *Hub) NewSession(id string, write WriteFunc) *Session {
	return &Session{
		hub:     h,
		write:   write,
		pending: NewPending(),
		log:     h.log.With(zap.String("session", id)),
		id:      id,
	}
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Subscribed reports whether the peer is registered with the hub.
func (s *Session) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

func (s *Session) Send(ctx context.Context, f Frame) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	return s.write(ctx, data)
}

func (s *Session) Request(ctx context.Context, msg Message) (Reply, error) {
	id, ch, err := s.pending.Register()
	if err != nil {
		return Reply{}, err
	}
	if err := s.Send(ctx, Frame{ID: id, Msg: msg}); err != nil {
		s.pending.Resolve(id, Reply{})
		return Reply{}, fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	return s.pending.Wait(ctx, id, ch)
}

func (s *Session) reply(ctx context.Context, id string, result any, err error) {
	if id == "" {
		if err != nil {
			s.log.Debug("request failed", zap.Error(err))
		}
		return
	}
	if sendErr := s.Send(ctx, Frame{ID: id, Msg: NewReply(result, err)}); sendErr != nil {
		s.log.Debug("reply failed", zap.Error(sendErr))
	}
}

// HandleFrame processes one raw envelope. It returns false when the peer asked
// to end the session.
func (s *Session) HandleFrame(data []byte) bool {
	f, err := Decode(data)
	if err != nil {
		s.log.Debug("dropping frame", zap.Error(err))
		if errors.Is(err, ErrUnknownMessage) {
			if id := envelopeID(data); id != "" {
				s.reply(context.Background(), id, nil, err)
			}
		}
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
	defer cancel()

	switch m := f.Msg.(type) {
	case Subscribe:
		s.mu.Lock()
		if f.ClientID != "" && !s.subscribed {
			s.id = f.ClientID
		}
		s.mu.Unlock()
		err := s.hub.Subscribe(ctx, s, m.Role, m.Tab)
		if err == nil {
			s.mu.Lock()
			s.subscribed = true
			s.mu.Unlock()
		}
		s.reply(ctx, f.ID, nil, err)
	case Unsubscribe:
		return false
	case Reply:
		if !s.pending.Resolve(f.ID, m) {
			s.log.Debug("reply without request", zap.String("id", f.ID))
		}
	case Ping:
		_ = s.Send(ctx, Frame{ID: f.ID, Msg: Pong{}})
	case Pong:
	case GetStatus:
		// Waits on another peer; must not hold up this session's reads.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
			defer cancel()
			res, err := s.hub.Handle(ctx, s.ID(), m)
			s.reply(ctx, f.ID, res, err)
		}()
	default:
		res, err := s.hub.Handle(ctx, s.ID(), f.Msg)
		s.reply(ctx, f.ID, res, err)
	}
	return true
}

// Close unregisters the peer and fails outstanding requests.
func (s *Session) Close() {
	s.mu.Lock()
	subscribed := s.subscribed
	s.subscribed = false
	s.mu.Unlock()
	if subscribed {
		s.hub.Unsubscribe(s)
	}
	s.pending.Close(ErrNotConnected)
}

func envelopeID(data []byte) string {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return env.ID
}
