package hub

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brendandebeasi/floatchart/pkg/state"
)

// dialAttempts and dialBackoff cover a hub that is still starting up.
const (
	dialAttempts = 10
	dialBackoff  = 100 * time.Millisecond
)

// Client is the widget and command-surface side of the socket protocol.
type Client struct {
	conn    net.Conn
	id      string
	log     *zap.Logger
	pending *Pending
	writeMu sync.Mutex

	onMessage func(Frame)
	done      chan struct{}
}

type ClientOptions struct {
	// ClientID is sent on every frame. Empty picks a random id.
	ClientID string
	// OnMessage receives every frame that is not a reply: broadcasts from the
	// hub and requests such as get-status. Called from the read goroutine.
	OnMessage func(Frame)
	Logger    *zap.Logger
}

// Dial connects to the hub socket, retrying briefly while it starts.
func Dial(ctx context.Context, socketPath string, opts ClientOptions) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var d net.Dialer
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(dialBackoff), dialAttempts-1), ctx)
	conn, err := backoff.RetryNotifyWithData(func() (net.Conn, error) {
		return d.DialContext(ctx, "unix", socketPath)
	}, policy, func(err error, wait time.Duration) {
		log.Debug("hub not reachable yet", zap.String("socket", socketPath), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return NewClient(conn, opts), nil
}

// NewClient wraps an established connection and starts reading from it.
func NewClient(conn net.Conn, opts ClientOptions) *Client {
	id := opts.ClientID
	if id == "" {
		id = uuid.NewString()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		conn:      conn,
		id:        id,
		log:       log,
		pending:   NewPending(),
		onMessage: opts.OnMessage,
		done:      make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

func (c *Client) ID() string { return c.id }

// Done is closed when the connection drops.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) receiveLoop() {
	defer close(c.done)
	defer c.pending.Close(ErrNotConnected)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		f, err := Decode(scanner.Bytes())
		if err != nil {
			c.log.Debug("dropping frame", zap.Error(err))
			continue
		}
		switch m := f.Msg.(type) {
		case Reply:
			c.pending.Resolve(f.ID, m)
			continue
		case Pong:
			if f.ID != "" {
				c.pending.Resolve(f.ID, Reply{})
				continue
			}
		}
		if c.onMessage != nil {
			c.onMessage(f)
		}
	}
}

func (c *Client) send(ctx context.Context, f Frame) error {
	f.ClientID = c.id
	data, err := Encode(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// Send writes msg without waiting for a reply.
func (c *Client) Send(ctx context.Context, msg Message) error {
	return c.send(ctx, Frame{Msg: msg})
}

// Request writes msg and waits for the hub's reply.
func (c *Client) Request(ctx context.Context, msg Message) (Reply, error) {
	id, ch, err := c.pending.Register()
	if err != nil {
		return Reply{}, err
	}
	if err := c.send(ctx, Frame{ID: id, Msg: msg}); err != nil {
		c.pending.Resolve(id, Reply{})
		return Reply{}, err
	}
	return c.pending.Wait(ctx, id, ch)
}

// Respond answers a request frame received through OnMessage.
func (c *Client) Respond(ctx context.Context, requestID string, result any, err error) error {
	return c.send(ctx, Frame{ID: requestID, Msg: NewReply(result, err)})
}

func (c *Client) call(ctx context.Context, msg Message, out any) error {
	reply, err := c.Request(ctx, msg)
	if err != nil {
		return err
	}
	return reply.Decode(out)
}

// Subscribe registers this client as a peer. Widgets receive sync-state
// right after.
func (c *Client) Subscribe(ctx context.Context, role Role, tab Tab) error {
	return c.call(ctx, Subscribe{Role: role, Tab: tab}, nil)
}

func (c *Client) Unsubscribe(ctx context.Context) error {
	return c.Send(ctx, Unsubscribe{})
}

func (c *Client) GetGlobalState(ctx context.Context) (state.GlobalState, error) {
	var g state.GlobalState
	err := c.call(ctx, GetGlobalState{}, &g)
	return g, err
}

func (c *Client) UpdateGlobalState(ctx context.Context, p state.Patch) (state.GlobalState, error) {
	var g state.GlobalState
	err := c.call(ctx, UpdateGlobalState{Patch: p}, &g)
	return g, err
}

// ToggleVisibility asks the hub to flip visibility and returns the new value.
func (c *Client) ToggleVisibility(ctx context.Context) (bool, error) {
	var t Toggle
	err := c.call(ctx, ToggleFromCommandSurface{}, &t)
	return t.IsVisible, err
}

func (c *Client) UpdateSettings(ctx context.Context, p state.SettingsPatch) (state.Settings, error) {
	var s state.Settings
	err := c.call(ctx, UpdateSettings{Settings: p}, &s)
	return s, err
}

func (c *Client) ResetSettings(ctx context.Context) (state.Settings, error) {
	var s state.Settings
	err := c.call(ctx, ResetSettings{}, &s)
	return s, err
}

func (c *Client) RunCommand(ctx context.Context, name string) error {
	return c.call(ctx, Command{Name: name}, nil)
}

// GetStatus asks a live widget (any, when tabID is empty) for its status.
func (c *Client) GetStatus(ctx context.Context, tabID string) (Status, error) {
	var st Status
	err := c.call(ctx, GetStatus{TabID: tabID}, &st)
	return st, err
}

func (c *Client) Ping(ctx context.Context) error {
	id, ch, err := c.pending.Register()
	if err != nil {
		return err
	}
	if err := c.send(ctx, Frame{ID: id, Msg: Ping{}}); err != nil {
		return err
	}
	_, err = c.pending.Wait(ctx, id, ch)
	return err
}
