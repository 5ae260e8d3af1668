package bridgews

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

const (
	defaultReconnect = 2 * time.Second
	readLimit        = 4 << 20
)

// Publisher receives events forwarded by the bridge. *eventbus.Events
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg schema.EventMessage) error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger pslog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithReconnect sets the delay between connection attempts.
func WithReconnect(delay time.Duration) Option {
	return func(c *Client) {
		if delay > 0 {
			c.reconnect = delay
		}
	}
}

// WithChannels overrides the channels requested from the bridge.
func WithChannels(channels ...schema.Channel) Option {
	return func(c *Client) {
		c.channels = append([]schema.Channel(nil), channels...)
	}
}

// WithDialOptions sets the WebSocket dial options.
func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(c *Client) {
		c.dialOpts = opts
	}
}

// Client is a reconnecting bridge connection. It implements remote.Invoker
// and publishes bridge events into a local Publisher.
type Client struct {
	url       string
	events    Publisher
	logger    pslog.Logger
	reconnect time.Duration
	channels  []schema.Channel
	dialOpts  *websocket.DialOptions

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan Frame
	ready   chan struct{}
}

// New constructs a Client for url. Run establishes the link.
func New(url string, events Publisher, opts ...Option) *Client {
	c := &Client{
		url:       url,
		events:    events,
		logger:    pslog.Ctx(context.Background()),
		reconnect: defaultReconnect,
		channels:  schema.Channels(),
		pending:   make(map[string]chan Frame),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready is closed once the first connection is established.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Run keeps the link up until ctx is done, redialing after a fixed delay.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("bridgews link down", "url", c.url, "err", err, "retry", c.reconnect.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnect):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, c.dialOpts)
	if err != nil {
		return err
	}
	conn.SetReadLimit(readLimit)
	defer c.drop(ctx, conn)

	// Subscriptions go out before the link is handed to callers so the
	// bridge forwards every event caused by a later invoke.
	for _, channel := range c.channels {
		if err := wsjson.Write(ctx, conn, Frame{Type: FrameSubscribe, Channel: channel}); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.conn = conn
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	c.mu.Unlock()
	c.logger.Info("bridgews connected", "url", c.url, "channels", len(c.channels))

	for {
		var frame Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return err
		}
		c.handle(ctx, frame)
	}
}

func (c *Client) handle(ctx context.Context, frame Frame) {
	switch frame.Type {
	case FrameResult:
		c.mu.Lock()
		reply := c.pending[frame.ID]
		delete(c.pending, frame.ID)
		c.mu.Unlock()
		if reply == nil {
			c.logger.Debug("bridgews orphan result dropped", "id", frame.ID)
			return
		}
		reply <- frame
	case FrameEvent:
		if _, err := schema.ParseChannel(string(frame.Channel)); err != nil {
			c.logger.Debug("bridgews event dropped", "channel", string(frame.Channel), "err", err)
			return
		}
		if err := c.events.Publish(ctx, frame.event()); err != nil {
			c.logger.Warn("bridgews publish failed", "channel", string(frame.Channel), "err", err)
		}
	default:
		c.logger.Debug("bridgews frame ignored", "type", string(frame.Type))
	}
}

// drop tears down conn, fails every pending call and reports both the
// engine and the sidecar as unreachable.
func (c *Client) drop(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.CloseNow()
	c.failPending()

	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	for _, channel := range []schema.Channel{schema.ChannelEngineConnection, schema.ChannelSidecarConnection} {
		msg, err := schema.NewEventMessage(channel, false)
		if err != nil {
			continue
		}
		if err := c.events.Publish(emitCtx, msg); err != nil {
			c.logger.Warn("bridgews publish failed", "channel", string(channel), "err", err)
		}
	}
}

// Invoke sends op over the link and waits for its result frame.
func (c *Client) Invoke(ctx context.Context, op string, args map[string]any, result any) error {
	id := uuid.NewString()
	reply := make(chan Frame, 1)
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return remote.NewError(remote.ErrorUnavailable, op, schema.ErrEngineUnavailable.Error())
	}
	c.pending[id] = reply
	c.mu.Unlock()

	if err := wsjson.Write(ctx, conn, Frame{Type: FrameInvoke, ID: id, Op: op, Args: args}); err != nil {
		c.forget(id)
		if ctx.Err() != nil {
			return remote.Wrap(op, ctx.Err())
		}
		return &remote.Error{Kind: remote.ErrorUnavailable, Op: op, Message: "bridge write failed", Err: err}
	}
	select {
	case <-ctx.Done():
		c.forget(id)
		return remote.Wrap(op, ctx.Err())
	case frame := <-reply:
		if frame.Error != nil {
			return frame.Error.remote(op)
		}
		return remote.DecodeResult(op, frame.Result, result)
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan Frame)
	c.mu.Unlock()
	for id, reply := range pending {
		reply <- Frame{Type: FrameResult, ID: id, Error: &FrameError{Kind: remote.ErrorCanceled, Message: "bridge disconnected"}}
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
