package bridgegrpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
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

// WithReconnect sets the delay before a lost subscription is reopened.
func WithReconnect(delay time.Duration) Option {
	return func(c *Client) {
		if delay > 0 {
			c.reconnect = delay
		}
	}
}

// WithHealthInterval sets the health polling interval.
func WithHealthInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.healthInterval = interval
		}
	}
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOpts = append(c.dialOpts, opts...)
	}
}

// Client is a gRPC bridge connection. It implements remote.Invoker;
// Run forwards bridge events and health transitions into a Publisher.
type Client struct {
	addr           string
	events         Publisher
	logger         pslog.Logger
	reconnect      time.Duration
	healthInterval time.Duration
	dialOpts       []grpc.DialOption

	conn      *grpc.ClientConn
	rpc       *bridgeClient
	ready     chan struct{}
	readyOnce sync.Once
	// attached is only touched by the subscribe loop.
	attached bool
}

// Dial creates a client for addr. The connection is established lazily.
func Dial(addr string, events Publisher, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("bridgegrpc: address is required")
	}
	c := &Client{
		addr:           addr,
		events:         events,
		logger:         pslog.Ctx(context.Background()),
		reconnect:      2 * time.Second,
		healthInterval: 5 * time.Second,
		ready:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, c.dialOpts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("bridgegrpc: dial %s: %w", addr, err)
	}
	c.conn = conn
	c.rpc = &bridgeClient{cc: conn}
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ready is closed once the event subscription is first attached.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Invoke runs op on the bridge.
func (c *Client) Invoke(ctx context.Context, op string, args map[string]any, result any) error {
	req, err := invokeRequest(op, args)
	if err != nil {
		return &remote.Error{Kind: remote.ErrorRejected, Op: op, Message: "arguments are not encodable", Err: err}
	}
	out, err := c.rpc.Invoke(ctx, req)
	if err != nil {
		return wrapBridgeError(op, err)
	}
	raw, err := fromValue(out)
	if err != nil {
		return &remote.Error{Kind: remote.ErrorUnknown, Op: op, Err: err}
	}
	return remote.DecodeResult(op, raw, result)
}

// Run forwards events and health transitions until ctx is done. Health
// polling starts once the subscription is attached so a resync requested on
// connect is not missed.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.subscribeLoop(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-c.ready:
		}
		return NewHealthMonitor(c.conn, c.events, c.healthInterval, c.logger).Run(gctx)
	})
	return g.Wait()
}

// eventChannels are forwarded by subscription; the connection channels come
// from the health monitor instead.
func eventChannels() []schema.Channel {
	var out []schema.Channel
	for _, ch := range schema.Channels() {
		if ch == schema.ChannelEngineConnection || ch == schema.ChannelSidecarConnection {
			continue
		}
		out = append(out, ch)
	}
	return out
}

func (c *Client) subscribeLoop(ctx context.Context) error {
	for {
		err := c.subscribeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logGRPCError(c.logger, "bridgegrpc subscription lost", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnect):
		}
	}
}

func (c *Client) subscribeOnce(ctx context.Context) error {
	req, err := subscribeRequest(eventChannels())
	if err != nil {
		return err
	}
	stream, err := c.rpc.Subscribe(ctx, req)
	if err != nil {
		return err
	}
	if _, err := stream.Header(); err != nil {
		return err
	}
	c.readyOnce.Do(func() { close(c.ready) })
	c.logger.Info("bridgegrpc subscribed", "addr", c.addr, "reattached", c.attached)
	if c.attached {
		// Events sent while the stream was down are gone. Health may have
		// stayed SERVING, so no connection transition will ask for them.
		go c.requestFullState(ctx)
	}
	c.attached = true
	for {
		msg, err := stream.Recv()
		if err != nil {
			return err
		}
		event, err := parseEvent(msg)
		if err != nil {
			c.logger.Debug("bridgegrpc event dropped", "err", err)
			continue
		}
		if err := c.events.Publish(ctx, event); err != nil {
			c.logger.Warn("bridgegrpc publish failed", "channel", string(event.Channel), "err", err)
		}
	}
}

func (c *Client) requestFullState(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Invoke(ctx, remote.OpRequestFullState, nil, nil); err != nil {
		c.logger.Warn("bridgegrpc resync after reattach failed", "err", err)
		return
	}
	c.logger.Debug("bridgegrpc resync requested after reattach")
}
