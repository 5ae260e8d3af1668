// Package oscengine drives Ableton Live through the AbletonOSC control
// surface. Commands go out as OSC messages and replies come back on a
// listener socket, where they are turned into engine channel events.
package oscengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

// Default AbletonOSC endpoints.
const (
	DefaultSendAddr   = "127.0.0.1:11000"
	DefaultListenAddr = "127.0.0.1:11001"
)

// Emitter publishes channel events.
type Emitter interface {
	Emit(ctx context.Context, channel schema.Channel, payload any) error
}

// Sender delivers OSC packets. *osc.Client satisfies it.
type Sender interface {
	Send(packet osc.Packet) error
}

// Config configures an Engine.
type Config struct {
	SendAddr          string
	ListenAddr        string
	KeepaliveInterval time.Duration
	KeepaliveMisses   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger pslog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSender overrides the OSC sender.
func WithSender(sender Sender) Option {
	return func(e *Engine) {
		if sender != nil {
			e.sender = sender
		}
	}
}

// Engine is the AbletonOSC backend. It implements remote.Invoker.
type Engine struct {
	cfg     Config
	sender  Sender
	events  Emitter
	logger  pslog.Logger
	handler *osc.StandardDispatcher

	mu        sync.Mutex
	cache     schema.EngineFullState
	recording bool
	connected bool
	lastPong  time.Time
	conn      net.PacketConn
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs an Engine. Start opens the listener.
func New(cfg Config, events Emitter, opts ...Option) (*Engine, error) {
	if cfg.SendAddr == "" {
		cfg.SendAddr = DefaultSendAddr
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 2 * time.Second
	}
	if cfg.KeepaliveMisses <= 0 {
		cfg.KeepaliveMisses = 3
	}
	e := &Engine{
		cfg:    cfg,
		events: events,
		logger: pslog.Ctx(context.Background()),
		cache:  schema.EngineFullState{TransportState: schema.DefaultTransport(), Tracks: []schema.TrackState{}},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sender == nil {
		host, portText, err := net.SplitHostPort(cfg.SendAddr)
		if err != nil {
			return nil, fmt.Errorf("oscengine: send addr %q: %w", cfg.SendAddr, err)
		}
		port, err := strconv.Atoi(portText)
		if err != nil {
			return nil, fmt.Errorf("oscengine: send port %q: %w", portText, err)
		}
		e.sender = osc.NewClient(host, port)
	}
	e.handler = e.dispatcher()
	return e, nil
}

// Start binds the listener, subscribes to live updates and pings the
// engine. The connection flag is raised when the ping is answered.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.conn != nil {
		e.mu.Unlock()
		return nil
	}
	conn, err := net.ListenPacket("udp", e.cfg.ListenAddr)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("oscengine: listen %s: %w", e.cfg.ListenAddr, err)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.conn = conn
	e.runCtx = runCtx
	e.cancel = cancel
	e.wg.Add(2)
	go e.serve(runCtx, conn)
	go e.keepalive(runCtx)
	e.mu.Unlock()

	e.logger.Info("oscengine listening", "listen", conn.LocalAddr().String(), "send", e.cfg.SendAddr)
	e.send(osc.NewMessage(addrTest))
	for _, msg := range listenMessages() {
		e.send(msg)
	}
	return nil
}

// ListenAddr returns the bound listener address.
func (e *Engine) ListenAddr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	return e.conn.LocalAddr()
}

// Close stops the listener and reports the engine as disconnected.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	conn, cancel := e.conn, e.cancel
	e.conn, e.cancel = nil, nil
	wasConnected := e.connected
	e.connected = false
	e.mu.Unlock()
	if conn == nil {
		return nil
	}
	cancel()
	err := conn.Close()
	e.wg.Wait()
	if wasConnected {
		if emitErr := e.events.Emit(ctx, schema.ChannelEngineConnection, false); emitErr != nil {
			return emitErr
		}
	}
	return err
}

// Invoke sends op to the engine. Commands are fire-and-forget over UDP;
// their effects arrive later as listener events.
func (e *Engine) Invoke(ctx context.Context, op string, args map[string]any, result any) error {
	if err := ctx.Err(); err != nil {
		return remote.Wrap(op, err)
	}
	switch op {
	case remote.OpRequestFullState:
		e.requestFullState()
		return nil
	case remote.OpGetEngineParams:
		// AbletonOSC has no custom parameters; set_engine_param is rejected by Encode.
		return remote.DecodeResult(op, []schema.EngineParam{}, result)
	}
	e.mu.Lock()
	toggles := Toggles{Recording: e.recording, LoopEnabled: e.cache.LoopEnabled}
	e.mu.Unlock()
	msg, err := Encode(op, remote.ReadArgs(op, args), toggles)
	if err != nil {
		return err
	}
	if err := e.sender.Send(msg); err != nil {
		return &remote.Error{Kind: remote.ErrorUnavailable, Op: op, Message: "osc send failed", Err: err}
	}
	e.logger.Debug("oscengine sent", "op", op, "address", msg.Address)
	return nil
}

func (e *Engine) requestFullState() {
	e.mu.Lock()
	e.cache.Tracks = nil
	e.mu.Unlock()
	for _, msg := range syncMessages() {
		e.send(msg)
	}
}

func (e *Engine) send(msg *osc.Message) {
	if err := e.sender.Send(msg); err != nil {
		e.logger.Warn("oscengine send failed", "address", msg.Address, "err", err)
	}
}

// serve reads packets in arrival order and dispatches them synchronously so
// event order matches the engine's send order.
func (e *Engine) serve(ctx context.Context, conn net.PacketConn) {
	defer e.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.Warn("oscengine read failed", "err", err)
			continue
		}
		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			e.logger.Debug("oscengine packet dropped", "err", err)
			continue
		}
		e.handler.Dispatch(packet)
	}
}

// keepalive pings /live/test and drops the connection flag after too many
// unanswered pings.
func (e *Engine) keepalive(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.KeepaliveInterval)
	defer ticker.Stop()
	limit := time.Duration(e.cfg.KeepaliveMisses) * e.cfg.KeepaliveInterval
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.mu.Lock()
			lost := e.connected && now.Sub(e.lastPong) > limit
			if lost {
				e.connected = false
			}
			e.mu.Unlock()
			if lost {
				e.logger.Warn("oscengine engine lost", "misses", e.cfg.KeepaliveMisses)
				e.emit(ctx, schema.ChannelEngineConnection, false)
			}
			e.send(osc.NewMessage(addrTest))
		}
	}
}

func (e *Engine) emit(ctx context.Context, channel schema.Channel, payload any) {
	if err := e.events.Emit(ctx, channel, payload); err != nil {
		e.logger.Warn("oscengine emit failed", "channel", string(channel), "err", err)
	}
}
