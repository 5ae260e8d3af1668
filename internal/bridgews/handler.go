package bridgews

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

// Source delivers channel events to forward. *eventbus.Events satisfies it.
type Source interface {
	Subscribe(ctx context.Context, channel schema.Channel) (<-chan schema.EventMessage, func(), error)
}

// Retainer reports the latest message of a channel. *eventbus.Events
// retains the connection channels.
type Retainer interface {
	Last(channel schema.Channel) (schema.EventMessage, bool)
}

// Handler serves an engine to bridge clients. Each connection may invoke
// operations and subscribe to channels.
type Handler struct {
	invoker remote.Invoker
	source  Source
	logger  pslog.Logger
	accept  *websocket.AcceptOptions
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger pslog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAcceptOptions sets the WebSocket accept options.
func WithAcceptOptions(opts *websocket.AcceptOptions) HandlerOption {
	return func(h *Handler) {
		h.accept = opts
	}
}

// NewHandler constructs a Handler for invoker and source.
func NewHandler(invoker remote.Invoker, source Source, opts ...HandlerOption) *Handler {
	h := &Handler{
		invoker: invoker,
		source:  source,
		logger:  pslog.Ctx(context.Background()),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves frames until the peer leaves.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.logger.Warn("bridgews accept failed", "err", err)
		return
	}
	conn.SetReadLimit(readLimit)
	ctx, cancel := context.WithCancel(r.Context())
	sess := &serverSession{handler: h, conn: conn, subs: make(map[schema.Channel]func())}
	log := h.logger.With("remote", r.RemoteAddr)
	log.Info("bridgews peer connected")
	defer func() {
		cancel()
		sess.close()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		log.Info("bridgews peer disconnected")
	}()

	for {
		var frame Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug("bridgews read failed", "err", err)
			}
			return
		}
		switch frame.Type {
		case FrameInvoke:
			sess.wg.Add(1)
			go sess.invoke(ctx, frame)
		case FrameSubscribe:
			sess.subscribe(ctx, frame.Channel)
		default:
			log.Debug("bridgews frame ignored", "type", string(frame.Type))
		}
	}
}

type serverSession struct {
	handler *Handler
	conn    *websocket.Conn

	mu   sync.Mutex
	subs map[schema.Channel]func()
	wg   sync.WaitGroup
}

func (s *serverSession) invoke(ctx context.Context, frame Frame) {
	defer s.wg.Done()
	var reply json.RawMessage
	out := Frame{Type: FrameResult, ID: frame.ID}
	if err := s.handler.invoker.Invoke(ctx, frame.Op, frame.Args, &reply); err != nil {
		out = errorFrame(frame.ID, err)
		s.handler.logger.Debug("bridgews invoke failed", "op", frame.Op, "err", err)
	} else {
		out.Result = reply
	}
	if err := wsjson.Write(ctx, s.conn, out); err != nil && ctx.Err() == nil {
		s.handler.logger.Warn("bridgews result write failed", "op", frame.Op, "err", err)
	}
}

func (s *serverSession) subscribe(ctx context.Context, channel schema.Channel) {
	if _, err := schema.ParseChannel(string(channel)); err != nil {
		s.handler.logger.Debug("bridgews subscribe rejected", "channel", string(channel), "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[channel]; ok {
		return
	}
	stream, cancel, err := s.handler.source.Subscribe(ctx, channel)
	if err != nil {
		s.handler.logger.Warn("bridgews subscribe failed", "channel", string(channel), "err", err)
		return
	}
	s.subs[channel] = cancel
	// A peer joining after the engine connected still learns its state.
	if retainer, ok := s.handler.source.(Retainer); ok {
		if msg, ok := retainer.Last(channel); ok {
			if err := wsjson.Write(ctx, s.conn, eventFrame(msg)); err != nil {
				s.handler.logger.Debug("bridgews replay failed", "channel", string(channel), "err", err)
			}
		}
	}
	s.wg.Add(1)
	go s.forward(ctx, stream)
}

func (s *serverSession) forward(ctx context.Context, stream <-chan schema.EventMessage) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, s.conn, eventFrame(msg)); err != nil {
				return
			}
		}
	}
}

func (s *serverSession) close() {
	s.mu.Lock()
	for channel, cancel := range s.subs {
		cancel()
		delete(s.subs, channel)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
