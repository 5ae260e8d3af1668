package core

import (
	"context"
	"errors"
	"sync"

	"github.com/noamisr/maestro/internal/logx"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

// Source delivers raw events for one channel in send order.
type Source interface {
	Subscribe(ctx context.Context, channel schema.Channel) (<-chan schema.EventMessage, func(), error)
}

// ResyncFunc asks the engine to emit a fresh full-sync.
type ResyncFunc func(ctx context.Context) error

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the router logger.
func WithRouterLogger(logger pslog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResync registers the full-sync request issued after the engine
// reconnects.
func WithResync(fn ResyncFunc) RouterOption {
	return func(r *Router) {
		r.resync = fn
	}
}

// WithChannels overrides the subscribed channel set.
func WithChannels(channels ...schema.Channel) RouterOption {
	return func(r *Router) {
		r.channels = append([]schema.Channel(nil), channels...)
	}
}

type subscriptionKey struct {
	source  Source
	channel schema.Channel
}

// Router subscribes to engine channels and applies decoded events to the
// store one at a time.
type Router struct {
	store      StateWriter
	supervisor *Supervisor
	logger     pslog.Logger
	resync     ResyncFunc
	channels   []schema.Channel

	applyMu sync.Mutex
	lastSeq map[schema.Channel]uint64

	subMu sync.Mutex
	subs  map[subscriptionKey]func()
	wg    sync.WaitGroup
}

// NewRouter constructs a Router that owns store writes.
func NewRouter(store StateWriter, opts ...RouterOption) *Router {
	r := &Router{
		store:    store,
		logger:   pslog.Ctx(context.Background()),
		channels: schema.Channels(),
		lastSeq:  make(map[schema.Channel]uint64),
		subs:     make(map[subscriptionKey]func()),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.supervisor = NewSupervisor(store, r.logger)
	return r
}

// Supervisor returns the connection supervisor driven by this router.
func (r *Router) Supervisor() *Supervisor {
	return r.supervisor
}

// Start subscribes to every channel on each source. Pairs already
// subscribed are skipped, so calling Start again never duplicates delivery.
// Subscriptions end when ctx is done or Close is called.
func (r *Router) Start(ctx context.Context, sources ...Source) error {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, channel := range r.channels {
			key := subscriptionKey{source: src, channel: channel}
			if _, ok := r.subs[key]; ok {
				continue
			}
			stream, cancel, err := src.Subscribe(ctx, channel)
			if err != nil {
				return err
			}
			r.subs[key] = cancel
			r.wg.Add(1)
			go r.consume(ctx, channel, stream)
			logx.WithChannel(r.logger, channel).Debug("router subscribed")
		}
	}
	return nil
}

// Close cancels every subscription and waits for consumers to exit.
func (r *Router) Close() {
	r.subMu.Lock()
	for key, cancel := range r.subs {
		cancel()
		delete(r.subs, key)
	}
	r.subMu.Unlock()
	r.wg.Wait()
}

func (r *Router) consume(ctx context.Context, channel schema.Channel, stream <-chan schema.EventMessage) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			if msg.Channel == "" {
				msg.Channel = channel
			}
			if err := r.Apply(ctx, msg); err != nil && !errors.Is(err, ErrStaleEvent) {
				logx.WithChannel(r.logger, msg.Channel).Warn("router event rejected", "err", err)
			}
		}
	}
}

// ErrStaleEvent reports an event whose sequence number was already applied.
var ErrStaleEvent = errors.New("stale event")

// Apply decodes msg and applies it to the store atomically.
func (r *Router) Apply(ctx context.Context, msg schema.EventMessage) error {
	event, err := Decode(msg)
	if err != nil {
		return err
	}
	r.applyMu.Lock()
	if msg.Seq != 0 {
		if last := r.lastSeq[msg.Channel]; msg.Seq <= last {
			r.applyMu.Unlock()
			logx.WithChannel(r.logger, msg.Channel).Debug("router stale event dropped", "seq", msg.Seq, "last", last)
			return ErrStaleEvent
		}
		r.lastSeq[msg.Channel] = msg.Seq
	}
	transition := event.apply(r.store, r.supervisor)
	if transition != TransitionNone {
		// A reconnected engine starts its counters over.
		clear(r.lastSeq)
	}
	r.applyMu.Unlock()
	logx.WithChannel(r.logger, msg.Channel).Trace("router event applied", "seq", msg.Seq)
	if transition == TransitionUp {
		r.requestResync(ctx)
	}
	return nil
}

func (r *Router) requestResync(ctx context.Context) {
	if r.resync == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		if err := r.resync(ctx); err != nil {
			r.logger.Warn("router resync request failed", "err", err)
			return
		}
		r.logger.Debug("router resync requested")
	}()
}
