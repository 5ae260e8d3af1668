package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
)

// DefaultDepth is the per-subscriber buffer size.
const DefaultDepth = 256

// Option configures a Bus.
type Option func(*options)

type options struct {
	depth    int
	lossless bool
}

// WithDepth sets the per-subscriber buffer size.
func WithDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.depth = depth
		}
	}
}

// Lossless makes Publish wait for slow subscribers instead of dropping.
func Lossless() Option {
	return func(o *options) {
		o.lossless = true
	}
}

type subscriber[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once
}

// Bus fanouts values to per-topic subscribers.
type Bus[T any] struct {
	mu       sync.RWMutex
	subs     map[string]map[*subscriber[T]]struct{}
	log      pslog.Logger
	depth    int
	lossless bool
}

// New constructs a Bus.
func New[T any](logger pslog.Logger, opts ...Option) *Bus[T] {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	o := options{depth: DefaultDepth}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bus[T]{
		subs:     make(map[string]map[*subscriber[T]]struct{}),
		log:      logger,
		depth:    o.depth,
		lossless: o.lossless,
	}
}

// Subscribe registers a subscriber for the topic and returns a channel + cancel.
// The channel is closed by cancel.
func (b *Bus[T]) Subscribe(topic string) (<-chan T, func()) {
	if b == nil {
		return nil, func() {}
	}
	sub := &subscriber[T]{ch: make(chan T, b.depth), done: make(chan struct{})}
	b.mu.Lock()
	topicSubs := b.subs[topic]
	if topicSubs == nil {
		topicSubs = make(map[*subscriber[T]]struct{})
		b.subs[topic] = topicSubs
	}
	topicSubs[sub] = struct{}{}
	count := len(topicSubs)
	b.mu.Unlock()
	b.log.With("topic", topic).Debug("eventbus subscribe", "subs", count)
	return sub.ch, func() {
		sub.once.Do(func() {
			close(sub.done)
			b.mu.Lock()
			if subs := b.subs[topic]; subs != nil {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(b.subs, topic)
				}
			}
			close(sub.ch)
			b.mu.Unlock()
			b.log.With("topic", topic).Debug("eventbus unsubscribe")
		})
	}
}

// Subscribers reports the subscriber count for a topic.
func (b *Bus[T]) Subscribers(topic string) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Publish delivers value to every subscriber of topic. A lossy bus drops the
// value for subscribers whose buffer is full; a lossless bus waits until the
// subscriber accepts, unsubscribes, or ctx is done.
func (b *Bus[T]) Publish(ctx context.Context, topic string, value T) error {
	if b == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	topicSubs := b.subs[topic]
	if len(topicSubs) == 0 {
		return nil
	}
	dropped := 0
	for sub := range topicSubs {
		if b.lossless {
			select {
			case sub.ch <- value:
			case <-sub.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		select {
		case sub.ch <- value:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.With("topic", topic).Trace("eventbus dropped", "count", dropped)
	}
	return nil
}
