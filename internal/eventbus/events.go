package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

// Events is a lossless channel-keyed source of engine events. Engine
// backends emit into it and the router subscribes to it.
type Events struct {
	bus  *Bus[schema.EventMessage]
	mu   sync.Mutex
	seq  map[schema.Channel]uint64
	last map[schema.Channel]schema.EventMessage
}

// retained channels keep their latest message for late subscribers.
var retained = map[schema.Channel]bool{
	schema.ChannelEngineConnection:  true,
	schema.ChannelSidecarConnection: true,
}

// NewEvents constructs an Events source.
func NewEvents(logger pslog.Logger, opts ...Option) *Events {
	opts = append([]Option{Lossless()}, opts...)
	return &Events{
		bus: New[schema.EventMessage](logger, opts...),
		seq:  make(map[schema.Channel]uint64),
		last: make(map[schema.Channel]schema.EventMessage),
	}
}

// Last returns the latest message published on a connection channel. Other
// channels are not retained.
func (e *Events) Last(channel schema.Channel) (schema.EventMessage, bool) {
	if e == nil {
		return schema.EventMessage{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, ok := e.last[channel]
	return msg, ok
}

// Subscribe returns a stream of events for channel.
func (e *Events) Subscribe(ctx context.Context, channel schema.Channel) (<-chan schema.EventMessage, func(), error) {
	if e == nil {
		return nil, func() {}, fmt.Errorf("eventbus: nil events")
	}
	ch, cancel := e.bus.Subscribe(string(channel))
	return ch, cancel, nil
}

// Emit marshals payload and publishes it on channel with the next sequence
// number for that channel.
func (e *Events) Emit(ctx context.Context, channel schema.Channel, payload any) error {
	msg, err := schema.NewEventMessage(channel, payload)
	if err != nil {
		return fmt.Errorf("eventbus: encode %s: %w", channel, err)
	}
	return e.Publish(ctx, msg)
}

// Publish forwards a pre-encoded message, stamping a sequence number when
// the message has none.
func (e *Events) Publish(ctx context.Context, msg schema.EventMessage) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	if msg.Seq == 0 {
		e.seq[msg.Channel]++
		msg.Seq = e.seq[msg.Channel]
	} else if msg.Seq > e.seq[msg.Channel] {
		e.seq[msg.Channel] = msg.Seq
	}
	if retained[msg.Channel] {
		e.last[msg.Channel] = msg
	}
	e.mu.Unlock()
	return e.bus.Publish(ctx, string(msg.Channel), msg)
}
