package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/noamisr/maestro/core"
	"github.com/noamisr/maestro/internal/logx"
	"github.com/noamisr/maestro/schema"
)

// Stream event types.
const (
	EventSnapshot = "snapshot"
	EventState    = "state"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64          `json:"seq"`
	Type      string          `json:"type"`
	Kind      core.ChangeKind `json:"kind,omitempty"`
	Channel   schema.Channel  `json:"channel,omitempty"`
	State     core.Snapshot   `json:"state"`
	View      core.View       `json:"view"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hub keeps a bounded history of state changes and broadcasts them to
// stream subscribers.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 256
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
	}
}

// OnStateChange implements core.ChangeSink.
func (h *Hub) OnStateChange(change core.StateChange) {
	logx.Ctx(context.Background()).Trace("hub state change", "kind", change.Kind, "channel", string(change.Channel))
	h.publish(StreamEvent{
		Type:      EventState,
		Kind:      change.Kind,
		Channel:   change.Channel,
		State:     change.Snapshot,
		View:      core.ViewOf(change.Snapshot),
		Timestamp: time.Now(),
	})
}

// Subscribe registers a stream subscriber. seq is the last sequence number
// published before the subscription started.
func (h *Hub) Subscribe() (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = struct{}{}
	seq := h.seq
	log := logx.Ctx(context.Background())
	log.Info("hub subscribe", "subs", len(h.subs), "seq", seq)
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq
}

// Replay returns retained events with after < seq <= upto.
func (h *Hub) Replay(after, upto uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after && event.Seq <= upto {
			events = append(events, event)
		}
	}
	logx.Ctx(context.Background()).Debug("hub replay", "after", after, "count", len(events))
	return events
}

// Seq returns the last published sequence number.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	dropped := 0
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		logx.Ctx(context.Background()).Warn("hub event dropped", "kind", event.Kind, "dropped", dropped)
	}
}
