package core

import (
	"context"
	"sync"

	"github.com/noamisr/maestro/internal/eventbus"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

const changeTopic = "state"

// Store holds the last known engine state. The current snapshot is never
// mutated; every write swaps in a new one under mu.
type Store struct {
	mu     sync.Mutex
	cur    Snapshot
	bus    changeBus
	sink   ChangeSink
	logger pslog.Logger
}

// changeBus is the notification side of the store. *eventbus.Bus
// implements it.
type changeBus interface {
	Publish(ctx context.Context, topic string, value StateChange) error
	Subscribe(topic string) (<-chan StateChange, func())
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithChangeSink forwards every change to sink.
func WithChangeSink(sink ChangeSink) StoreOption {
	return func(s *Store) {
		s.sink = sink
	}
}

// WithStoreLogger sets the store logger.
func WithStoreLogger(logger pslog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs a Store holding default state.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		cur:    Snapshot{Transport: schema.DefaultTransport(), Tracks: []schema.TrackState{}},
		logger: pslog.Ctx(context.Background()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bus = eventbus.New[StateChange](s.logger)
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Clone()
}

// Transport returns the current transport state.
func (s *Store) Transport() schema.TransportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Transport
}

// Tracks returns a copy of the current track sequence.
func (s *Store) Tracks() []schema.TrackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.CloneTracks(s.cur.Tracks)
}

// Track returns the track with the given index.
func (s *Store) Track(index int) (schema.TrackState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, track := range s.cur.Tracks {
		if track.Index == index {
			return track.Clone(), true
		}
	}
	return schema.TrackState{}, false
}

// Connection returns the connection flags.
func (s *Store) Connection() schema.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Connection
}

// Subscribe returns a channel of state changes and a cancel func. Slow
// subscribers miss intermediate changes but every change carries the full
// snapshot.
func (s *Store) Subscribe() (<-chan StateChange, func()) {
	return s.bus.Subscribe(changeTopic)
}

// SetEngineConnected sets the engine flag without touching other state.
func (s *Store) SetEngineConnected(connected bool) {
	s.update(ChangeConnection, schema.ChannelEngineConnection, func(next *Snapshot) bool {
		if next.Connection.Engine == connected {
			return false
		}
		next.Connection.Engine = connected
		return true
	})
}

// SetSidecarConnected sets the sidecar flag.
func (s *Store) SetSidecarConnected(connected bool) {
	s.update(ChangeConnection, schema.ChannelSidecarConnection, func(next *Snapshot) bool {
		if next.Connection.Sidecar == connected {
			return false
		}
		next.Connection.Sidecar = connected
		return true
	})
}

// ResetDisconnected clears the engine flag and resets engine state in one
// step, so no reader sees a disconnected engine with live state.
func (s *Store) ResetDisconnected() {
	s.update(ChangeReset, schema.ChannelEngineConnection, func(next *Snapshot) bool {
		resetEngineState(next)
		next.Connection.Engine = false
		return true
	})
}

// MarkUnsynced flags the state as stale until the next full-sync.
func (s *Store) MarkUnsynced() {
	s.update(ChangeConnection, "", func(next *Snapshot) bool {
		if !next.Synced {
			return false
		}
		next.Synced = false
		return true
	})
}

// ApplyFullState replaces transport and tracks atomically.
func (s *Store) ApplyFullState(full schema.EngineFullState) {
	s.update(ChangeFullSync, schema.ChannelEngineFullState, func(next *Snapshot) bool {
		next.Transport = full.TransportState
		next.Tracks = schema.CloneTracks(full.Tracks)
		next.NumScenes = full.NumScenes
		next.Synced = true
		return true
	})
}

// ReplaceTracks replaces the whole track sequence.
func (s *Store) ReplaceTracks(tracks []schema.TrackState) {
	s.update(ChangeTracks, schema.ChannelTracksUpdated, func(next *Snapshot) bool {
		next.Tracks = schema.CloneTracks(tracks)
		return true
	})
}

// ReplaceTrack replaces the track with a matching index. It reports false
// when no such track is known.
func (s *Store) ReplaceTrack(track schema.TrackState) bool {
	found := false
	s.update(ChangeTracks, schema.ChannelTrackState, func(next *Snapshot) bool {
		for i, cur := range next.Tracks {
			if cur.Index != track.Index {
				continue
			}
			tracks := make([]schema.TrackState, len(next.Tracks))
			copy(tracks, next.Tracks)
			tracks[i] = track.Clone()
			next.Tracks = tracks
			found = true
			return true
		}
		return false
	})
	return found
}

// SetPlaying patches isPlaying.
func (s *Store) SetPlaying(playing bool) {
	s.update(ChangeTransport, schema.ChannelTransportState, func(next *Snapshot) bool {
		next.Transport.IsPlaying = playing
		return true
	})
}

// SetTempo patches tempo.
func (s *Store) SetTempo(bpm float64) {
	s.update(ChangeTransport, schema.ChannelTempoChanged, func(next *Snapshot) bool {
		next.Transport.Tempo = bpm
		return true
	})
}

// SetCurrentTime patches currentTime.
func (s *Store) SetCurrentTime(beats float64) {
	s.update(ChangeTransport, schema.ChannelSongTime, func(next *Snapshot) bool {
		next.Transport.CurrentTime = beats
		return true
	})
}

// SetLoop patches the loop fields.
func (s *Store) SetLoop(loop schema.LoopStatePayload) {
	s.update(ChangeTransport, schema.ChannelLoopState, func(next *Snapshot) bool {
		next.Transport.LoopEnabled = loop.LoopEnabled
		next.Transport.LoopStart = loop.LoopStart
		next.Transport.LoopLength = loop.LoopLength
		return true
	})
}

// Reset restores transport and tracks to defaults. Connection flags are
// kept since they reflect link status, not engine state.
func (s *Store) Reset() {
	s.update(ChangeReset, "", func(next *Snapshot) bool {
		resetEngineState(next)
		return true
	})
}

func resetEngineState(next *Snapshot) {
	next.Transport = schema.DefaultTransport()
	next.Tracks = []schema.TrackState{}
	next.NumScenes = 0
	next.Synced = false
}

// update applies fn to a copy of the current snapshot and publishes the
// result. Notification happens under mu so observers see changes in order.
func (s *Store) update(kind ChangeKind, channel schema.Channel, fn func(next *Snapshot) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur
	if !fn(&next) {
		return
	}
	next.Version = s.cur.Version + 1
	s.cur = next
	change := StateChange{Kind: kind, Channel: channel, Snapshot: next.Clone()}
	if err := s.bus.Publish(context.Background(), changeTopic, change); err != nil {
		s.logger.Trace("store change notify failed", "kind", string(kind), "version", next.Version, "err", err)
	}
	if s.sink != nil {
		s.sink.OnStateChange(change)
	}
}
