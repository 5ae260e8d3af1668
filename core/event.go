package core

import (
	"encoding/json"
	"fmt"

	"github.com/noamisr/maestro/schema"
)

// Event is a decoded channel payload. The set of implementations is closed.
type Event interface {
	Channel() schema.Channel
	apply(w StateWriter, sup *Supervisor) Transition
}

// EngineConnectionEvent reports engine reachability.
type EngineConnectionEvent struct{ Connected bool }

// SidecarConnectionEvent reports sidecar reachability.
type SidecarConnectionEvent struct{ Connected bool }

// FullStateEvent carries a full-sync snapshot.
type FullStateEvent struct{ State schema.EngineFullState }

// TracksUpdatedEvent carries the full track sequence.
type TracksUpdatedEvent struct{ Tracks []schema.TrackState }

// TrackStateEvent carries one track replacement.
type TrackStateEvent struct{ Track schema.TrackState }

// TransportStateEvent carries the playing flag.
type TransportStateEvent struct{ IsPlaying bool }

// TempoChangedEvent carries the tempo in BPM.
type TempoChangedEvent struct{ Tempo float64 }

// SongTimeEvent carries the current song time in beats.
type SongTimeEvent struct{ Beats float64 }

// LoopStateEvent carries the loop window.
type LoopStateEvent struct{ Loop schema.LoopStatePayload }

func (EngineConnectionEvent) Channel() schema.Channel  { return schema.ChannelEngineConnection }
func (SidecarConnectionEvent) Channel() schema.Channel { return schema.ChannelSidecarConnection }
func (FullStateEvent) Channel() schema.Channel         { return schema.ChannelEngineFullState }
func (TracksUpdatedEvent) Channel() schema.Channel     { return schema.ChannelTracksUpdated }
func (TrackStateEvent) Channel() schema.Channel        { return schema.ChannelTrackState }
func (TransportStateEvent) Channel() schema.Channel    { return schema.ChannelTransportState }
func (TempoChangedEvent) Channel() schema.Channel      { return schema.ChannelTempoChanged }
func (SongTimeEvent) Channel() schema.Channel          { return schema.ChannelSongTime }
func (LoopStateEvent) Channel() schema.Channel         { return schema.ChannelLoopState }

func (e EngineConnectionEvent) apply(_ StateWriter, sup *Supervisor) Transition {
	return sup.SetEngine(e.Connected)
}

func (e SidecarConnectionEvent) apply(_ StateWriter, sup *Supervisor) Transition {
	sup.SetSidecar(e.Connected)
	return TransitionNone
}

func (e FullStateEvent) apply(w StateWriter, _ *Supervisor) Transition {
	w.ApplyFullState(e.State)
	return TransitionNone
}

func (e TracksUpdatedEvent) apply(w StateWriter, _ *Supervisor) Transition {
	w.ReplaceTracks(e.Tracks)
	return TransitionNone
}

func (e TrackStateEvent) apply(w StateWriter, _ *Supervisor) Transition {
	w.ReplaceTrack(e.Track)
	return TransitionNone
}

func (e TransportStateEvent) apply(w StateWriter, _ *Supervisor) Transition {
	w.SetPlaying(e.IsPlaying)
	return TransitionNone
}

func (e TempoChangedEvent) apply(w StateWriter, _ *Supervisor) Transition {
	w.SetTempo(e.Tempo)
	return TransitionNone
}

func (e SongTimeEvent) apply(w StateWriter, _ *Supervisor) Transition {
	w.SetCurrentTime(e.Beats)
	return TransitionNone
}

func (e LoopStateEvent) apply(w StateWriter, _ *Supervisor) Transition {
	w.SetLoop(e.Loop)
	return TransitionNone
}

// Decode turns a raw channel message into its typed event.
func Decode(msg schema.EventMessage) (Event, error) {
	switch msg.Channel {
	case schema.ChannelEngineConnection:
		var v bool
		if err := decodePayload(msg, &v); err != nil {
			return nil, err
		}
		return EngineConnectionEvent{Connected: v}, nil
	case schema.ChannelSidecarConnection:
		var v bool
		if err := decodePayload(msg, &v); err != nil {
			return nil, err
		}
		return SidecarConnectionEvent{Connected: v}, nil
	case schema.ChannelEngineFullState:
		var v schema.EngineFullState
		if err := decodePayload(msg, &v); err != nil {
			return nil, err
		}
		return FullStateEvent{State: v}, nil
	case schema.ChannelTracksUpdated:
		var v []schema.TrackState
		if err := decodePayload(msg, &v); err != nil {
			return nil, err
		}
		return TracksUpdatedEvent{Tracks: v}, nil
	case schema.ChannelTrackState:
		var v schema.TrackState
		if err := decodePayload(msg, &v); err != nil {
			return nil, err
		}
		return TrackStateEvent{Track: v}, nil
	case schema.ChannelTransportState:
		var v schema.TransportStatePayload
		if err := decodePayload(msg, &v); err != nil {
			return nil, err
		}
		return TransportStateEvent{IsPlaying: v.IsPlaying}, nil
	case schema.ChannelTempoChanged:
		var v float64
		if err := decodePayload(msg, &v); err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("%w: %s: tempo %v not positive", schema.ErrInvalidPayload, msg.Channel, v)
		}
		return TempoChangedEvent{Tempo: v}, nil
	case schema.ChannelSongTime:
		var v float64
		if err := decodePayload(msg, &v); err != nil {
			return nil, err
		}
		return SongTimeEvent{Beats: v}, nil
	case schema.ChannelLoopState:
		var v schema.LoopStatePayload
		if err := decodePayload(msg, &v); err != nil {
			return nil, err
		}
		return LoopStateEvent{Loop: v}, nil
	default:
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownChannel, msg.Channel)
	}
}

func decodePayload(msg schema.EventMessage, out any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%w: %s: empty", schema.ErrInvalidPayload, msg.Channel)
	}
	if err := json.Unmarshal(msg.Payload, out); err != nil {
		return fmt.Errorf("%w: %s: %v", schema.ErrInvalidPayload, msg.Channel, err)
	}
	return nil
}
