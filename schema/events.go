package schema

import "encoding/json"

// Channel names an engine event stream.
type Channel string

const (
	// ChannelEngineConnection carries a bool engine reachability flag.
	ChannelEngineConnection Channel = "engine-connection-changed"
	// ChannelSidecarConnection carries a bool sidecar reachability flag.
	ChannelSidecarConnection Channel = "sidecar-connection-changed"
	// ChannelTracksUpdated carries the full track sequence.
	ChannelTracksUpdated Channel = "tracks-updated"
	// ChannelTransportState carries {is_playing}.
	ChannelTransportState Channel = "transport-state"
	// ChannelTempoChanged carries the tempo as a float.
	ChannelTempoChanged Channel = "tempo-changed"
	// ChannelSongTime carries the current song time in beats.
	ChannelSongTime Channel = "song-time"
	// ChannelEngineFullState carries an EngineFullState snapshot.
	ChannelEngineFullState Channel = "engine-full-state"
	// ChannelTrackState carries a single TrackState replacement.
	ChannelTrackState Channel = "track-state"
	// ChannelLoopState carries a LoopStatePayload.
	ChannelLoopState Channel = "loop-state"
)

// Channels lists every channel the router subscribes to, in subscription order.
func Channels() []Channel {
	return []Channel{
		ChannelEngineConnection,
		ChannelSidecarConnection,
		ChannelEngineFullState,
		ChannelTracksUpdated,
		ChannelTrackState,
		ChannelTransportState,
		ChannelTempoChanged,
		ChannelSongTime,
		ChannelLoopState,
	}
}

// EventMessage is one payload delivered on a channel. Seq is an optional
// per-channel monotonic stamp; zero means unstamped.
type EventMessage struct {
	Channel Channel         `json:"channel"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// TransportStatePayload is the transport-state wire payload.
type TransportStatePayload struct {
	IsPlaying bool `json:"is_playing"`
}

// LoopStatePayload is the loop-state wire payload.
type LoopStatePayload struct {
	LoopEnabled bool    `json:"loopEnabled"`
	LoopStart   float64 `json:"loopStart"`
	LoopLength  float64 `json:"loopLength"`
}

// NewEventMessage marshals payload into an EventMessage.
func NewEventMessage(channel Channel, payload any) (EventMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return EventMessage{}, err
	}
	return EventMessage{Channel: channel, Payload: data}, nil
}
