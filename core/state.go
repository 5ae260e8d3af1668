package core

import "github.com/noamisr/maestro/schema"

// Snapshot is the locally known engine state at one point in time.
// Synced is false until a full-sync arrives after startup or reconnect.
type Snapshot struct {
	Transport  schema.TransportState   `json:"transport"`
	Tracks     []schema.TrackState     `json:"tracks"`
	NumScenes  int                     `json:"numScenes"`
	Connection schema.ConnectionStatus `json:"connection"`
	Synced     bool                    `json:"synced"`
	Version    uint64                  `json:"version"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	s.Tracks = schema.CloneTracks(s.Tracks)
	return s
}

// ChangeKind classifies a state mutation.
type ChangeKind string

const (
	// ChangeTransport marks a transport field patch.
	ChangeTransport ChangeKind = "transport"
	// ChangeTracks marks a track sequence or single track replacement.
	ChangeTracks ChangeKind = "tracks"
	// ChangeConnection marks a connection flag update.
	ChangeConnection ChangeKind = "connection"
	// ChangeFullSync marks an atomic whole-aggregate replacement.
	ChangeFullSync ChangeKind = "full-sync"
	// ChangeReset marks a reset to defaults.
	ChangeReset ChangeKind = "reset"
)

// StateChange is pushed to observers after every mutation. Snapshot is the
// state after the change and must be treated as read-only.
type StateChange struct {
	Kind     ChangeKind     `json:"kind"`
	Channel  schema.Channel `json:"channel,omitempty"`
	Snapshot Snapshot       `json:"snapshot"`
}

// StateReader is the read-only handle handed to consumers.
type StateReader interface {
	Snapshot() Snapshot
	Transport() schema.TransportState
	Tracks() []schema.TrackState
	Track(index int) (schema.TrackState, bool)
	Connection() schema.ConnectionStatus
	Subscribe() (<-chan StateChange, func())
}

// StateWriter is the mutation handle owned by the router and supervisor.
type StateWriter interface {
	StateReader
	SetEngineConnected(connected bool)
	SetSidecarConnected(connected bool)
	ResetDisconnected()
	MarkUnsynced()
	ApplyFullState(full schema.EngineFullState)
	ReplaceTracks(tracks []schema.TrackState)
	ReplaceTrack(track schema.TrackState) bool
	SetPlaying(playing bool)
	SetTempo(bpm float64)
	SetCurrentTime(beats float64)
	SetLoop(loop schema.LoopStatePayload)
	Reset()
}

// ChangeSink receives state changes in mutation order. Implementations must
// not block.
type ChangeSink interface {
	OnStateChange(change StateChange)
}
