package schema

// TransportState is the engine-authoritative transport snapshot.
type TransportState struct {
	IsPlaying   bool    `json:"isPlaying"`
	Tempo       float64 `json:"tempo"`
	CurrentTime float64 `json:"currentTime"`
	LoopEnabled bool    `json:"loopEnabled"`
	LoopStart   float64 `json:"loopStart"`
	LoopLength  float64 `json:"loopLength"`
}

// Transport defaults applied on startup and after an engine disconnect.
const (
	DefaultTempo      = 120.0
	DefaultLoopStart  = 0.0
	DefaultLoopLength = 4.0
)

// DefaultTransport returns the transport state used before any engine sync.
func DefaultTransport() TransportState {
	return TransportState{
		Tempo:      DefaultTempo,
		LoopStart:  DefaultLoopStart,
		LoopLength: DefaultLoopLength,
	}
}

// ClipState describes one clip slot. TrackIndex and SceneIndex form its key.
type ClipState struct {
	TrackIndex  int     `json:"trackIndex"`
	SceneIndex  int     `json:"sceneIndex"`
	Name        string  `json:"name"`
	Color       int     `json:"color"`
	Length      float64 `json:"length"`
	IsPlaying   bool    `json:"isPlaying"`
	IsTriggered bool    `json:"isTriggered"`
}

// TrackState describes one track. Index is the stable identity.
type TrackState struct {
	Index      int         `json:"index"`
	Name       string      `json:"name"`
	Volume     float64     `json:"volume"`
	Panning    float64     `json:"panning"`
	Mute       bool        `json:"mute"`
	Solo       bool        `json:"solo"`
	Arm        bool        `json:"arm"`
	Color      int         `json:"color"`
	MeterLevel float64     `json:"meterLevel"`
	Clips      []ClipState `json:"clips"`
}

// Clone returns a deep copy of the track.
func (t TrackState) Clone() TrackState {
	if t.Clips != nil {
		t.Clips = append([]ClipState(nil), t.Clips...)
	}
	return t
}

// CloneTracks returns a deep copy of a track sequence. A nil input yields an
// empty, non-nil slice.
func CloneTracks(tracks []TrackState) []TrackState {
	out := make([]TrackState, len(tracks))
	for i, track := range tracks {
		out[i] = track.Clone()
	}
	return out
}

// EngineFullState is the complete snapshot sent after (re)connect.
type EngineFullState struct {
	TransportState
	NumTracks int          `json:"numTracks"`
	NumScenes int          `json:"numScenes"`
	Tracks    []TrackState `json:"tracks"`
}

// ConnectionStatus reports engine and sidecar reachability independently.
type ConnectionStatus struct {
	Engine  bool `json:"engine"`
	Sidecar bool `json:"sidecar"`
}
