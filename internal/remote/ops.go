package remote

// Operation names understood by every engine backend.
const (
	OpPlay               = "play"
	OpStop               = "stop"
	OpContinuePlaying    = "continue_playing"
	OpToggleRecord       = "toggle_record"
	OpSetTempo           = "set_tempo"
	OpToggleLoop         = "toggle_loop"
	OpSetTrackVolume     = "set_track_volume"
	OpSetTrackMute       = "set_track_mute"
	OpSetTrackSolo       = "set_track_solo"
	OpSetTrackPan        = "set_track_pan"
	OpFireClip           = "fire_clip"
	OpStopClip           = "stop_clip"
	OpSearchByText       = "search_by_text"
	OpSearchBySimilarity = "search_by_similarity"
	OpInsertSample       = "insert_sample"
	OpIndexDirectory     = "index_directory"
	OpRequestFullState   = "request_full_state"
	OpGetEngineParams    = "get_engine_params"
	OpSetEngineParam     = "set_engine_param"
)

// Argument names used in invoke payloads.
const (
	ArgBPM        = "bpm"
	ArgTrackIndex = "trackIndex"
	ArgSceneIndex = "sceneIndex"
	ArgVolume     = "volume"
	ArgMute       = "mute"
	ArgSolo       = "solo"
	ArgPan        = "pan"
	ArgQuery      = "query"
	ArgNResults   = "nResults"
	ArgFilePath   = "filePath"
	ArgDirectory  = "directory"
	ArgID         = "id"
	ArgValue      = "value"
)

var idempotentOps = map[string]bool{
	OpSetTempo:           true,
	OpSetTrackVolume:     true,
	OpSetTrackMute:       true,
	OpSetTrackSolo:       true,
	OpSetTrackPan:        true,
	OpSearchByText:       true,
	OpSearchBySimilarity: true,
	OpIndexDirectory:     true,
	OpRequestFullState:   true,
	OpGetEngineParams:    true,
	OpSetEngineParam:     true,
}

// Idempotent reports whether op may be retried after a failure without
// changing the outcome. Toggles, transport starts and inserts are not.
func Idempotent(op string) bool {
	return idempotentOps[op]
}

// SearchOps lists the operations served by the search sidecar.
func SearchOps() []string {
	return []string{OpSearchByText, OpSearchBySimilarity, OpIndexDirectory}
}
