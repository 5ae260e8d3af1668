package oscengine

import (
	"github.com/hypebeast/go-osc/osc"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
)

// AbletonOSC addresses.
const (
	addrTest            = "/live/test"
	addrStartPlaying    = "/live/song/start_playing"
	addrStopPlaying     = "/live/song/stop_playing"
	addrContinuePlaying = "/live/song/continue_playing"
	addrSetRecordMode   = "/live/song/set/record_mode"
	addrSetTempo        = "/live/song/set/tempo"
	addrSetLoop         = "/live/song/set/loop"
	addrTrackVolume     = "/live/track/set/volume"
	addrTrackMute       = "/live/track/set/mute"
	addrTrackSolo       = "/live/track/set/solo"
	addrTrackPanning    = "/live/track/set/panning"
	addrClipFire        = "/live/clip/fire"
	addrClipStop        = "/live/clip/stop"
	addrLoadSample      = "/live/clip_slot/load_sample"

	addrGetTempo      = "/live/song/get/tempo"
	addrGetIsPlaying  = "/live/song/get/is_playing"
	addrGetSongTime   = "/live/song/get/current_song_time"
	addrGetBeat       = "/live/song/get/beat"
	addrGetRecordMode = "/live/song/get/record_mode"
	addrGetLoop       = "/live/song/get/loop"
	addrGetLoopStart  = "/live/song/get/loop_start"
	addrGetLoopLength = "/live/song/get/loop_length"
	addrGetNumTracks  = "/live/song/get/num_tracks"
	addrGetNumScenes  = "/live/song/get/num_scenes"
	addrGetTrackData  = "/live/song/get/track_data"
	addrListenTempo   = "/live/song/start_listen/tempo"
	addrListenPlaying = "/live/song/start_listen/is_playing"
	addrListenBeat    = "/live/song/start_listen/beat"
	addrListenRecord  = "/live/song/start_listen/record_mode"
	addrListenLoop    = "/live/song/start_listen/loop"
)

// trackProperties is the property list requested with track_data. Replies
// carry values in this order for every track in range.
var trackProperties = []string{
	"track.name",
	"track.volume",
	"track.panning",
	"track.mute",
	"track.solo",
	"track.arm",
	"track.color",
}

// Toggles carries the current flags needed to encode toggle operations.
type Toggles struct {
	Recording   bool
	LoopEnabled bool
}

// Encode maps an operation to the OSC message that performs it.
func Encode(op string, args remote.Args, toggles Toggles) (*osc.Message, error) {
	switch op {
	case remote.OpPlay:
		return osc.NewMessage(addrStartPlaying), nil
	case remote.OpStop:
		return osc.NewMessage(addrStopPlaying), nil
	case remote.OpContinuePlaying:
		return osc.NewMessage(addrContinuePlaying), nil
	case remote.OpToggleRecord:
		return osc.NewMessage(addrSetRecordMode, boolInt(!toggles.Recording)), nil
	case remote.OpToggleLoop:
		return osc.NewMessage(addrSetLoop, boolInt(!toggles.LoopEnabled)), nil
	case remote.OpSetTempo:
		bpm, err := args.Float(remote.ArgBPM)
		if err != nil {
			return nil, err
		}
		return osc.NewMessage(addrSetTempo, float32(bpm)), nil
	case remote.OpSetTrackVolume:
		return trackFloat(args, addrTrackVolume, remote.ArgVolume)
	case remote.OpSetTrackPan:
		return trackFloat(args, addrTrackPanning, remote.ArgPan)
	case remote.OpSetTrackMute:
		return trackBool(args, addrTrackMute, remote.ArgMute)
	case remote.OpSetTrackSolo:
		return trackBool(args, addrTrackSolo, remote.ArgSolo)
	case remote.OpFireClip:
		return slot(args, addrClipFire)
	case remote.OpStopClip:
		return slot(args, addrClipStop)
	case remote.OpInsertSample:
		msg, err := slot(args, addrLoadSample)
		if err != nil {
			return nil, err
		}
		path, err := args.String(remote.ArgFilePath)
		if err != nil {
			return nil, err
		}
		msg.Append(path)
		return msg, nil
	}
	return nil, remote.NewError(remote.ErrorRejected, op, schema.ErrUnsupportedOperation.Error())
}

func trackFloat(args remote.Args, addr, name string) (*osc.Message, error) {
	track, err := args.Int(remote.ArgTrackIndex)
	if err != nil {
		return nil, err
	}
	v, err := args.Float(name)
	if err != nil {
		return nil, err
	}
	return osc.NewMessage(addr, int32(track), float32(v)), nil
}

func trackBool(args remote.Args, addr, name string) (*osc.Message, error) {
	track, err := args.Int(remote.ArgTrackIndex)
	if err != nil {
		return nil, err
	}
	v, err := args.Bool(name)
	if err != nil {
		return nil, err
	}
	return osc.NewMessage(addr, int32(track), boolInt(v)), nil
}

func slot(args remote.Args, addr string) (*osc.Message, error) {
	track, err := args.Int(remote.ArgTrackIndex)
	if err != nil {
		return nil, err
	}
	scene, err := args.Int(remote.ArgSceneIndex)
	if err != nil {
		return nil, err
	}
	return osc.NewMessage(addr, int32(track), int32(scene)), nil
}

// syncMessages requests everything needed to rebuild a full-state snapshot.
func syncMessages() []*osc.Message {
	return []*osc.Message{
		osc.NewMessage(addrGetTempo),
		osc.NewMessage(addrGetIsPlaying),
		osc.NewMessage(addrGetSongTime),
		osc.NewMessage(addrGetRecordMode),
		osc.NewMessage(addrGetLoop),
		osc.NewMessage(addrGetLoopStart),
		osc.NewMessage(addrGetLoopLength),
		osc.NewMessage(addrGetNumScenes),
		osc.NewMessage(addrGetNumTracks),
	}
}

// listenMessages subscribes to live song updates.
func listenMessages() []*osc.Message {
	return []*osc.Message{
		osc.NewMessage(addrListenTempo),
		osc.NewMessage(addrListenPlaying),
		osc.NewMessage(addrListenBeat),
		osc.NewMessage(addrListenRecord),
		osc.NewMessage(addrListenLoop),
	}
}

func trackDataMessage(numTracks int) *osc.Message {
	msg := osc.NewMessage(addrGetTrackData, int32(0), int32(numTracks))
	for _, prop := range trackProperties {
		msg.Append(prop)
	}
	return msg
}

func boolInt(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
