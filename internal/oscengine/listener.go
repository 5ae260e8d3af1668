package oscengine

import (
	"context"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/noamisr/maestro/schema"
)

func (e *Engine) dispatcher() *osc.StandardDispatcher {
	d := osc.NewStandardDispatcher()
	handlers := map[string]osc.HandlerFunc{
		addrTest:          e.onPong,
		addrGetIsPlaying:  e.onIsPlaying,
		addrGetTempo:      e.onTempo,
		addrGetSongTime:   e.onSongTime,
		addrGetBeat:       e.onSongTime,
		addrGetRecordMode: e.onRecordMode,
		addrGetLoop:       e.onLoop,
		addrGetLoopStart:  e.onLoop,
		addrGetLoopLength: e.onLoop,
		addrGetNumScenes:  e.onNumScenes,
		addrGetNumTracks:  e.onNumTracks,
		addrGetTrackData:  e.onTrackData,
	}
	for addr, fn := range handlers {
		if err := d.AddMsgHandler(addr, fn); err != nil {
			e.logger.Error("oscengine handler registration failed", "address", addr, "err", err)
		}
	}
	return d
}

func (e *Engine) live() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runCtx == nil {
		return context.Background()
	}
	return e.runCtx
}

func (e *Engine) onPong(*osc.Message) {
	e.mu.Lock()
	e.lastPong = time.Now()
	raised := !e.connected
	e.connected = true
	e.mu.Unlock()
	if raised {
		e.logger.Info("oscengine engine connected")
		e.emit(e.live(), schema.ChannelEngineConnection, true)
	}
}

func (e *Engine) onIsPlaying(msg *osc.Message) {
	playing, ok := argBool(msg, 0)
	if !ok {
		return
	}
	e.mu.Lock()
	e.cache.IsPlaying = playing
	e.mu.Unlock()
	e.emit(e.live(), schema.ChannelTransportState, schema.TransportStatePayload{IsPlaying: playing})
}

func (e *Engine) onTempo(msg *osc.Message) {
	tempo, ok := argFloat(msg, 0)
	if !ok || tempo <= 0 {
		return
	}
	e.mu.Lock()
	e.cache.Tempo = tempo
	e.mu.Unlock()
	e.emit(e.live(), schema.ChannelTempoChanged, tempo)
}

func (e *Engine) onSongTime(msg *osc.Message) {
	beats, ok := argFloat(msg, 0)
	if !ok {
		return
	}
	e.mu.Lock()
	e.cache.CurrentTime = beats
	e.mu.Unlock()
	e.emit(e.live(), schema.ChannelSongTime, beats)
}

func (e *Engine) onRecordMode(msg *osc.Message) {
	recording, ok := argBool(msg, 0)
	if !ok {
		return
	}
	e.mu.Lock()
	e.recording = recording
	e.mu.Unlock()
}

func (e *Engine) onLoop(msg *osc.Message) {
	e.mu.Lock()
	switch msg.Address {
	case addrGetLoop:
		v, ok := argBool(msg, 0)
		if !ok {
			e.mu.Unlock()
			return
		}
		e.cache.LoopEnabled = v
	case addrGetLoopStart:
		v, ok := argFloat(msg, 0)
		if !ok {
			e.mu.Unlock()
			return
		}
		e.cache.LoopStart = v
	case addrGetLoopLength:
		v, ok := argFloat(msg, 0)
		if !ok || v <= 0 {
			e.mu.Unlock()
			return
		}
		e.cache.LoopLength = v
	}
	payload := schema.LoopStatePayload{
		LoopEnabled: e.cache.LoopEnabled,
		LoopStart:   e.cache.LoopStart,
		LoopLength:  e.cache.LoopLength,
	}
	e.mu.Unlock()
	e.emit(e.live(), schema.ChannelLoopState, payload)
}

func (e *Engine) onNumScenes(msg *osc.Message) {
	n, ok := argInt(msg, 0)
	if !ok || n < 0 {
		return
	}
	e.mu.Lock()
	e.cache.NumScenes = n
	e.mu.Unlock()
}

func (e *Engine) onNumTracks(msg *osc.Message) {
	n, ok := argInt(msg, 0)
	if !ok || n < 0 {
		return
	}
	e.mu.Lock()
	e.cache.NumTracks = n
	e.mu.Unlock()
	if n == 0 {
		e.publishFullState(nil)
		return
	}
	e.send(trackDataMessage(n))
}

func (e *Engine) onTrackData(msg *osc.Message) {
	e.publishFullState(ParseTrackData(msg.Arguments))
}

func (e *Engine) publishFullState(tracks []schema.TrackState) {
	e.mu.Lock()
	e.cache.Tracks = schema.CloneTracks(tracks)
	e.cache.NumTracks = len(tracks)
	full := e.cache
	full.Tracks = schema.CloneTracks(e.cache.Tracks)
	e.mu.Unlock()
	e.emit(e.live(), schema.ChannelEngineFullState, full)
}

// ParseTrackData decodes a flattened track_data reply. Values arrive track by
// track in trackProperties order; a trailing partial record is ignored.
func ParseTrackData(args []any) []schema.TrackState {
	stride := len(trackProperties)
	tracks := make([]schema.TrackState, 0, len(args)/stride)
	for base := 0; base+stride <= len(args); base += stride {
		rec := args[base : base+stride]
		track := schema.TrackState{Index: len(tracks), Clips: []schema.ClipState{}}
		if v, ok := rec[0].(string); ok {
			track.Name = v
		}
		if v, ok := toFloat(rec[1]); ok {
			track.Volume = v
		}
		if v, ok := toFloat(rec[2]); ok {
			track.Panning = v
		}
		track.Mute, _ = toBool(rec[3])
		track.Solo, _ = toBool(rec[4])
		track.Arm, _ = toBool(rec[5])
		if v, ok := toFloat(rec[6]); ok {
			track.Color = int(v)
		}
		tracks = append(tracks, track)
	}
	return tracks
}

func argFloat(msg *osc.Message, i int) (float64, bool) {
	if msg == nil || i >= len(msg.Arguments) {
		return 0, false
	}
	return toFloat(msg.Arguments[i])
}

func argInt(msg *osc.Message, i int) (int, bool) {
	v, ok := argFloat(msg, i)
	return int(v), ok
}

func argBool(msg *osc.Message, i int) (bool, bool) {
	if msg == nil || i >= len(msg.Arguments) {
		return false, false
	}
	return toBool(msg.Arguments[i])
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	if f, ok := toFloat(v); ok {
		return f != 0, true
	}
	return false, false
}
