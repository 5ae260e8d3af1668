// Package mockengine simulates an engine in process for offline use and
// tests. It keeps its own transport and track state, answers every
// operation, and emits the same events a real engine would.
package mockengine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/noamisr/maestro/internal/eventbus"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

// Defaults for a fresh simulated session.
const (
	DefaultTracks = 4
	DefaultScenes = 8
)

// DefaultParams is the custom parameter set exposed when none is configured.
func DefaultParams() []schema.EngineParam {
	return []schema.EngineParam{
		{ID: "reverb", Label: "Reverb Wet", Min: 0, Max: 1},
		{ID: "gain", Label: "Input Gain", Min: -20, Max: 0},
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger pslog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSession sets the simulated track and scene counts.
func WithSession(tracks, scenes int) Option {
	return func(e *Engine) {
		if tracks >= 0 {
			e.numTracks = tracks
		}
		if scenes >= 0 {
			e.numScenes = scenes
		}
	}
}

// WithClock advances song time every interval while playing. Zero disables
// the clock.
func WithClock(interval time.Duration) Option {
	return func(e *Engine) {
		e.clock = interval
	}
}

// WithParams replaces the custom parameter set. An empty list keeps the
// defaults.
func WithParams(params ...schema.EngineParam) Option {
	return func(e *Engine) {
		if len(params) > 0 {
			e.params = append([]schema.EngineParam(nil), params...)
		}
	}
}

// Engine is a simulated engine. It implements remote.Invoker.
type Engine struct {
	events    *eventbus.Events
	logger    pslog.Logger
	numTracks int
	numScenes int
	clock     time.Duration
	params    []schema.EngineParam

	// emitMu keeps event order aligned with the order ops were applied.
	emitMu    sync.Mutex
	mu        sync.Mutex
	transport schema.TransportState
	tracks    []schema.TrackState
	recording bool
	values    map[string]float64
	started   bool
	stop      context.CancelFunc
	done      chan struct{}
}

// New constructs an Engine emitting into events.
func New(events *eventbus.Events, opts ...Option) *Engine {
	e := &Engine{
		events:    events,
		logger:    pslog.Ctx(context.Background()),
		numTracks: DefaultTracks,
		numScenes: DefaultScenes,
		transport: schema.DefaultTransport(),
		params:    DefaultParams(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.values = make(map[string]float64, len(e.params))
	for _, p := range e.params {
		e.values[p.ID] = p.Min
	}
	e.tracks = seedTracks(e.numTracks, e.numScenes)
	return e
}

func seedTracks(numTracks, numScenes int) []schema.TrackState {
	tracks := make([]schema.TrackState, numTracks)
	for i := range tracks {
		clips := make([]schema.ClipState, 0, numScenes)
		for scene := 0; scene < numScenes; scene++ {
			if scene%2 == 1 {
				continue
			}
			clips = append(clips, schema.ClipState{
				TrackIndex: i,
				SceneIndex: scene,
				Name:       fmt.Sprintf("Clip %d-%d", i+1, scene+1),
				Color:      0x3d8bfd,
				Length:     4,
			})
		}
		tracks[i] = schema.TrackState{
			Index:   i,
			Name:    fmt.Sprintf("Track %d", i+1),
			Volume:  0.85,
			Panning: 0,
			Color:   0xff7f50,
			Clips:   clips,
		}
	}
	return tracks
}

// Start announces the engine as connected and emits a full-sync. It also
// starts the song clock when configured.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	if e.clock > 0 {
		clockCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.stop = cancel
		e.done = make(chan struct{})
		go e.runClock(clockCtx, e.done)
	}
	e.mu.Unlock()
	e.logger.Info("mock engine started", "tracks", e.numTracks, "scenes", e.numScenes, "clock", e.clock)
	if err := e.events.Emit(ctx, schema.ChannelEngineConnection, true); err != nil {
		return err
	}
	return e.emitFullState(ctx)
}

// Close stops the clock and announces the engine as disconnected.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	e.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
	e.logger.Info("mock engine stopped")
	return e.events.Emit(ctx, schema.ChannelEngineConnection, false)
}

// State returns a copy of the simulated engine state.
func (e *Engine) State() schema.EngineFullState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fullStateLocked()
}

// ParamValue returns the last value set for a custom parameter.
func (e *Engine) ParamValue(id string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[id]
	return v, ok
}

// Recording reports whether record mode is on.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording
}

func (e *Engine) fullStateLocked() schema.EngineFullState {
	return schema.EngineFullState{
		TransportState: e.transport,
		NumTracks:      len(e.tracks),
		NumScenes:      e.numScenes,
		Tracks:         schema.CloneTracks(e.tracks),
	}
}

func (e *Engine) emitFullState(ctx context.Context) error {
	return e.events.Emit(ctx, schema.ChannelEngineFullState, e.State())
}

// Invoke applies op to the simulated state and emits the resulting events.
func (e *Engine) Invoke(ctx context.Context, op string, args map[string]any, result any) error {
	log := e.logger.With("op", op)
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	emits, reply, err := e.apply(op, remote.ReadArgs(op, args))
	if err != nil {
		log.Debug("mock engine op rejected", "err", err)
		return err
	}
	log.Debug("mock engine op applied")
	for _, ev := range emits {
		if err := e.events.Emit(ctx, ev.channel, ev.payload); err != nil {
			return remote.Wrap(op, err)
		}
	}
	return remote.DecodeResult(op, reply, result)
}

type emission struct {
	channel schema.Channel
	payload any
}

func (e *Engine) apply(op string, args remote.Args) ([]emission, any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch op {
	case remote.OpPlay:
		e.transport.IsPlaying = true
		e.transport.CurrentTime = 0
		return []emission{e.playingLocked(), e.songTimeLocked()}, nil, nil
	case remote.OpContinuePlaying:
		e.transport.IsPlaying = true
		return []emission{e.playingLocked()}, nil, nil
	case remote.OpStop:
		e.transport.IsPlaying = false
		e.stopClipsLocked(-1)
		return []emission{e.playingLocked(), e.tracksLocked()}, nil, nil
	case remote.OpToggleRecord:
		e.recording = !e.recording
		return nil, nil, nil
	case remote.OpSetTempo:
		bpm, err := args.Float(remote.ArgBPM)
		if err != nil {
			return nil, nil, err
		}
		if bpm <= 0 {
			return nil, nil, remote.NewError(remote.ErrorRejected, op, "tempo must be positive")
		}
		e.transport.Tempo = bpm
		return []emission{{schema.ChannelTempoChanged, bpm}}, nil, nil
	case remote.OpToggleLoop:
		e.transport.LoopEnabled = !e.transport.LoopEnabled
		return []emission{e.loopLocked()}, nil, nil
	case remote.OpSetTrackVolume, remote.OpSetTrackPan, remote.OpSetTrackMute, remote.OpSetTrackSolo:
		return e.applyTrackLocked(op, args)
	case remote.OpFireClip, remote.OpStopClip:
		return e.applyClipLocked(op, args)
	case remote.OpInsertSample:
		return e.insertSampleLocked(op, args)
	case remote.OpSearchByText, remote.OpSearchBySimilarity:
		return nil, []schema.SearchResultItem{}, nil
	case remote.OpIndexDirectory:
		if _, err := args.String(remote.ArgDirectory); err != nil {
			return nil, nil, err
		}
		return nil, schema.IndexResult{}, nil
	case remote.OpRequestFullState:
		return []emission{{schema.ChannelEngineFullState, e.fullStateLocked()}}, nil, nil
	case remote.OpGetEngineParams:
		return nil, append([]schema.EngineParam{}, e.params...), nil
	case remote.OpSetEngineParam:
		return e.setParamLocked(op, args)
	default:
		return nil, nil, remote.NewError(remote.ErrorRejected, op, schema.ErrUnsupportedOperation.Error())
	}
}

func (e *Engine) trackLocked(op string, args remote.Args) (*schema.TrackState, error) {
	idx, err := args.Int(remote.ArgTrackIndex)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(e.tracks) {
		return nil, remote.NewError(remote.ErrorRejected, op, fmt.Sprintf("track %d does not exist", idx))
	}
	// Copy on write so emitted payloads never alias engine state.
	e.tracks = schema.CloneTracks(e.tracks)
	return &e.tracks[idx], nil
}

func (e *Engine) applyTrackLocked(op string, args remote.Args) ([]emission, any, error) {
	track, err := e.trackLocked(op, args)
	if err != nil {
		return nil, nil, err
	}
	switch op {
	case remote.OpSetTrackVolume:
		v, err := args.Float(remote.ArgVolume)
		if err != nil {
			return nil, nil, err
		}
		track.Volume = clamp(v, 0, 1)
	case remote.OpSetTrackPan:
		v, err := args.Float(remote.ArgPan)
		if err != nil {
			return nil, nil, err
		}
		track.Panning = clamp(v, -1, 1)
	case remote.OpSetTrackMute:
		v, err := args.Bool(remote.ArgMute)
		if err != nil {
			return nil, nil, err
		}
		track.Mute = v
	case remote.OpSetTrackSolo:
		v, err := args.Bool(remote.ArgSolo)
		if err != nil {
			return nil, nil, err
		}
		track.Solo = v
	}
	return []emission{{schema.ChannelTrackState, track.Clone()}}, nil, nil
}

func (e *Engine) applyClipLocked(op string, args remote.Args) ([]emission, any, error) {
	track, err := e.trackLocked(op, args)
	if err != nil {
		return nil, nil, err
	}
	scene, err := args.Int(remote.ArgSceneIndex)
	if err != nil {
		return nil, nil, err
	}
	if scene < 0 || scene >= e.numScenes {
		return nil, nil, remote.NewError(remote.ErrorRejected, op, fmt.Sprintf("scene %d does not exist", scene))
	}
	for i := range track.Clips {
		clip := &track.Clips[i]
		if op == remote.OpFireClip {
			clip.IsPlaying = clip.SceneIndex == scene
			clip.IsTriggered = false
		} else if clip.SceneIndex == scene {
			clip.IsPlaying = false
			clip.IsTriggered = false
		}
	}
	return []emission{{schema.ChannelTrackState, track.Clone()}}, nil, nil
}

func (e *Engine) insertSampleLocked(op string, args remote.Args) ([]emission, any, error) {
	path, err := args.String(remote.ArgFilePath)
	if err != nil {
		return nil, nil, err
	}
	track, err := e.trackLocked(op, args)
	if err != nil {
		return nil, nil, err
	}
	scene, err := args.Int(remote.ArgSceneIndex)
	if err != nil {
		return nil, nil, err
	}
	if scene < 0 || scene >= e.numScenes {
		return nil, nil, remote.NewError(remote.ErrorRejected, op, fmt.Sprintf("scene %d does not exist", scene))
	}
	clip := schema.ClipState{TrackIndex: track.Index, SceneIndex: scene, Name: filepath.Base(path), Color: track.Color, Length: 4}
	replaced := false
	for i := range track.Clips {
		if track.Clips[i].SceneIndex == scene {
			track.Clips[i] = clip
			replaced = true
		}
	}
	if !replaced {
		track.Clips = append(track.Clips, clip)
	}
	return []emission{{schema.ChannelTrackState, track.Clone()}}, nil, nil
}

// setParamLocked stores value clamped to the parameter's range. Parameters
// have no visible effect on the session, so nothing is emitted.
func (e *Engine) setParamLocked(op string, args remote.Args) ([]emission, any, error) {
	id, err := args.String(remote.ArgID)
	if err != nil {
		return nil, nil, err
	}
	value, err := args.Float(remote.ArgValue)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range e.params {
		if p.ID == id {
			e.values[id] = clamp(value, p.Min, p.Max)
			return nil, nil, nil
		}
	}
	return nil, nil, remote.NewError(remote.ErrorRejected, op, fmt.Sprintf("unknown engine param id %q", id))
}

func (e *Engine) stopClipsLocked(trackIndex int) {
	e.tracks = schema.CloneTracks(e.tracks)
	for t := range e.tracks {
		if trackIndex >= 0 && e.tracks[t].Index != trackIndex {
			continue
		}
		for c := range e.tracks[t].Clips {
			e.tracks[t].Clips[c].IsPlaying = false
			e.tracks[t].Clips[c].IsTriggered = false
		}
	}
}

func (e *Engine) playingLocked() emission {
	return emission{schema.ChannelTransportState, schema.TransportStatePayload{IsPlaying: e.transport.IsPlaying}}
}

func (e *Engine) songTimeLocked() emission {
	return emission{schema.ChannelSongTime, e.transport.CurrentTime}
}

func (e *Engine) tracksLocked() emission {
	return emission{schema.ChannelTracksUpdated, schema.CloneTracks(e.tracks)}
}

func (e *Engine) loopLocked() emission {
	return emission{schema.ChannelLoopState, schema.LoopStatePayload{
		LoopEnabled: e.transport.LoopEnabled,
		LoopStart:   e.transport.LoopStart,
		LoopLength:  e.transport.LoopLength,
	}}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
