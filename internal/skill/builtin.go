package skill

import (
	"context"
	"fmt"

	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
)

// Tempo bounds accepted by transport.tempo.
const (
	MinTempo = 20.0
	MaxTempo = 999.0
)

// Search result count bounds and default.
const (
	DefaultResults = 10
	MaxResults     = 100
)

// Builtin returns the standard skill catalogue bound to client.
func Builtin(client *remote.Client) []Skill {
	return []Skill{
		{
			Descriptor: Descriptor{
				ID: "transport.play", Name: "Play", Description: "Start playback from the song start marker.",
				Category: CategoryTransport, KeyboardShortcut: "Space",
			},
			Execute: func(ctx context.Context, _ Args) (string, any, error) {
				return "Playback started", nil, client.Play(ctx)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "transport.stop", Name: "Stop", Description: "Stop playback.",
				Category: CategoryTransport, KeyboardShortcut: "Shift+Space",
			},
			Execute: func(ctx context.Context, _ Args) (string, any, error) {
				return "Playback stopped", nil, client.Stop(ctx)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "transport.continue", Name: "Continue", Description: "Resume playback from the current position.",
				Category: CategoryTransport,
			},
			Execute: func(ctx context.Context, _ Args) (string, any, error) {
				return "Playback resumed", nil, client.ContinuePlaying(ctx)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "transport.record", Name: "Toggle Record", Description: "Toggle record mode.",
				Category: CategoryTransport, KeyboardShortcut: "R",
			},
			Execute: func(ctx context.Context, _ Args) (string, any, error) {
				return "Record toggled", nil, client.ToggleRecord(ctx)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "transport.tempo", Name: "Set Tempo", Description: "Set the song tempo in BPM.",
				Category: CategoryTransport,
				Params: []Param{
					{Name: "bpm", Type: Range(MinTempo, MaxTempo), Description: "Beats per minute", Required: true},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				bpm := args.Float("bpm")
				return fmt.Sprintf("Tempo set to %g BPM", bpm), nil, client.SetTempo(ctx, bpm)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "transport.loop", Name: "Toggle Loop", Description: "Toggle the arrangement loop.",
				Category: CategoryTransport, KeyboardShortcut: "L",
			},
			Execute: func(ctx context.Context, _ Args) (string, any, error) {
				return "Loop toggled", nil, client.ToggleLoop(ctx)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "track.volume", Name: "Set Track Volume", Description: "Set a track's volume.",
				Category: CategoryTrack,
				Params: []Param{
					{Name: "trackIndex", Type: TrackIndex(), Description: "Track index", Required: true},
					{Name: "volume", Type: Range(0, 1), Description: "Volume from 0 to 1", Required: true},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				track, volume := args.Int("trackIndex"), args.Float("volume")
				return fmt.Sprintf("Track %d volume set to %.2f", track, volume), nil, client.SetTrackVolume(ctx, track, volume)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "track.pan", Name: "Set Track Pan", Description: "Set a track's stereo panning.",
				Category: CategoryTrack,
				Params: []Param{
					{Name: "trackIndex", Type: TrackIndex(), Description: "Track index", Required: true},
					{Name: "pan", Type: Range(-1, 1), Description: "Pan from -1 (left) to 1 (right)", Required: true},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				track, pan := args.Int("trackIndex"), args.Float("pan")
				return fmt.Sprintf("Track %d pan set to %.2f", track, pan), nil, client.SetTrackPan(ctx, track, pan)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "track.mute", Name: "Mute Track", Description: "Mute or unmute a track.",
				Category: CategoryTrack,
				Params: []Param{
					{Name: "trackIndex", Type: TrackIndex(), Description: "Track index", Required: true},
					{Name: "mute", Type: Bool(), Description: "Mute state", DefaultValue: true},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				track, mute := args.Int("trackIndex"), args.Bool("mute")
				return fmt.Sprintf("Track %d %s", track, onOff(mute, "muted", "unmuted")), nil, client.SetTrackMute(ctx, track, mute)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "track.solo", Name: "Solo Track", Description: "Solo or unsolo a track.",
				Category: CategoryTrack,
				Params: []Param{
					{Name: "trackIndex", Type: TrackIndex(), Description: "Track index", Required: true},
					{Name: "solo", Type: Bool(), Description: "Solo state", DefaultValue: true},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				track, solo := args.Int("trackIndex"), args.Bool("solo")
				return fmt.Sprintf("Track %d %s", track, onOff(solo, "soloed", "unsoloed")), nil, client.SetTrackSolo(ctx, track, solo)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "clip.fire", Name: "Fire Clip", Description: "Launch the clip in a slot.",
				Category: CategoryClip,
				Params: []Param{
					{Name: "trackIndex", Type: TrackIndex(), Description: "Track index", Required: true},
					{Name: "clipIndex", Type: ClipIndex(), Description: "Scene index of the clip slot", Required: true},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				track, clip := args.Int("trackIndex"), args.Int("clipIndex")
				return fmt.Sprintf("Clip %d on track %d fired", clip, track), nil, client.FireClip(ctx, track, clip)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "clip.stop", Name: "Stop Clip", Description: "Stop the clip in a slot.",
				Category: CategoryClip,
				Params: []Param{
					{Name: "trackIndex", Type: TrackIndex(), Description: "Track index", Required: true},
					{Name: "clipIndex", Type: ClipIndex(), Description: "Scene index of the clip slot", Required: true},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				track, clip := args.Int("trackIndex"), args.Int("clipIndex")
				return fmt.Sprintf("Clip %d on track %d stopped", clip, track), nil, client.StopClip(ctx, track, clip)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "search.text", Name: "Search Samples", Description: "Find samples matching a text description.",
				Category: CategorySearch, KeyboardShortcut: "Ctrl+F",
				Params: []Param{
					{Name: "query", Type: String(), Description: "Text description", Required: true},
					{Name: "nResults", Type: Range(1, MaxResults), Description: "Maximum results", DefaultValue: DefaultResults},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				items, err := client.SearchByText(ctx, args.String("query"), args.Int("nResults"))
				if err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Found %d samples", len(items)), items, nil
			},
		},
		{
			Descriptor: Descriptor{
				ID: "search.similar", Name: "Find Similar", Description: "Find samples that sound like a reference file.",
				Category: CategorySearch,
				Params: []Param{
					{Name: "filePath", Type: FilePath(), Description: "Reference sample", Required: true},
					{Name: "nResults", Type: Range(1, MaxResults), Description: "Maximum results", DefaultValue: DefaultResults},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				items, err := client.SearchBySimilarity(ctx, args.String("filePath"), args.Int("nResults"))
				if err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Found %d similar samples", len(items)), items, nil
			},
		},
		{
			Descriptor: Descriptor{
				ID: "search.insert", Name: "Insert Sample", Description: "Load a sample into a clip slot.",
				Category: CategorySearch,
				Params: []Param{
					{Name: "filePath", Type: FilePath(), Description: "Sample to load", Required: true},
					{Name: "trackIndex", Type: TrackIndex(), Description: "Track index", Required: true},
					{Name: "clipIndex", Type: ClipIndex(), Description: "Scene index of the clip slot", Required: true},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				path, track, clip := args.String("filePath"), args.Int("trackIndex"), args.Int("clipIndex")
				return fmt.Sprintf("Inserted %s into track %d slot %d", path, track, clip), nil, client.InsertSample(ctx, path, track, clip)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "search.index", Name: "Index Directory", Description: "Scan a directory into the sample index. Runs until the scan completes.",
				Category: CategorySearch,
				Params: []Param{
					{Name: "directory", Type: FilePath(), Description: "Directory to scan", Required: true},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				result, err := client.IndexDirectory(ctx, args.String("directory"))
				if err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Indexed %d of %d files", result.Indexed, result.Total), result, nil
			},
		},
		{
			Descriptor: Descriptor{
				ID: "utility.resync", Name: "Resync", Description: "Ask the engine for a full state snapshot.",
				Category: CategoryUtility,
			},
			Execute: func(ctx context.Context, _ Args) (string, any, error) {
				return "Full state requested", nil, client.RequestFullState(ctx)
			},
		},
		{
			Descriptor: Descriptor{
				ID: "utility.engine_params", Name: "Engine Parameters", Description: "List the engine's custom parameters and their ranges.",
				Category: CategoryUtility,
			},
			Execute: func(ctx context.Context, _ Args) (string, any, error) {
				params, err := client.EngineParams(ctx)
				if err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("Engine exposes %d parameters", len(params)), params, nil
			},
		},
		{
			Descriptor: Descriptor{
				ID: "utility.set_engine_param", Name: "Set Engine Parameter", Description: "Set one of the engine's custom parameters.",
				Category: CategoryUtility,
				Params: []Param{
					{Name: "id", Type: String(), Description: "Parameter id", Required: true},
					{Name: "value", Type: Number(), Description: "Value within the parameter's range", Required: true},
				},
			},
			Execute: func(ctx context.Context, args Args) (string, any, error) {
				id, value := args.String("id"), args.Float("value")
				param, err := lookupEngineParam(ctx, client, id, value)
				if err != nil {
					return "", nil, err
				}
				return fmt.Sprintf("%s set to %g", param.Label, value), nil, client.SetEngineParam(ctx, id, value)
			},
		},
	}
}

// NewBuiltin builds a registry with the standard catalogue.
func NewBuiltin(client *remote.Client, opts ...Option) (*Registry, error) {
	return New(Builtin(client), opts...)
}

// lookupEngineParam checks id and value against the ranges the engine
// currently reports. The range is only known at call time.
func lookupEngineParam(ctx context.Context, client *remote.Client, id string, value float64) (schema.EngineParam, error) {
	params, err := client.EngineParams(ctx)
	if err != nil {
		return schema.EngineParam{}, err
	}
	for _, p := range params {
		if p.ID != id {
			continue
		}
		if value < p.Min || value > p.Max {
			return p, &ValidationError{Skill: "utility.set_engine_param", Param: "value", Reason: fmt.Sprintf("must be between %g and %g", p.Min, p.Max)}
		}
		return p, nil
	}
	return schema.EngineParam{}, &ValidationError{Skill: "utility.set_engine_param", Param: "id", Reason: fmt.Sprintf("names no engine parameter (got %q)", id)}
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}
