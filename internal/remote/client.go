package remote

import (
	"context"

	"github.com/noamisr/maestro/internal/logx"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

// Client exposes one typed method per engine operation. Arguments are not
// range checked here; skills validate before calling.
type Client struct {
	invoker Invoker
}

// NewClient wraps an Invoker.
func NewClient(invoker Invoker) *Client {
	return &Client{invoker: invoker}
}

func (c *Client) call(ctx context.Context, op string, args map[string]any, result any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c == nil || c.invoker == nil {
		return NewError(ErrorUnavailable, op, schema.ErrEngineUnavailable.Error())
	}
	log := logx.WithOp(pslog.Ctx(ctx), op)
	log.Trace("remote call start")
	if err := c.invoker.Invoke(ctx, op, args, result); err != nil {
		wrapped := Wrap(op, err)
		log.Debug("remote call failed", "err", wrapped)
		return wrapped
	}
	log.Trace("remote call done")
	return nil
}

// Play starts playback.
func (c *Client) Play(ctx context.Context) error {
	return c.call(ctx, OpPlay, nil, nil)
}

// Stop stops playback.
func (c *Client) Stop(ctx context.Context) error {
	return c.call(ctx, OpStop, nil, nil)
}

// ContinuePlaying resumes playback from the current position.
func (c *Client) ContinuePlaying(ctx context.Context) error {
	return c.call(ctx, OpContinuePlaying, nil, nil)
}

// ToggleRecord flips record mode. Not idempotent.
func (c *Client) ToggleRecord(ctx context.Context) error {
	return c.call(ctx, OpToggleRecord, nil, nil)
}

// SetTempo sets the song tempo in BPM.
func (c *Client) SetTempo(ctx context.Context, bpm float64) error {
	return c.call(ctx, OpSetTempo, map[string]any{ArgBPM: bpm}, nil)
}

// ToggleLoop flips loop mode. Not idempotent.
func (c *Client) ToggleLoop(ctx context.Context) error {
	return c.call(ctx, OpToggleLoop, nil, nil)
}

// SetTrackVolume sets a track volume in [0,1].
func (c *Client) SetTrackVolume(ctx context.Context, trackIndex int, volume float64) error {
	return c.call(ctx, OpSetTrackVolume, map[string]any{ArgTrackIndex: trackIndex, ArgVolume: volume}, nil)
}

// SetTrackMute sets a track mute flag.
func (c *Client) SetTrackMute(ctx context.Context, trackIndex int, mute bool) error {
	return c.call(ctx, OpSetTrackMute, map[string]any{ArgTrackIndex: trackIndex, ArgMute: mute}, nil)
}

// SetTrackSolo sets a track solo flag.
func (c *Client) SetTrackSolo(ctx context.Context, trackIndex int, solo bool) error {
	return c.call(ctx, OpSetTrackSolo, map[string]any{ArgTrackIndex: trackIndex, ArgSolo: solo}, nil)
}

// SetTrackPan sets a track pan in [-1,1].
func (c *Client) SetTrackPan(ctx context.Context, trackIndex int, pan float64) error {
	return c.call(ctx, OpSetTrackPan, map[string]any{ArgTrackIndex: trackIndex, ArgPan: pan}, nil)
}

// FireClip launches the clip at (trackIndex, sceneIndex).
func (c *Client) FireClip(ctx context.Context, trackIndex, sceneIndex int) error {
	return c.call(ctx, OpFireClip, map[string]any{ArgTrackIndex: trackIndex, ArgSceneIndex: sceneIndex}, nil)
}

// StopClip stops the clip at (trackIndex, sceneIndex).
func (c *Client) StopClip(ctx context.Context, trackIndex, sceneIndex int) error {
	return c.call(ctx, OpStopClip, map[string]any{ArgTrackIndex: trackIndex, ArgSceneIndex: sceneIndex}, nil)
}

// SearchByText runs a semantic text query.
func (c *Client) SearchByText(ctx context.Context, query string, nResults int) ([]schema.SearchResultItem, error) {
	var items []schema.SearchResultItem
	err := c.call(ctx, OpSearchByText, map[string]any{ArgQuery: query, ArgNResults: nResults}, &items)
	return items, err
}

// SearchBySimilarity finds samples similar to filePath.
func (c *Client) SearchBySimilarity(ctx context.Context, filePath string, nResults int) ([]schema.SearchResultItem, error) {
	var items []schema.SearchResultItem
	err := c.call(ctx, OpSearchBySimilarity, map[string]any{ArgFilePath: filePath, ArgNResults: nResults}, &items)
	return items, err
}

// InsertSample loads filePath into the clip slot at (trackIndex, sceneIndex).
func (c *Client) InsertSample(ctx context.Context, filePath string, trackIndex, sceneIndex int) error {
	return c.call(ctx, OpInsertSample, map[string]any{ArgFilePath: filePath, ArgTrackIndex: trackIndex, ArgSceneIndex: sceneIndex}, nil)
}

// IndexDirectory scans directory into the search index. It returns only
// when the scan completes or ctx is canceled.
func (c *Client) IndexDirectory(ctx context.Context, directory string) (schema.IndexResult, error) {
	var result schema.IndexResult
	err := c.call(ctx, OpIndexDirectory, map[string]any{ArgDirectory: directory}, &result)
	return result, err
}

// RequestFullState asks the engine to emit an engine-full-state event.
func (c *Client) RequestFullState(ctx context.Context) error {
	return c.call(ctx, OpRequestFullState, nil, nil)
}

// EngineParams lists the engine's custom parameters. Engines without any
// return an empty list.
func (c *Client) EngineParams(ctx context.Context) ([]schema.EngineParam, error) {
	params := []schema.EngineParam{}
	err := c.call(ctx, OpGetEngineParams, nil, &params)
	return params, err
}

// SetEngineParam sets the custom parameter id. The engine maps value from
// the parameter's [min,max] range onto its own control.
func (c *Client) SetEngineParam(ctx context.Context, id string, value float64) error {
	return c.call(ctx, OpSetEngineParam, map[string]any{ArgID: id, ArgValue: value}, nil)
}
