package mockengine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/noamisr/maestro/core"
	"github.com/noamisr/maestro/internal/eventbus"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
)

type harness struct {
	engine *Engine
	store  *core.Store
	router *core.Router
	client *remote.Client
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	events := eventbus.NewEvents(nil)
	engine := New(events, opts...)
	store := core.NewStore()
	client := remote.NewClient(engine)
	router := core.NewRouter(store, core.WithResync(client.RequestFullState))
	if err := router.Start(ctx, events); err != nil {
		t.Fatalf("router start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		router.Close()
	})
	return &harness{engine: engine, store: store, router: router, client: client}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartSyncsStore(t *testing.T) {
	h := newHarness(t, WithSession(3, 4))
	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "full sync", func() bool {
		snap := h.store.Snapshot()
		return snap.Connection.Engine && snap.Synced && len(snap.Tracks) == 3
	})
	if got := h.store.Snapshot().NumScenes; got != 4 {
		t.Fatalf("expected 4 scenes, got %d", got)
	}
}

func TestTransportOpsMirrorIntoStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.client.SetTempo(ctx, 140); err != nil {
		t.Fatalf("set tempo: %v", err)
	}
	if err := h.client.Play(ctx); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := h.client.ToggleLoop(ctx); err != nil {
		t.Fatalf("toggle loop: %v", err)
	}
	waitFor(t, "transport", func() bool {
		tr := h.store.Transport()
		return tr.Tempo == 140 && tr.IsPlaying && tr.LoopEnabled
	})
	if err := h.client.ToggleRecord(ctx); err != nil {
		t.Fatalf("toggle record: %v", err)
	}
	if !h.engine.Recording() {
		t.Fatalf("expected record mode on")
	}
}

func TestTrackOpsEmitTrackState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "sync", func() bool { return h.store.Snapshot().Synced })
	if err := h.client.SetTrackVolume(ctx, 1, 0.25); err != nil {
		t.Fatalf("volume: %v", err)
	}
	if err := h.client.SetTrackMute(ctx, 1, true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if err := h.client.FireClip(ctx, 1, 2); err != nil {
		t.Fatalf("fire: %v", err)
	}
	waitFor(t, "track 1", func() bool {
		track, ok := h.store.Track(1)
		if !ok || track.Volume != 0.25 || !track.Mute {
			return false
		}
		for _, clip := range track.Clips {
			if clip.SceneIndex == 2 {
				return clip.IsPlaying
			}
		}
		return false
	})
}

func TestInsertSampleAddsClip(t *testing.T) {
	h := newHarness(t, WithSession(2, 4))
	ctx := context.Background()
	if err := h.client.InsertSample(ctx, "/samples/pad.wav", 0, 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	state := h.engine.State()
	found := false
	for _, clip := range state.Tracks[0].Clips {
		if clip.SceneIndex == 1 && clip.Name == "pad.wav" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected inserted clip, got %+v", state.Tracks[0].Clips)
	}
}

func TestUnknownTrackRejected(t *testing.T) {
	h := newHarness(t, WithSession(1, 1))
	err := h.client.SetTrackPan(context.Background(), 5, 0)
	remoteErr, ok := remote.AsError(err)
	if !ok || remoteErr.Kind != remote.ErrorRejected {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if remoteErr.Message != "track 5 does not exist" {
		t.Fatalf("unexpected message %q", remoteErr.Message)
	}
}

func TestCloseResetsStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.engine.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "sync", func() bool { return h.store.Snapshot().Synced })
	if err := h.engine.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitFor(t, "reset", func() bool {
		snap := h.store.Snapshot()
		return !snap.Connection.Engine && len(snap.Tracks) == 0
	})
	if h.store.Transport() != schema.DefaultTransport() {
		t.Fatalf("expected default transport, got %+v", h.store.Transport())
	}
}

func TestClockAdvancesAndWrapsLoop(t *testing.T) {
	e := New(eventbus.NewEvents(nil))
	e.transport.IsPlaying = true
	e.transport.Tempo = 120
	e.transport.LoopEnabled = true
	e.transport.LoopStart = 0
	e.transport.LoopLength = 4
	beats, ok := e.advance(time.Second)
	if !ok || beats != 2 {
		t.Fatalf("expected 2 beats, got %v (%v)", beats, ok)
	}
	beats, _ = e.advance(1500 * time.Millisecond)
	if beats != 1 {
		t.Fatalf("expected wrap to beat 1, got %v", beats)
	}
	e.transport.IsPlaying = false
	if _, ok := e.advance(time.Second); ok {
		t.Fatalf("expected no advance while stopped")
	}
}

func TestEngineParams(t *testing.T) {
	h := newHarness(t, WithParams(schema.EngineParam{ID: "drive", Label: "Drive", Min: 0, Max: 10}))
	ctx := context.Background()
	params, err := h.client.EngineParams(ctx)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if len(params) != 1 || params[0].ID != "drive" || params[0].Max != 10 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if err := h.client.SetEngineParam(ctx, "drive", 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := h.engine.ParamValue("drive"); v != 4 {
		t.Fatalf("expected drive 4, got %v", v)
	}
	if err := h.client.SetEngineParam(ctx, "drive", 40); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := h.engine.ParamValue("drive"); v != 10 {
		t.Fatalf("expected drive clamped to 10, got %v", v)
	}
	err = h.client.SetEngineParam(ctx, "reverb", 0.5)
	remoteErr, ok := remote.AsError(err)
	if !ok || remoteErr.Kind != remote.ErrorRejected || !strings.Contains(remoteErr.Message, "unknown engine param id") {
		t.Fatalf("expected rejection for unknown id, got %v", err)
	}
}

func TestDefaultParams(t *testing.T) {
	e := New(eventbus.NewEvents(nil), WithParams())
	params, err := remote.NewClient(e).EngineParams(context.Background())
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if len(params) != len(DefaultParams()) || params[0].ID != "reverb" {
		t.Fatalf("expected default params, got %+v", params)
	}
	if v, ok := e.ParamValue("gain"); !ok || v != -20 {
		t.Fatalf("expected gain to start at its minimum, got %v (%v)", v, ok)
	}
}
