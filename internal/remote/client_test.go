package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/noamisr/maestro/schema"
)

type call struct {
	op   string
	args map[string]any
}

type fakeInvoker struct {
	calls []call
	reply any
	err   error
}

func (f *fakeInvoker) Invoke(ctx context.Context, op string, args map[string]any, result any) error {
	f.calls = append(f.calls, call{op: op, args: args})
	if f.err != nil {
		return f.err
	}
	return DecodeResult(op, f.reply, result)
}

func TestClientOperationArguments(t *testing.T) {
	fake := &fakeInvoker{}
	client := NewClient(fake)
	ctx := context.Background()

	_ = client.Play(ctx)
	_ = client.SetTempo(ctx, 128)
	_ = client.SetTrackVolume(ctx, 2, 0.75)
	_ = client.SetTrackMute(ctx, 1, true)
	_ = client.SetTrackPan(ctx, 3, -0.5)
	_ = client.FireClip(ctx, 1, 4)
	_ = client.InsertSample(ctx, "/samples/kick.wav", 0, 2)

	want := []call{
		{op: "play"},
		{op: "set_tempo", args: map[string]any{"bpm": 128.0}},
		{op: "set_track_volume", args: map[string]any{"trackIndex": 2, "volume": 0.75}},
		{op: "set_track_mute", args: map[string]any{"trackIndex": 1, "mute": true}},
		{op: "set_track_pan", args: map[string]any{"trackIndex": 3, "pan": -0.5}},
		{op: "fire_clip", args: map[string]any{"trackIndex": 1, "sceneIndex": 4}},
		{op: "insert_sample", args: map[string]any{"filePath": "/samples/kick.wav", "trackIndex": 0, "sceneIndex": 2}},
	}
	if len(fake.calls) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(fake.calls))
	}
	for i, w := range want {
		got := fake.calls[i]
		if got.op != w.op {
			t.Fatalf("call %d: expected op %q, got %q", i, w.op, got.op)
		}
		if len(got.args) != len(w.args) {
			t.Fatalf("call %d: expected args %v, got %v", i, w.args, got.args)
		}
		for k, v := range w.args {
			if got.args[k] != v {
				t.Fatalf("call %d: arg %s expected %v, got %v", i, k, v, got.args[k])
			}
		}
	}
}

func TestClientDoesNotValidateRanges(t *testing.T) {
	fake := &fakeInvoker{}
	client := NewClient(fake)
	if err := client.SetTrackVolume(context.Background(), 0, 1.5); err != nil {
		t.Fatalf("expected direct call to pass through, got %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected call to reach invoker")
	}
}

func TestClientSearchDecodesItems(t *testing.T) {
	fake := &fakeInvoker{reply: []map[string]any{
		{"id": "a1", "filePath": "/s/pad.wav", "fileName": "pad.wav", "distance": 0.12, "durationSeconds": 3.5, "metadata": map[string]any{"bpm": 90}},
	}}
	client := NewClient(fake)
	items, err := client.SearchByText(context.Background(), "warm pad", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 || items[0].FileName != "pad.wav" || items[0].DurationSeconds != 3.5 {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[0].Metadata["bpm"] != 90.0 {
		t.Fatalf("unexpected metadata: %+v", items[0].Metadata)
	}
	if fake.calls[0].args["nResults"] != 5 {
		t.Fatalf("unexpected args: %+v", fake.calls[0].args)
	}
}

func TestClientIndexDirectory(t *testing.T) {
	fake := &fakeInvoker{reply: schema.IndexResult{Total: 10, Indexed: 7}}
	result, err := NewClient(fake).IndexDirectory(context.Background(), "/samples")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if result.Total != 10 || result.Indexed != 7 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClientEngineParams(t *testing.T) {
	fake := &fakeInvoker{}
	client := NewClient(fake)
	params, err := client.EngineParams(context.Background())
	if err != nil || params == nil || len(params) != 0 {
		t.Fatalf("expected empty non-nil params on null reply, got %#v (%v)", params, err)
	}
	fake.reply = []schema.EngineParam{{ID: "reverb", Label: "Reverb Wet", Min: 0, Max: 1}}
	params, err = client.EngineParams(context.Background())
	if err != nil || len(params) != 1 || params[0].Label != "Reverb Wet" {
		t.Fatalf("unexpected params: %+v (%v)", params, err)
	}
	if err := client.SetEngineParam(context.Background(), "reverb", 0.25); err != nil {
		t.Fatalf("set: %v", err)
	}
	last := fake.calls[len(fake.calls)-1]
	if last.op != OpSetEngineParam || last.args[ArgID] != "reverb" || last.args[ArgValue] != 0.25 {
		t.Fatalf("unexpected call: %+v", last)
	}
	if !Idempotent(OpSetEngineParam) {
		t.Fatalf("set_engine_param should be retryable")
	}
}

func TestClientWrapsErrors(t *testing.T) {
	fake := &fakeInvoker{err: errors.New("bridge closed")}
	err := NewClient(fake).ToggleRecord(context.Background())
	remoteErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if remoteErr.Op != OpToggleRecord {
		t.Fatalf("expected op toggle_record, got %q", remoteErr.Op)
	}
	if err.Error() != "toggle_record: bridge closed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestClientKeepsEngineMessage(t *testing.T) {
	fake := &fakeInvoker{err: NewError(ErrorRejected, OpSetTempo, "tempo out of range")}
	err := NewClient(fake).SetTempo(context.Background(), 5000)
	remoteErr, ok := AsError(err)
	if !ok || remoteErr.Kind != ErrorRejected || remoteErr.Message != "tempo out of range" {
		t.Fatalf("unexpected error: %#v", err)
	}
}

func TestClientWithoutInvoker(t *testing.T) {
	err := NewClient(nil).Play(context.Background())
	remoteErr, ok := AsError(err)
	if !ok || remoteErr.Kind != ErrorUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestWrapClassifiesContext(t *testing.T) {
	if e, _ := AsError(Wrap("index_directory", context.Canceled)); e.Kind != ErrorCanceled {
		t.Fatalf("expected canceled, got %s", e.Kind)
	}
	if e, _ := AsError(Wrap("play", context.DeadlineExceeded)); e.Kind != ErrorTimeout {
		t.Fatalf("expected timeout, got %s", e.Kind)
	}
	if !errors.Is(Wrap("play", context.Canceled), context.Canceled) {
		t.Fatalf("expected wrapped error to unwrap")
	}
}

func TestIdempotent(t *testing.T) {
	for _, op := range []string{OpSetTrackVolume, OpSetTempo, OpSearchByText} {
		if !Idempotent(op) {
			t.Fatalf("expected %s idempotent", op)
		}
	}
	for _, op := range []string{OpToggleRecord, OpToggleLoop, OpPlay, OpInsertSample, OpFireClip} {
		if Idempotent(op) {
			t.Fatalf("expected %s not idempotent", op)
		}
	}
}

func TestMuxRoutes(t *testing.T) {
	engine := &fakeInvoker{}
	sidecar := &fakeInvoker{reply: []schema.SearchResultItem{}}
	mux := NewMux(engine).Route(sidecar, SearchOps()...)
	client := NewClient(mux)

	_ = client.Play(context.Background())
	_, _ = client.SearchByText(context.Background(), "kick", 3)
	if len(engine.calls) != 1 || engine.calls[0].op != OpPlay {
		t.Fatalf("unexpected engine calls: %+v", engine.calls)
	}
	if len(sidecar.calls) != 1 || sidecar.calls[0].op != OpSearchByText {
		t.Fatalf("unexpected sidecar calls: %+v", sidecar.calls)
	}
}

func TestMuxWithoutFallback(t *testing.T) {
	err := NewMux(nil).Invoke(context.Background(), OpPlay, nil, nil)
	if e, ok := AsError(err); !ok || e.Kind != ErrorUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
