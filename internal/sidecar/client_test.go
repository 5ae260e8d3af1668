package sidecar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
)

func newSidecarServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithRequestTimeout(time.Second))
}

func TestSearchTextMapsSnakeCase(t *testing.T) {
	var got map[string]any
	client := newSidecarServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search/text" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[{"id":"a1","file_path":"/s/pad.wav","file_name":"pad.wav","distance":0.12,"duration_seconds":3.5,"metadata":{"bpm":120}}],"query":"warm pad","total":1}`))
	})
	items, err := client.SearchText(context.Background(), "warm pad", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got["query"] != "warm pad" || got["n_results"] != float64(5) {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.FilePath != "/s/pad.wav" || item.FileName != "pad.wav" || item.DurationSeconds != 3.5 || item.Distance != 0.12 {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.Metadata["bpm"] != float64(120) {
		t.Fatalf("expected metadata passthrough, got %+v", item.Metadata)
	}
}

func TestInvokeSimilarity(t *testing.T) {
	client := newSidecarServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path != "/search/similar" || body["reference_file_path"] != "/s/kick.wav" {
			t.Errorf("unexpected request %s %+v", r.URL.Path, body)
		}
		_, _ = w.Write([]byte(`{"results":[],"query":"similar:/s/kick.wav","total":0}`))
	})
	var items []schema.SearchResultItem
	err := client.Invoke(context.Background(), remote.OpSearchBySimilarity, map[string]any{
		remote.ArgFilePath: "/s/kick.wav",
		remote.ArgNResults: 3,
	}, &items)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", items)
	}
}

func TestIndexDirectory(t *testing.T) {
	client := newSidecarServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index/directory" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"total":10,"new":4,"indexed":4}`))
	})
	res, err := remote.NewClient(client).IndexDirectory(context.Background(), "/samples")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if res.Total != 10 || res.Indexed != 4 || res.New != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestErrorDetailSurfacesVerbatim(t *testing.T) {
	client := newSidecarServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"CLAP model failed to load"}`))
	})
	_, err := remote.NewClient(client).SearchByText(context.Background(), "x", 1)
	remoteErr, ok := remote.AsError(err)
	if !ok {
		t.Fatalf("expected remote error, got %v", err)
	}
	if remoteErr.Kind != remote.ErrorRejected || remoteErr.Message != "CLAP model failed to load" {
		t.Fatalf("unexpected error: %+v", remoteErr)
	}
	if remoteErr.Op != remote.OpSearchByText {
		t.Fatalf("expected op to be set, got %q", remoteErr.Op)
	}
}

func TestUnreachableSidecarIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, err := New(url).Health(context.Background())
	remoteErr, ok := remote.AsError(err)
	if !ok || remoteErr.Kind != remote.ErrorUnavailable {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	values []bool
}

func (r *recordingEmitter) Emit(_ context.Context, channel schema.Channel, payload any) error {
	if channel != schema.ChannelSidecarConnection {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, payload.(bool))
	return nil
}

func (r *recordingEmitter) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.values...)
}

type scriptedChecker struct {
	mu      sync.Mutex
	healthy []bool
}

func (p *scriptedChecker) Health(context.Context) (Health, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ok := p.healthy[0]
	if len(p.healthy) > 1 {
		p.healthy = p.healthy[1:]
	}
	if !ok {
		return Health{}, remote.NewError(remote.ErrorUnavailable, "", "down")
	}
	return Health{Status: "ok"}, nil
}

func TestMonitorPublishesTransitionsOnly(t *testing.T) {
	checker := &scriptedChecker{healthy: []bool{false, false, true, true, false, false}}
	emitter := &recordingEmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = NewMonitor(checker, emitter, time.Millisecond, nil).Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(emitter.snapshot()) < 3 {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done
	got := emitter.snapshot()
	want := []bool{false, true, false}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
