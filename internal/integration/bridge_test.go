package integration_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/noamisr/maestro/httpapi"
	"github.com/noamisr/maestro/internal/skill"
)

func TestHTTPInvokeReachesBridgedEngine(t *testing.T) {
	requireLong(t)
	host := newBridgeHost(t)
	s := newStack(t, host)

	if got := len(s.state(t).State.Tracks); got != 3 {
		t.Fatalf("expected 3 mirrored tracks, got %d", got)
	}
	var result skill.Result
	status := s.post(t, "/api/skills/invoke", map[string]any{
		"id":     "transport.tempo",
		"params": map[string]any{"bpm": 111},
	}, &result)
	if status != http.StatusOK || !result.Success {
		t.Fatalf("invoke: %d %+v", status, result)
	}
	waitFor(t, "engine tempo", func() bool { return host.engine.State().Tempo == 111 })
	waitFor(t, "mirrored tempo", func() bool { return s.state(t).State.Transport.Tempo == 111 })
}

func TestSSHCommandShowsUpOverHTTP(t *testing.T) {
	requireLong(t)
	host := newBridgeHost(t)
	s := newStack(t, host)

	out, err := s.ssh(t, "/mute 2")
	if err != nil {
		t.Fatalf("ssh: %v (%s)", err, out)
	}
	waitFor(t, "mute over http", func() bool {
		tracks := s.state(t).State.Tracks
		return len(tracks) == 3 && tracks[2].Mute
	})

	var result skill.Result
	s.post(t, "/api/command", map[string]any{"input": "/unmute 2"}, &result)
	if !result.Success {
		t.Fatalf("unmute: %+v", result)
	}
	waitFor(t, "unmute in engine", func() bool { return !host.engine.State().Tracks[2].Mute })
}

func TestStreamFollowsBridgedChanges(t *testing.T) {
	requireLong(t)
	host := newBridgeHost(t)
	s := newStack(t, host)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.httpBase+"/api/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	next := func() httpapi.StreamEvent {
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event httpapi.StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return event
		}
		t.Fatalf("stream ended: %v", scanner.Err())
		return httpapi.StreamEvent{}
	}
	if first := next(); first.Type != httpapi.EventSnapshot || !first.State.Synced {
		t.Fatalf("expected synced snapshot first, got %+v", first)
	}

	s.post(t, "/api/skills/invoke", map[string]any{"id": "transport.play"}, nil)
	for {
		event := next()
		if event.Type == httpapi.EventState && event.State.Transport.IsPlaying {
			break
		}
	}
}

func TestBridgeLossMarksStateStale(t *testing.T) {
	requireLong(t)
	host := newBridgeHost(t)
	s := newStack(t, host)

	host.kill()
	waitFor(t, "stale view", func() bool {
		payload := s.state(t)
		return !payload.State.Connection.Engine && payload.View.Stale
	})
	var result skill.Result
	s.post(t, "/api/skills/invoke", map[string]any{"id": "transport.play"}, &result)
	if result.Success {
		t.Fatalf("expected invoke to fail while the bridge is down")
	}
}
