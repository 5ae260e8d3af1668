package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamisr/maestro/core"
	"github.com/noamisr/maestro/internal/eventbus"
	"github.com/noamisr/maestro/internal/mockengine"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/internal/skill"
)

type harness struct {
	session *mcp.ClientSession
	store   *core.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	events := eventbus.NewEvents(nil)
	engine := mockengine.New(events, mockengine.WithSession(2, 2))
	store := core.NewStore()
	client := remote.NewClient(engine)
	router := core.NewRouter(store, core.WithResync(client.RequestFullState))
	if err := router.Start(ctx, events); err != nil {
		t.Fatalf("router start: %v", err)
	}
	registry, err := skill.NewBuiltin(client)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	server := New(registry, store, "test")
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	served := make(chan struct{})
	go func() {
		_ = server.Run(ctx, serverTransport)
		close(served)
	}()

	mcpClient := mcp.NewClient(&mcp.Implementation{Name: "maestro-test", Version: "test"}, nil)
	session, err := mcpClient.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		<-served
		router.Close()
	})
	return &harness{session: session, store: store}
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if out != nil && res.StructuredContent != nil {
		raw, err := json.Marshal(res.StructuredContent)
		if err != nil {
			t.Fatalf("marshal structured content: %v", err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return res
}

func TestListToolsExposesSkillSurface(t *testing.T) {
	h := newHarness(t)
	res, err := h.session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
		if tool.InputSchema == nil {
			t.Fatalf("tool %s has no input schema", tool.Name)
		}
	}
	for _, want := range []string{"list_skills", "invoke_skill", "get_state"} {
		if !names[want] {
			t.Fatalf("missing tool %s in %v", want, names)
		}
	}
}

func TestListSkillsFiltersByCategory(t *testing.T) {
	h := newHarness(t)
	var all ListSkillsResult
	callTool(t, h.session, "list_skills", nil, &all)
	if len(all.Skills) == 0 || all.Skills[0].ID != "transport.play" {
		t.Fatalf("unexpected skills %+v", all.Skills)
	}

	var tracks ListSkillsResult
	callTool(t, h.session, "list_skills", map[string]any{"category": "track"}, &tracks)
	if len(tracks.Skills) == 0 {
		t.Fatalf("expected track skills")
	}
	for _, desc := range tracks.Skills {
		if desc.Category != skill.CategoryTrack {
			t.Fatalf("unexpected category %s for %s", desc.Category, desc.ID)
		}
	}
}

func TestInvokeSkillUpdatesState(t *testing.T) {
	h := newHarness(t)
	var result skill.Result
	res := callTool(t, h.session, "invoke_skill", map[string]any{
		"skill_id": "transport.tempo",
		"params":   map[string]any{"bpm": 96},
	}, &result)
	if res.IsError || !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.store.Transport().Tempo != 96 {
		if time.Now().After(deadline) {
			t.Fatalf("tempo never reached the store")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var state StateResult
	callTool(t, h.session, "get_state", nil, &state)
	if state.Snapshot.Transport.Tempo != 96 {
		t.Fatalf("unexpected snapshot %+v", state.Snapshot.Transport)
	}
	if state.View.PositionLabel == "" {
		t.Fatalf("expected position label in view %+v", state.View)
	}
}

func TestInvokeSkillFailureIsToolError(t *testing.T) {
	h := newHarness(t)
	var result skill.Result
	res := callTool(t, h.session, "invoke_skill", map[string]any{
		"skill_id": "track.mute",
		"params":   map[string]any{"trackIndex": 9, "mute": true},
	}, &result)
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
	if result.Success {
		t.Fatalf("expected failed result")
	}
	if len(res.Content) == 0 {
		t.Fatalf("expected text content")
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok || text.Text == "" {
		t.Fatalf("unexpected content %#v", res.Content[0])
	}
}

func TestInvokeUnknownSkill(t *testing.T) {
	h := newHarness(t)
	res := callTool(t, h.session, "invoke_skill", map[string]any{"skill_id": "transport.rewind"}, nil)
	if !res.IsError {
		t.Fatalf("expected tool error for unknown skill")
	}
}
