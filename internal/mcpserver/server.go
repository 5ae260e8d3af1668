// Package mcpserver exposes the skill registry and the engine state to MCP
// clients.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noamisr/maestro/core"
	"github.com/noamisr/maestro/internal/logx"
	"github.com/noamisr/maestro/internal/skill"
	"pkt.systems/pslog"
)

const serverName = "maestro"

// Skills is the registry surface served as tools.
type Skills interface {
	Describe() []skill.Descriptor
	Invoke(ctx context.Context, id string, params map[string]any) skill.Result
}

// Server hosts the MCP tools.
type Server struct {
	mcp    *mcp.Server
	skills Skills
	state  core.StateReader
	logger pslog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger pslog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a server over skills and state. version is reported to clients.
func New(skills Skills, state core.StateReader, version string, opts ...Option) *Server {
	s := &Server{
		skills: skills,
		state:  state,
		logger: pslog.Ctx(context.Background()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if version == "" {
		version = "dev"
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	mcp.AddTool(s.mcp, listSkillsTool(), s.listSkills)
	mcp.AddTool(s.mcp, invokeSkillTool(), s.invokeSkill)
	mcp.AddTool(s.mcp, getStateTool(), s.getState)
	return s
}

// Run serves transport until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server start")
	err := s.mcp.Run(ctx, transport)
	if err != nil && ctx.Err() != nil {
		err = nil
	}
	s.logger.Info("mcp server stop", "err", err)
	return err
}

// RunStdio serves over standard input and output.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// ListSkillsInput filters list_skills.
type ListSkillsInput struct {
	Category string `json:"category,omitempty" jsonschema:"only return skills in this category"`
}

// ListSkillsResult is the list_skills output.
type ListSkillsResult struct {
	Skills []skill.Descriptor `json:"skills" jsonschema:"skill descriptors in registration order"`
}

// InvokeSkillInput names a skill and its parameters.
type InvokeSkillInput struct {
	SkillID string         `json:"skill_id" jsonschema:"skill id, for example transport.tempo"`
	Params  map[string]any `json:"params,omitempty" jsonschema:"parameter values keyed by parameter name"`
}

// StateResult is the get_state output.
type StateResult struct {
	Snapshot core.Snapshot `json:"snapshot" jsonschema:"last known engine state"`
	View     core.View     `json:"view" jsonschema:"derived display values"`
}

// GetStateInput takes no arguments.
type GetStateInput struct{}

func listSkillsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_skills",
		Description: "Lists the skills that control the DAW, with their parameters",
	}
}

func invokeSkillTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "invoke_skill",
		Description: "Invokes one skill by id with named parameters",
	}
}

func getStateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_state",
		Description: "Returns the current transport, tracks and connection state",
	}
}

func (s *Server) listSkills(_ context.Context, _ *mcp.CallToolRequest, input ListSkillsInput) (*mcp.CallToolResult, ListSkillsResult, error) {
	all := s.skills.Describe()
	out := ListSkillsResult{Skills: make([]skill.Descriptor, 0, len(all))}
	for _, desc := range all {
		if input.Category != "" && !strings.EqualFold(string(desc.Category), input.Category) {
			continue
		}
		out.Skills = append(out.Skills, desc)
	}
	return nil, out, nil
}

func (s *Server) invokeSkill(ctx context.Context, _ *mcp.CallToolRequest, input InvokeSkillInput) (*mcp.CallToolResult, skill.Result, error) {
	if strings.TrimSpace(input.SkillID) == "" {
		return nil, skill.Result{}, fmt.Errorf("skill_id is required")
	}
	ctx = logx.ContextWithOriginLogger(pslog.ContextWithLogger(ctx, s.logger), "mcp")
	result := s.skills.Invoke(ctx, input.SkillID, input.Params)
	if !result.Success {
		return &mcp.CallToolResult{
			IsError:           true,
			Content:           []mcp.Content{&mcp.TextContent{Text: result.Message}},
			StructuredContent: result,
		}, result, nil
	}
	return nil, result, nil
}

func (s *Server) getState(_ context.Context, _ *mcp.CallToolRequest, _ GetStateInput) (*mcp.CallToolResult, StateResult, error) {
	snap := s.state.Snapshot()
	return nil, StateResult{Snapshot: snap, View: core.ViewOf(snap)}, nil
}
