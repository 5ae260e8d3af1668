package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/noamisr/maestro/internal/logx"
	"github.com/noamisr/maestro/internal/skill"
)

// Skills is the registry surface the handler needs.
type Skills interface {
	Describe() []skill.Descriptor
	Lookup(id string) (skill.Descriptor, bool)
	Invoke(ctx context.Context, id string, params map[string]any) skill.Result
}

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	DisableAuditLogging bool
}

type alias struct {
	skill  string
	preset map[string]any
}

var aliases = map[string]alias{
	"play":     {skill: "transport.play"},
	"stop":     {skill: "transport.stop"},
	"continue": {skill: "transport.continue"},
	"rec":      {skill: "transport.record"},
	"record":   {skill: "transport.record"},
	"tempo":    {skill: "transport.tempo"},
	"bpm":      {skill: "transport.tempo"},
	"loop":     {skill: "transport.loop"},
	"vol":      {skill: "track.volume"},
	"volume":   {skill: "track.volume"},
	"pan":      {skill: "track.pan"},
	"mute":     {skill: "track.mute", preset: map[string]any{"mute": true}},
	"unmute":   {skill: "track.mute", preset: map[string]any{"mute": false}},
	"solo":     {skill: "track.solo", preset: map[string]any{"solo": true}},
	"unsolo":   {skill: "track.solo", preset: map[string]any{"solo": false}},
	"fire":     {skill: "clip.fire"},
	"launch":   {skill: "clip.fire"},
	"stopclip": {skill: "clip.stop"},
	"search":   {skill: "search.text"},
	"find":     {skill: "search.text"},
	"similar":  {skill: "search.similar"},
	"insert":   {skill: "search.insert"},
	"index":    {skill: "search.index"},
	"resync":   {skill: "utility.resync"},
	"sync":     {skill: "utility.resync"},
}

// Handler maps slash commands onto skills.
type Handler struct {
	skills Skills
	cfg    HandlerConfig
}

// NewHandler constructs a command handler.
func NewHandler(skills Skills, cfg HandlerConfig) *Handler {
	return &Handler{skills: skills, cfg: cfg}
}

// Handle parses input and invokes the matching skill. The bool reports
// whether input was a slash command at all.
func (h *Handler) Handle(ctx context.Context, input string) (skill.Result, bool, error) {
	if ctx == nil {
		return skill.Result{}, false, errors.New("missing context")
	}
	cmd, ok := Parse(input)
	if !ok {
		return skill.Result{}, false, nil
	}
	log := logx.Ctx(ctx).With("input_len", len(input))
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	log = log.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return failure("invalid command"), true, nil
	case "help", "skills", "?":
		return skill.Result{Success: true, Message: h.help(cmd.Args)}, true, nil
	}
	target, ok := h.resolve(cmd.Name)
	if !ok {
		log.Warn("command slash rejected", "reason", "unknown")
		return failure(fmt.Sprintf("unknown command /%s (try /help)", cmd.Name)), true, nil
	}
	desc, ok := h.skills.Lookup(target.skill)
	if !ok {
		return failure(fmt.Sprintf("unknown command /%s (try /help)", cmd.Name)), true, nil
	}
	params, err := bindArgs(desc, target.preset, cmd.Args)
	if err != nil {
		log.Info("command slash rejected", "reason", "args", "err", err)
		return failure(err.Error() + "\nusage: " + Usage(cmd.Name, desc, target.preset)), true, nil
	}
	return h.skills.Invoke(ctx, desc.ID, params), true, nil
}

func (h *Handler) resolve(name string) (alias, bool) {
	if a, ok := aliases[name]; ok {
		return a, true
	}
	if _, ok := h.skills.Lookup(name); ok {
		return alias{skill: name}, true
	}
	return alias{}, false
}

func failure(message string) skill.Result {
	return skill.Result{Success: false, Message: message}
}

// bindArgs assigns key=value tokens by name and the rest positionally in
// declaration order. A string parameter swallows all remaining positional
// tokens. Alias presets fill whatever is still unset.
func bindArgs(desc skill.Descriptor, preset map[string]any, tokens []string) (map[string]any, error) {
	params := make(map[string]any, len(desc.Params))
	var positional []string
	for _, tok := range tokens {
		if key, value, ok := strings.Cut(tok, "="); ok && key != "" {
			p, found := findParam(desc, key)
			if !found {
				return nil, fmt.Errorf("unknown parameter %q", key)
			}
			v, err := coerce(p, value)
			if err != nil {
				return nil, err
			}
			params[p.Name] = v
			continue
		}
		positional = append(positional, tok)
	}
	for _, p := range desc.Params {
		if len(positional) == 0 {
			break
		}
		if _, set := params[p.Name]; set {
			continue
		}
		if p.Type.Kind == skill.KindString {
			params[p.Name] = strings.Join(positional, " ")
			positional = nil
			break
		}
		v, err := coerce(p, positional[0])
		if err != nil {
			return nil, err
		}
		params[p.Name] = v
		positional = positional[1:]
	}
	if len(positional) > 0 {
		return nil, fmt.Errorf("too many arguments")
	}
	for k, v := range preset {
		if _, set := params[k]; !set {
			params[k] = v
		}
	}
	return params, nil
}

func findParam(desc skill.Descriptor, key string) (skill.Param, bool) {
	for _, p := range desc.Params {
		if strings.EqualFold(p.Name, key) {
			return p, true
		}
	}
	return skill.Param{}, false
}

func coerce(p skill.Param, value string) (any, error) {
	switch p.Type.Kind {
	case skill.KindNumber:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %q must be a number", p.Name)
		}
		return f, nil
	case skill.KindTrackIndex, skill.KindClipIndex:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q must be a non-negative integer", p.Name)
		}
		return n, nil
	case skill.KindBool:
		switch strings.ToLower(value) {
		case "1", "true", "on", "yes":
			return true, nil
		case "0", "false", "off", "no":
			return false, nil
		}
		return nil, fmt.Errorf("parameter %q must be on or off", p.Name)
	default:
		return value, nil
	}
}

// Usage renders a one-line usage string for a command.
func Usage(name string, desc skill.Descriptor, preset map[string]any) string {
	parts := []string{"/" + name}
	for _, p := range desc.Params {
		_, fixed := preset[p.Name]
		if p.Required && p.DefaultValue == nil && !fixed {
			parts = append(parts, "<"+p.Name+">")
		} else {
			parts = append(parts, "["+p.Name+"]")
		}
	}
	return strings.Join(parts, " ")
}

func (h *Handler) help(args []string) string {
	if len(args) > 0 {
		name := strings.TrimPrefix(strings.ToLower(args[0]), "/")
		target, ok := h.resolve(name)
		if !ok {
			return fmt.Sprintf("unknown command /%s", name)
		}
		desc, ok := h.skills.Lookup(target.skill)
		if !ok {
			return fmt.Sprintf("unknown command /%s", name)
		}
		lines := []string{Usage(name, desc, target.preset), desc.Description}
		for _, p := range desc.Params {
			line := fmt.Sprintf("  %s: %s", p.Name, p.Type)
			if p.DefaultValue != nil {
				line += fmt.Sprintf(" (default %v)", p.DefaultValue)
			}
			lines = append(lines, line)
		}
		return strings.Join(lines, "\n")
	}
	names := make(map[string][]string)
	for name, a := range aliases {
		names[a.skill] = append(names[a.skill], "/"+name)
	}
	var lines []string
	var category skill.Category
	for _, d := range h.skills.Describe() {
		if d.Category != category {
			category = d.Category
			lines = append(lines, string(category)+":")
		}
		cmds := names[d.ID]
		sort.Strings(cmds)
		label := "/" + d.ID
		if len(cmds) > 0 {
			label = strings.Join(cmds, ", ")
		}
		line := fmt.Sprintf("  %-24s %s", label, d.Name)
		if d.KeyboardShortcut != "" {
			line += " [" + d.KeyboardShortcut + "]"
		}
		lines = append(lines, line)
	}
	lines = append(lines, "Type /help <command> for parameters.")
	return strings.Join(lines, "\n")
}
