package skill

import (
	"context"
	"fmt"
)

// Category groups skills for palettes and help output.
type Category string

const (
	CategoryTransport Category = "Transport"
	CategoryTrack     Category = "Track"
	CategoryClip      Category = "Clip"
	CategorySearch    Category = "Search"
	CategoryUtility   Category = "Utility"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{CategoryTransport, CategoryTrack, CategoryClip, CategorySearch, CategoryUtility}
}

// ParamKind tags the ParamType variant.
type ParamKind string

const (
	KindNumber     ParamKind = "number"
	KindString     ParamKind = "string"
	KindBool       ParamKind = "bool"
	KindTrackIndex ParamKind = "trackIndex"
	KindClipIndex  ParamKind = "clipIndex"
	KindFilePath   ParamKind = "filePath"
)

// ParamType is a tagged variant. Min and Max only apply to KindNumber and
// are inclusive.
type ParamType struct {
	Kind ParamKind `json:"type"`
	Min  *float64  `json:"min,omitempty"`
	Max  *float64  `json:"max,omitempty"`
}

// Number returns an unbounded number type.
func Number() ParamType { return ParamType{Kind: KindNumber} }

// Range returns a number type bounded to [min, max].
func Range(min, max float64) ParamType {
	return ParamType{Kind: KindNumber, Min: &min, Max: &max}
}

// String returns a string type.
func String() ParamType { return ParamType{Kind: KindString} }

// Bool returns a bool type.
func Bool() ParamType { return ParamType{Kind: KindBool} }

// TrackIndex returns a track index type.
func TrackIndex() ParamType { return ParamType{Kind: KindTrackIndex} }

// ClipIndex returns a clip (scene) index type.
func ClipIndex() ParamType { return ParamType{Kind: KindClipIndex} }

// FilePath returns an opaque file path type.
func FilePath() ParamType { return ParamType{Kind: KindFilePath} }

func (t ParamType) String() string {
	switch {
	case t.Kind == KindNumber && t.Min != nil && t.Max != nil:
		return fmt.Sprintf("number in [%g, %g]", *t.Min, *t.Max)
	case t.Kind == KindNumber && t.Min != nil:
		return fmt.Sprintf("number >= %g", *t.Min)
	case t.Kind == KindNumber && t.Max != nil:
		return fmt.Sprintf("number <= %g", *t.Max)
	case t.Kind == KindTrackIndex, t.Kind == KindClipIndex:
		return "non-negative integer"
	case t.Kind == KindFilePath:
		return "file path"
	default:
		return string(t.Kind)
	}
}

// Param declares one skill parameter.
type Param struct {
	Name         string    `json:"name"`
	Type         ParamType `json:"paramType"`
	Description  string    `json:"description"`
	Required     bool      `json:"required"`
	DefaultValue any       `json:"defaultValue"`
}

// Descriptor is the discoverable metadata of a skill.
type Descriptor struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Category         Category `json:"category"`
	Params           []Param  `json:"params"`
	KeyboardShortcut string   `json:"keyboardShortcut,omitempty"`
}

// Clone returns a copy whose Params slice can be modified freely.
func (d Descriptor) Clone() Descriptor {
	params := make([]Param, len(d.Params))
	copy(params, d.Params)
	d.Params = params
	return d
}

// Result is the outcome of an invocation. Message is shown to the caller
// verbatim.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Executor performs a validated invocation. It returns a confirmation
// message and optional data.
type Executor func(ctx context.Context, args Args) (string, any, error)

// Skill pairs a descriptor with its executor.
type Skill struct {
	Descriptor
	Execute Executor
}
