package skill

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func volumeDescriptor() Descriptor {
	return Descriptor{
		ID: "track.volume",
		Params: []Param{
			{Name: "trackIndex", Type: TrackIndex(), Required: true},
			{Name: "volume", Type: Range(0, 1), Required: true},
		},
	}
}

func TestValidateMissingRequired(t *testing.T) {
	_, err := Validate(volumeDescriptor(), map[string]any{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Param != "trackIndex" || !strings.Contains(err.Error(), "trackIndex") {
		t.Fatalf("expected error naming trackIndex, got %q", err)
	}
}

func TestValidateRange(t *testing.T) {
	desc := volumeDescriptor()
	cases := []struct {
		volume any
		ok     bool
	}{
		{1.5, false},
		{-0.01, false},
		{0.5, true},
		{0, true},
		{1, true},
		{json.Number("0.25"), true},
		{float32(0.75), true},
		{"0.5", false},
		{true, false},
	}
	for _, tc := range cases {
		args, err := Validate(desc, map[string]any{"trackIndex": 0, "volume": tc.volume})
		if tc.ok && err != nil {
			t.Fatalf("volume %v: unexpected error %v", tc.volume, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("volume %v: expected error", tc.volume)
			}
			if !strings.Contains(err.Error(), "volume") {
				t.Fatalf("volume %v: error does not name param: %q", tc.volume, err)
			}
			continue
		}
		if _, isFloat := args["volume"].(float64); !isFloat {
			t.Fatalf("volume %v: expected float64 normalization, got %T", tc.volume, args["volume"])
		}
	}
}

func TestValidateIndexes(t *testing.T) {
	desc := Descriptor{ID: "clip.fire", Params: []Param{
		{Name: "trackIndex", Type: TrackIndex(), Required: true},
		{Name: "clipIndex", Type: ClipIndex(), Required: true},
	}}
	cases := []struct {
		track any
		ok    bool
	}{
		{0, true},
		{3.0, true},
		{uint8(2), true},
		{-1, false},
		{1.5, false},
		{"1", false},
	}
	for _, tc := range cases {
		args, err := Validate(desc, map[string]any{"trackIndex": tc.track, "clipIndex": 0})
		if tc.ok != (err == nil) {
			t.Fatalf("trackIndex %v: ok=%v err=%v", tc.track, tc.ok, err)
		}
		if tc.ok {
			if _, isInt := args["trackIndex"].(int); !isInt {
				t.Fatalf("trackIndex %v: expected int, got %T", tc.track, args["trackIndex"])
			}
		}
	}
}

func TestValidateDefaultsAndOptional(t *testing.T) {
	desc := Descriptor{ID: "search.text", Params: []Param{
		{Name: "query", Type: String(), Required: true},
		{Name: "nResults", Type: Range(1, 100), DefaultValue: 10},
		{Name: "tag", Type: String()},
	}}
	args, err := Validate(desc, map[string]any{"query": "pad"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if args.Int("nResults") != 10 || args.Float("nResults") != 10 {
		t.Fatalf("expected default nResults, got %v", args["nResults"])
	}
	if _, ok := args["tag"]; ok {
		t.Fatalf("did not expect optional param without default")
	}
	if args.String("query") != "pad" {
		t.Fatalf("unexpected query %q", args.String("query"))
	}
}

func TestValidateRequiredWithDefault(t *testing.T) {
	desc := Descriptor{ID: "x", Params: []Param{{Name: "on", Type: Bool(), Required: true, DefaultValue: true}}}
	args, err := Validate(desc, nil)
	if err != nil || !args.Bool("on") {
		t.Fatalf("expected default to satisfy required param, args=%v err=%v", args, err)
	}
}

func TestValidateFilePathNotChecked(t *testing.T) {
	desc := Descriptor{ID: "search.similar", Params: []Param{{Name: "filePath", Type: FilePath(), Required: true}}}
	if _, err := Validate(desc, map[string]any{"filePath": "/does/not/exist.wav"}); err != nil {
		t.Fatalf("file existence must not be checked: %v", err)
	}
	if _, err := Validate(desc, map[string]any{"filePath": 7}); err == nil {
		t.Fatalf("expected type error for non-string path")
	}
}

func TestValidateIsPure(t *testing.T) {
	desc := volumeDescriptor()
	params := map[string]any{"trackIndex": 1, "volume": 1.5}
	_, first := Validate(desc, params)
	_, second := Validate(desc, params)
	if first == nil || second == nil || first.Error() != second.Error() {
		t.Fatalf("expected identical outcomes, got %v and %v", first, second)
	}
	if len(params) != 2 || params["volume"] != 1.5 {
		t.Fatalf("validate modified caller params: %v", params)
	}
}

func TestParamTypeJSON(t *testing.T) {
	data, err := json.Marshal(Range(0, 1))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"number","min":0,"max":1}` {
		t.Fatalf("unexpected json %s", data)
	}
	data, _ = json.Marshal(TrackIndex())
	if string(data) != `{"type":"trackIndex"}` {
		t.Fatalf("unexpected json %s", data)
	}
}
