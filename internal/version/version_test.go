package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestOverrideWins(t *testing.T) {
	info := &debug.BuildInfo{Main: debug.Module{Path: "example.com/x", Version: "v9.9.9"}}
	got := fromBuildInfo(info, "v1.2.3")
	if got.Version != "v1.2.3" || got.Module != "example.com/x" {
		t.Fatalf("unexpected info %+v", got)
	}
}

func TestPseudoVersionFromVCS(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	info := &debug.BuildInfo{
		GoVersion: "go1.24.0",
		Main:      debug.Module{Path: defaultModule, Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	got := fromBuildInfo(info, "")
	if got.Version != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected version %q", got.Version)
	}
	if !got.Modified || got.Revision != "1234567890ab" {
		t.Fatalf("unexpected vcs fields %+v", got)
	}
	if !strings.Contains(got.String(), "rev 1234567890ab") {
		t.Fatalf("unexpected string %q", got.String())
	}
}

func TestMissingBuildInfo(t *testing.T) {
	got := fromBuildInfo(nil, "")
	if got.Version != "v0.0.0-unknown" || got.Module != defaultModule {
		t.Fatalf("unexpected info %+v", got)
	}
}

func TestModuleVersionDropsDirtySuffix(t *testing.T) {
	info := &debug.BuildInfo{Main: debug.Module{Path: defaultModule, Version: "v0.3.0+dirty"}}
	if got := fromBuildInfo(info, ""); got.Version != "v0.3.0" {
		t.Fatalf("unexpected version %q", got.Version)
	}
}
