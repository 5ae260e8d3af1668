// Package version reports the maestro build version.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "github.com/noamisr/maestro"

// buildVersion is set via -ldflags "-X github.com/noamisr/maestro/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Module    string `json:"module"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"goVersion"`
}

// String renders the info on one line.
func (i Info) String() string {
	out := fmt.Sprintf("%s %s (%s)", i.Module, i.Version, i.GoVersion)
	if i.Revision != "" {
		out += " rev " + i.Revision
	}
	return out
}

// Current returns the best available version string.
func Current() string {
	return Read().Version
}

// Read collects build information from ldflags and the embedded build info.
func Read() Info {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		info = nil
	}
	return fromBuildInfo(info, buildVersion)
}

func fromBuildInfo(info *debug.BuildInfo, override string) Info {
	out := Info{Version: "v0.0.0-unknown", Module: defaultModule}
	if info == nil {
		if v := strings.TrimSpace(override); v != "" {
			out.Version = v
		}
		return out
	}
	out.GoVersion = info.GoVersion
	if path := strings.TrimSpace(info.Main.Path); path != "" {
		out.Module = path
	}
	vcs := readVCS(info)
	out.Revision = vcs.shortRevision()
	out.Modified = vcs.modified
	switch {
	case strings.TrimSpace(override) != "":
		out.Version = strings.TrimSpace(override)
	case info.Main.Version != "" && info.Main.Version != "(devel)":
		out.Version = strings.TrimSuffix(info.Main.Version, "+dirty")
	default:
		if pseudo := vcs.pseudoVersion(); pseudo != "" {
			out.Version = pseudo
		}
	}
	return out
}

type vcsInfo struct {
	revision string
	time     time.Time
	modified bool
}

func readVCS(info *debug.BuildInfo) vcsInfo {
	var out vcsInfo
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			out.revision = setting.Value
		case "vcs.time":
			if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				out.time = parsed
			}
		case "vcs.modified":
			out.modified = setting.Value == "true"
		}
	}
	return out
}

func (v vcsInfo) shortRevision() string {
	if len(v.revision) > 12 {
		return v.revision[:12]
	}
	return v.revision
}

// pseudoVersion follows the Go module pseudo-version layout.
func (v vcsInfo) pseudoVersion() string {
	if v.revision == "" || v.time.IsZero() {
		return ""
	}
	return "v0.0.0-" + v.time.UTC().Format("20060102150405") + "-" + v.shortRevision()
}
