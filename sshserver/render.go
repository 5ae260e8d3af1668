package sshserver

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/noamisr/maestro/core"
	"github.com/noamisr/maestro/schema"
)

const trackNameWidth = 16

// renderStatus formats the transport and connection flags on one line.
func renderStatus(p painter, snap core.Snapshot) string {
	view := core.ViewOf(snap)
	playing := p.fg(p.theme.MetaFG, "stopped")
	if snap.Transport.IsPlaying {
		playing = p.fg(p.theme.PlayingFG, "playing")
	}
	parts := []string{
		playing,
		fmt.Sprintf("%.1f BPM", snap.Transport.Tempo),
		p.bold(view.PositionLabel),
	}
	if snap.Transport.LoopEnabled {
		parts = append(parts, fmt.Sprintf("loop %s-%s", core.PositionAt(snap.Transport.LoopStart), core.PositionAt(view.LoopEnd)))
	}
	parts = append(parts,
		"engine "+onlineLabel(p, snap.Connection.Engine),
		"sidecar "+onlineLabel(p, snap.Connection.Sidecar),
	)
	if view.Stale {
		parts = append(parts, p.fg(p.theme.ErrorFG, "stale"))
	}
	return strings.Join(parts, "  ")
}

func onlineLabel(p painter, online bool) string {
	if online {
		return p.fg(p.theme.OKFG, "online")
	}
	return p.fg(p.theme.ErrorFG, "offline")
}

// renderTracks formats one line per track with its mixer flags and the
// playing clip, if any.
func renderTracks(p painter, tracks []schema.TrackState) string {
	if len(tracks) == 0 {
		return p.fg(p.theme.MetaFG, "no tracks")
	}
	lines := make([]string, 0, len(tracks))
	for _, track := range tracks {
		flags := flag(track.Mute, "M") + flag(track.Solo, "S")
		if track.Arm {
			flags += p.fg(p.theme.ArmFG, "R")
		} else {
			flags += "-"
		}
		line := fmt.Sprintf("%3d  %s  vol %4.2f  pan %+5.2f  %s",
			track.Index, pad(track.Name, trackNameWidth), track.Volume, track.Panning, flags)
		if clip, ok := playingClip(track.Clips); ok {
			line += "  " + p.fg(p.theme.PlayingFG, "> "+clipLabel(clip))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderResult(p painter, ok bool, message string) string {
	if ok {
		return message
	}
	return p.fg(p.theme.ErrorFG, "error: "+message)
}

func playingClip(clips []schema.ClipState) (schema.ClipState, bool) {
	for _, clip := range clips {
		if clip.IsPlaying {
			return clip, true
		}
	}
	return schema.ClipState{}, false
}

func clipLabel(clip schema.ClipState) string {
	if clip.Name != "" {
		return clip.Name
	}
	return fmt.Sprintf("scene %d", clip.SceneIndex)
}

func flag(on bool, letter string) string {
	if on {
		return letter
	}
	return "-"
}

func pad(text string, width int) string {
	n := utf8.RuneCountInString(text)
	if n > width {
		runes := []rune(text)
		return string(runes[:width-1]) + "~"
	}
	return text + strings.Repeat(" ", width-n)
}
