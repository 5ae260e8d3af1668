package core

import (
	"context"
	"fmt"
	"math"

	"github.com/noamisr/maestro/schema"
)

// BeatsPerBar is the fixed bar length used for position display.
const BeatsPerBar = 4

// Position is a musical bar/beat/tick display position.
type Position struct {
	Bar  int `json:"bar"`
	Beat int `json:"beat"`
	Tick int `json:"tick"`
}

// String renders the position as bar.beat.tick.
func (p Position) String() string {
	return fmt.Sprintf("%d.%d.%02d", p.Bar, p.Beat, p.Tick)
}

// PositionAt derives the display position from elapsed beats. Negative
// input uses floor division so beat and tick stay in range.
func PositionAt(beats float64) Position {
	if math.IsNaN(beats) || math.IsInf(beats, 0) {
		return Position{Bar: 1, Beat: 1}
	}
	bar := math.Floor(beats/BeatsPerBar) + 1
	inBar := floorMod(beats, BeatsPerBar)
	beat := math.Floor(inBar) + 1
	tick := int(math.Round(floorMod(beats, 1) * 100))
	if tick > 99 {
		tick = 99
	}
	return Position{Bar: int(bar), Beat: int(beat), Tick: tick}
}

func floorMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	if r >= m {
		r = 0
	}
	return r
}

// LoopEnd returns the exclusive end of the loop window.
func LoopEnd(t schema.TransportState) float64 {
	return t.LoopStart + t.LoopLength
}

// InLoop reports whether beats falls in the half-open loop window.
func InLoop(beats float64, t schema.TransportState) bool {
	return beats >= t.LoopStart && beats < LoopEnd(t)
}

// BeatsToSeconds converts beats to seconds at tempo. A non-positive tempo
// yields zero.
func BeatsToSeconds(beats, tempo float64) float64 {
	if tempo <= 0 {
		return 0
	}
	return beats * 60 / tempo
}

// View is the display projection of a snapshot.
type View struct {
	Position      Position `json:"position"`
	PositionLabel string   `json:"positionLabel"`
	Seconds       float64  `json:"seconds"`
	LoopEnd       float64  `json:"loopEnd"`
	InLoop        bool     `json:"inLoop"`
	Stale         bool     `json:"stale"`
}

// ViewOf projects a snapshot into display values. Stale is set whenever the
// engine is disconnected or no full-sync has arrived yet.
func ViewOf(s Snapshot) View {
	pos := PositionAt(s.Transport.CurrentTime)
	return View{
		Position:      pos,
		PositionLabel: pos.String(),
		Seconds:       BeatsToSeconds(s.Transport.CurrentTime, s.Transport.Tempo),
		LoopEnd:       LoopEnd(s.Transport),
		InLoop:        s.Transport.LoopEnabled && InLoop(s.Transport.CurrentTime, s.Transport),
		Stale:         !s.Connection.Engine || !s.Synced,
	}
}

// WatchPosition emits the derived position every time it changes. The
// current position is sent first. The returned channel closes when ctx is
// done.
func WatchPosition(ctx context.Context, reader StateReader) <-chan Position {
	out := make(chan Position, 1)
	changes, cancel := reader.Subscribe()
	go func() {
		defer close(out)
		defer cancel()
		last := PositionAt(reader.Transport().CurrentTime)
		select {
		case out <- last:
		case <-ctx.Done():
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-changes:
				if !ok {
					return
				}
				next := PositionAt(change.Snapshot.Transport.CurrentTime)
				if next == last {
					continue
				}
				last = next
				select {
				case out <- next:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
