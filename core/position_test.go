package core

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/noamisr/maestro/schema"
)

func TestPositionAt(t *testing.T) {
	cases := []struct {
		beats float64
		want  Position
	}{
		{0, Position{1, 1, 0}},
		{4.0, Position{2, 1, 0}},
		{4.5, Position{2, 1, 50}},
		{3.99, Position{1, 4, 99}},
		{3.999, Position{1, 4, 99}},
		{7.25, Position{2, 4, 25}},
		{16, Position{5, 1, 0}},
		{-0.5, Position{0, 4, 50}},
		{-4, Position{0, 1, 0}},
	}
	for _, tc := range cases {
		if got := PositionAt(tc.beats); got != tc.want {
			t.Fatalf("PositionAt(%v) = %+v, want %+v", tc.beats, got, tc.want)
		}
	}
}

func TestPositionAtRanges(t *testing.T) {
	for i := 0; i <= 40000; i++ {
		beats := float64(i) * 0.00731
		p := PositionAt(beats)
		if p.Bar < 1 || p.Beat < 1 || p.Beat > 4 || p.Tick < 0 || p.Tick > 99 {
			t.Fatalf("PositionAt(%v) out of range: %+v", beats, p)
		}
	}
	for _, beats := range []float64{-0.001, -3.3, -1000.75} {
		p := PositionAt(beats)
		if p.Beat < 1 || p.Beat > 4 || p.Tick < 0 || p.Tick > 99 {
			t.Fatalf("PositionAt(%v) out of range: %+v", beats, p)
		}
	}
}

func TestPositionAtNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := PositionAt(v); got != (Position{Bar: 1, Beat: 1}) {
			t.Fatalf("PositionAt(%v) = %+v", v, got)
		}
	}
}

func TestPositionString(t *testing.T) {
	if got := PositionAt(4.05).String(); got != "2.1.05" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestLoopWindowIsHalfOpen(t *testing.T) {
	tr := schema.TransportState{LoopStart: 4, LoopLength: 4}
	if LoopEnd(tr) != 8 {
		t.Fatalf("unexpected loop end %v", LoopEnd(tr))
	}
	if !InLoop(4, tr) || !InLoop(7.99, tr) || InLoop(8, tr) || InLoop(3.99, tr) {
		t.Fatalf("loop window not half-open")
	}
}

func TestBeatsToSeconds(t *testing.T) {
	if got := BeatsToSeconds(4, 120); got != 2 {
		t.Fatalf("expected 2s, got %v", got)
	}
	if got := BeatsToSeconds(4, 0); got != 0 {
		t.Fatalf("expected 0 for zero tempo, got %v", got)
	}
}

func TestViewOfMarksStale(t *testing.T) {
	store := NewStore()
	view := ViewOf(store.Snapshot())
	if !view.Stale || view.PositionLabel != "1.1.00" || view.LoopEnd != 4 {
		t.Fatalf("unexpected default view: %+v", view)
	}
	store.SetEngineConnected(true)
	store.ApplyFullState(schema.EngineFullState{TransportState: schema.TransportState{
		Tempo: 60, CurrentTime: 2, LoopEnabled: true, LoopStart: 0, LoopLength: 4,
	}})
	view = ViewOf(store.Snapshot())
	if view.Stale || !view.InLoop || view.Seconds != 2 {
		t.Fatalf("unexpected synced view: %+v", view)
	}
}

func TestWatchPositionEmitsOnChange(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	positions := WatchPosition(ctx, store)

	expect := func(want Position) {
		t.Helper()
		select {
		case got := <-positions:
			if got != want {
				t.Fatalf("expected %+v, got %+v", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %+v", want)
		}
	}
	expect(Position{1, 1, 0})
	store.SetTempo(99)
	store.SetCurrentTime(4.5)
	expect(Position{2, 1, 50})

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-positions:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("watch channel not closed after cancel")
		}
	}
}
