package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

func TestNewStoreDefaults(t *testing.T) {
	store := NewStore()
	snap := store.Snapshot()
	if snap.Transport != schema.DefaultTransport() {
		t.Fatalf("unexpected default transport: %+v", snap.Transport)
	}
	want := schema.TransportState{Tempo: 120, LoopLength: 4}
	if snap.Transport != want {
		t.Fatalf("expected %+v, got %+v", want, snap.Transport)
	}
	if snap.Tracks == nil || len(snap.Tracks) != 0 {
		t.Fatalf("expected empty non-nil tracks, got %#v", snap.Tracks)
	}
	if snap.Synced || snap.Connection.Engine || snap.Connection.Sidecar {
		t.Fatalf("unexpected flags: %+v", snap)
	}
}

func TestStoreReadsAreCopies(t *testing.T) {
	store := NewStore()
	store.ReplaceTracks([]schema.TrackState{{Index: 0, Name: "Drums", Clips: []schema.ClipState{{Name: "a"}}}})

	tracks := store.Tracks()
	tracks[0].Name = "changed"
	tracks[0].Clips[0].Name = "changed"

	got, ok := store.Track(0)
	if !ok {
		t.Fatalf("expected track 0")
	}
	if got.Name != "Drums" || got.Clips[0].Name != "a" {
		t.Fatalf("store mutated through read copy: %+v", got)
	}
	if _, ok := store.Track(3); ok {
		t.Fatalf("did not expect track 3")
	}
}

func TestReplaceTrackByIndex(t *testing.T) {
	store := NewStore()
	store.ReplaceTracks([]schema.TrackState{{Index: 0, Name: "A"}, {Index: 1, Name: "B"}})
	if !store.ReplaceTrack(schema.TrackState{Index: 1, Name: "B2", Volume: 0.5}) {
		t.Fatalf("expected replace to succeed")
	}
	if store.ReplaceTrack(schema.TrackState{Index: 7}) {
		t.Fatalf("expected replace of unknown index to fail")
	}
	tracks := store.Tracks()
	if len(tracks) != 2 || tracks[1].Name != "B2" || tracks[0].Name != "A" {
		t.Fatalf("unexpected tracks: %+v", tracks)
	}
}

func TestTransportPatchDoesNotAlterTracks(t *testing.T) {
	store := NewStore()
	store.ReplaceTracks([]schema.TrackState{{Index: 0, Name: "A"}})
	before := store.Snapshot().Version
	store.SetPlaying(true)
	store.SetTempo(90)
	store.SetCurrentTime(8)
	snap := store.Snapshot()
	if len(snap.Tracks) != 1 || snap.Tracks[0].Name != "A" {
		t.Fatalf("transport patch altered tracks: %+v", snap.Tracks)
	}
	if !snap.Transport.IsPlaying || snap.Transport.Tempo != 90 || snap.Transport.CurrentTime != 8 {
		t.Fatalf("unexpected transport: %+v", snap.Transport)
	}
	if snap.Version != before+3 {
		t.Fatalf("expected version %d, got %d", before+3, snap.Version)
	}
}

func TestResetKeepsConnectionFlags(t *testing.T) {
	store := NewStore()
	store.SetSidecarConnected(true)
	store.SetEngineConnected(true)
	store.SetTempo(140)
	store.ReplaceTracks([]schema.TrackState{{Index: 0}})
	store.Reset()
	snap := store.Snapshot()
	if snap.Transport != schema.DefaultTransport() || len(snap.Tracks) != 0 {
		t.Fatalf("expected defaults after reset, got %+v", snap)
	}
	if !snap.Connection.Engine || !snap.Connection.Sidecar {
		t.Fatalf("expected connection flags kept, got %+v", snap.Connection)
	}
}

func TestResetDisconnectedIsOneChange(t *testing.T) {
	store := NewStore()
	store.SetEngineConnected(true)
	store.SetTempo(140)
	changes, cancel := store.Subscribe()
	defer cancel()

	store.ResetDisconnected()
	select {
	case change := <-changes:
		if change.Kind != ChangeReset {
			t.Fatalf("expected reset change, got %s", change.Kind)
		}
		if change.Snapshot.Connection.Engine || change.Snapshot.Transport.Tempo != 120 {
			t.Fatalf("expected flag and state reset together, got %+v", change.Snapshot)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for change")
	}
	select {
	case extra := <-changes:
		t.Fatalf("unexpected extra change: %+v", extra)
	default:
	}
}

func TestApplyFullStateReplacesAggregate(t *testing.T) {
	store := NewStore()
	store.ReplaceTracks([]schema.TrackState{{Index: 0}, {Index: 1}, {Index: 2}})
	full := schema.EngineFullState{
		TransportState: schema.TransportState{IsPlaying: true, Tempo: 98, CurrentTime: 3, LoopEnabled: true, LoopStart: 8, LoopLength: 16},
		NumTracks:      1,
		NumScenes:      8,
		Tracks:         []schema.TrackState{{Index: 0, Name: "Bass"}},
	}
	store.ApplyFullState(full)
	snap := store.Snapshot()
	if snap.Transport != full.TransportState {
		t.Fatalf("unexpected transport: %+v", snap.Transport)
	}
	if len(snap.Tracks) != 1 || snap.Tracks[0].Name != "Bass" || snap.NumScenes != 8 {
		t.Fatalf("unexpected tracks: %+v", snap)
	}
	if !snap.Synced {
		t.Fatalf("expected synced after full state")
	}
	store.MarkUnsynced()
	if store.Snapshot().Synced {
		t.Fatalf("expected unsynced")
	}
}

func TestSubscribeReceivesChangesInOrder(t *testing.T) {
	store := NewStore()
	changes, cancel := store.Subscribe()
	defer cancel()

	store.SetTempo(100)
	store.SetTempo(101)
	first := <-changes
	second := <-changes
	if first.Snapshot.Transport.Tempo != 100 || second.Snapshot.Transport.Tempo != 101 {
		t.Fatalf("unexpected order: %v then %v", first.Snapshot.Transport.Tempo, second.Snapshot.Transport.Tempo)
	}
	if first.Channel != schema.ChannelTempoChanged || first.Kind != ChangeTransport {
		t.Fatalf("unexpected change metadata: %+v", first)
	}
}

func TestConnectionNoopDoesNotNotify(t *testing.T) {
	store := NewStore()
	changes, cancel := store.Subscribe()
	defer cancel()
	store.SetSidecarConnected(false)
	store.SetEngineConnected(false)
	select {
	case change := <-changes:
		t.Fatalf("unexpected change: %+v", change)
	default:
	}
}

type recordingSink struct {
	changes []StateChange
}

func (s *recordingSink) OnStateChange(change StateChange) {
	s.changes = append(s.changes, change)
}

func TestChangeSinkReceivesEveryChange(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(WithChangeSink(sink))
	store.SetPlaying(true)
	store.SetLoop(schema.LoopStatePayload{LoopEnabled: true, LoopStart: 4, LoopLength: 8})
	if len(sink.changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(sink.changes))
	}
	last := sink.changes[1].Snapshot.Transport
	if !last.LoopEnabled || last.LoopStart != 4 || last.LoopLength != 8 || !last.IsPlaying {
		t.Fatalf("unexpected transport: %+v", last)
	}
}

type kindSink struct{ kinds []ChangeKind }

func (s *kindSink) OnStateChange(change StateChange) {
	s.kinds = append(s.kinds, change.Kind)
}

type failingBus struct{}

func (failingBus) Publish(context.Context, string, StateChange) error {
	return errors.New("bus closed")
}

func (failingBus) Subscribe(string) (<-chan StateChange, func()) {
	return make(chan StateChange), func() {}
}

func TestStoreLogsFailedNotification(t *testing.T) {
	var buf bytes.Buffer
	logger := pslog.NewWithOptions(&buf, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.TraceLevel,
	})
	sink := &kindSink{}
	store := NewStore(WithStoreLogger(logger), WithChangeSink(sink))
	store.bus = failingBus{}

	store.SetTempo(99)
	if got := store.Transport().Tempo; got != 99 {
		t.Fatalf("expected tempo applied despite notify failure, got %v", got)
	}
	if len(sink.kinds) != 1 {
		t.Fatalf("expected sink to still see the change, got %v", sink.kinds)
	}
	if !strings.Contains(buf.String(), "store change notify failed") || !strings.Contains(buf.String(), "bus closed") {
		t.Fatalf("expected trace entry, got %s", buf.String())
	}
}
