package core

import (
	"context"

	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

// Transition describes an engine connectivity edge.
type Transition int

const (
	// TransitionNone means the engine flag did not change.
	TransitionNone Transition = iota
	// TransitionUp means the engine became reachable.
	TransitionUp
	// TransitionDown means the engine became unreachable.
	TransitionDown
)

// Supervisor reflects the last reported engine and sidecar reachability.
// It is driven by the router only and never reconnects anything itself.
type Supervisor struct {
	store  StateWriter
	logger pslog.Logger
}

// NewSupervisor constructs a Supervisor writing to store.
func NewSupervisor(store StateWriter, logger pslog.Logger) *Supervisor {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Supervisor{store: store, logger: logger}
}

// SetEngine records engine reachability. A true to false edge resets the
// store to defaults in the same step. A false to true edge marks the store
// unsynced until the next full-sync.
func (s *Supervisor) SetEngine(connected bool) Transition {
	prev := s.store.Connection().Engine
	switch {
	case prev && !connected:
		s.store.ResetDisconnected()
		s.logger.Warn("supervisor engine disconnected", "state", "reset")
		return TransitionDown
	case !prev && connected:
		s.store.MarkUnsynced()
		s.store.SetEngineConnected(true)
		s.logger.Info("supervisor engine connected")
		return TransitionUp
	case !prev && !connected:
		// State applied while the flag was never raised is still untrusted.
		snap := s.store.Snapshot()
		if snap.Transport != schema.DefaultTransport() || len(snap.Tracks) > 0 {
			s.store.ResetDisconnected()
		}
		return TransitionNone
	default:
		return TransitionNone
	}
}

// SetSidecar records sidecar reachability.
func (s *Supervisor) SetSidecar(connected bool) {
	if s.store.Connection().Sidecar == connected {
		return
	}
	s.store.SetSidecarConnected(connected)
	s.logger.Info("supervisor sidecar status", "connected", connected)
}
