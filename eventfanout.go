package maestro

import "github.com/noamisr/maestro/core"

// changeFanout delivers each state change to several sinks in order.
type changeFanout struct {
	sinks []core.ChangeSink
}

func (f changeFanout) OnStateChange(change core.StateChange) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnStateChange(change)
	}
}
