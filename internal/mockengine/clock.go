package mockengine

import (
	"context"
	"time"

	"github.com/noamisr/maestro/schema"
)

func (e *Engine) runClock(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.clock)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			beats, ok := e.advance(now.Sub(last))
			last = now
			if !ok {
				continue
			}
			if err := e.events.Emit(ctx, schema.ChannelSongTime, beats); err != nil {
				e.logger.Trace("mock engine clock emit failed", "err", err)
			}
		}
	}
}

// advance moves song time forward by elapsed wall time at the current tempo.
// The loop window wraps playback when enabled.
func (e *Engine) advance(elapsed time.Duration) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.transport.IsPlaying {
		return 0, false
	}
	t := e.transport.CurrentTime + elapsed.Seconds()*e.transport.Tempo/60
	if e.transport.LoopEnabled && e.transport.LoopLength > 0 {
		end := e.transport.LoopStart + e.transport.LoopLength
		if t >= end {
			over := t - e.transport.LoopStart
			for over >= e.transport.LoopLength {
				over -= e.transport.LoopLength
			}
			t = e.transport.LoopStart + over
		}
	}
	e.transport.CurrentTime = t
	return t, true
}
