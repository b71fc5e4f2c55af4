package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/sparsestereo/logging"
)

// ProfilingTimer measures the wall time of pipeline phases. It is diagnostic only.
type ProfilingTimer struct {
	clk   clock.Clock
	start time.Time
}

// NewProfilingTimer starts a timer on the given clock. A nil clock uses the real clock.
func NewProfilingTimer(clk clock.Clock) *ProfilingTimer {
	if clk == nil {
		clk = clock.New()
	}
	return &ProfilingTimer{clk: clk, start: clk.Now()}
}

// Elapsed returns the time since the timer was started or last reset.
func (pt *ProfilingTimer) Elapsed() time.Duration {
	return pt.clk.Since(pt.start)
}

// Reset restarts the timer.
func (pt *ProfilingTimer) Reset() {
	pt.start = pt.clk.Now()
}

// Lap logs the elapsed time for the named phase at debug level and restarts the timer.
func (pt *ProfilingTimer) Lap(ctx context.Context, logger logging.Logger, phase string) time.Duration {
	elapsed := pt.Elapsed()
	logger.CDebugw(ctx, "phase timing", "phase", phase, "elapsed", elapsed)
	pt.Reset()
	return elapsed
}
