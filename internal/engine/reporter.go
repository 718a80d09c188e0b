package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomsight/weavesync/internal/timeutil"
)

// StatusReporter emits the current velocity and total displacement on a
// fixed period, independent of capture cadence. It never blocks the capture
// path: a full or closed sink only costs a log line.
type StatusReporter struct {
	filter *VelocityFilter
	accum  *DisplacementAccumulator
	sink   StatusSink
	clock  timeutil.Clock
	period time.Duration
	log    zerolog.Logger
}

// NewStatusReporter creates a reporter with the given period.
func NewStatusReporter(filter *VelocityFilter, accum *DisplacementAccumulator, sink StatusSink, clock timeutil.Clock, period time.Duration, log zerolog.Logger) *StatusReporter {
	return &StatusReporter{
		filter: filter,
		accum:  accum,
		sink:   sink,
		clock:  clock,
		period: period,
		log:    log,
	}
}

// Run reports until the context is cancelled.
func (r *StatusReporter) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			est := r.filter.Estimate()
			snap := r.accum.Snapshot()
			if err := r.sink.EnqueueStatus(est.Value, snap.Total); err != nil {
				r.log.Warn().Err(err).Msg("status report not enqueued")
			}
		}
	}
}
