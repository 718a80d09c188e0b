package engine

import (
	"context"
	"sync"
	"time"

	"github.com/loomsight/weavesync/internal/timeutil"
	"github.com/loomsight/weavesync/internal/units"
)

// DisplacementAccumulator integrates the filtered velocity over wall time
// into cumulative displacement. The periodic tick is the single writer;
// readers take snapshots. Integration uses the actual elapsed time between
// ticks, so scheduling jitter cannot skew the totals.
type DisplacementAccumulator struct {
	filter   *VelocityFilter
	clock    timeutil.Clock
	interval time.Duration

	mu    sync.RWMutex
	last  time.Time
	state DisplacementState
}

// NewDisplacementAccumulator creates an accumulator ticking at the given
// interval when driven by Run.
func NewDisplacementAccumulator(filter *VelocityFilter, clock timeutil.Clock, interval time.Duration) *DisplacementAccumulator {
	return &DisplacementAccumulator{
		filter:   filter,
		clock:    clock,
		interval: interval,
	}
}

// Run drives Tick until the context is cancelled.
func (a *DisplacementAccumulator) Run(ctx context.Context) error {
	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			a.Tick()
		}
	}
}

// Tick integrates one step: delta = filtered velocity x elapsed wall time.
// The first tick only anchors the time base.
func (a *DisplacementAccumulator) Tick() {
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last.IsZero() {
		a.last = now
		return
	}
	dt := now.Sub(a.last)
	if dt <= 0 {
		return
	}
	a.last = now

	// The filter clamps its estimate at zero, so delta is never negative
	// and Total never decreases.
	delta := units.Displacement(a.filter.Estimate().Value, dt)
	a.state.SinceIteration += delta
	a.state.Total += delta
}

// Snapshot returns the current state without blocking the writer.
func (a *DisplacementAccumulator) Snapshot() DisplacementState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// ResetIteration zeroes the per-iteration counter, leaving the total intact.
// Called exactly once per completed capture iteration.
func (a *DisplacementAccumulator) ResetIteration() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.SinceIteration = 0
}
