package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomsight/weavesync/internal/timeutil"
)

func seededFilter(t *testing.T, velocity float64) *VelocityFilter {
	t.Helper()
	f := NewVelocityFilter(32, 3.5, 0.25)
	require.True(t, f.Offer(VelocitySample{At: time.Unix(0, 0), Raw: velocity}))
	return f
}

func TestAccumulatorIntegratesWallTime(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	filter := seededFilter(t, 30) // cm/min
	accum := NewDisplacementAccumulator(filter, clock, 20*time.Millisecond)

	accum.Tick() // anchor only
	assert.Zero(t, accum.Snapshot().Total)

	clock.Advance(2 * time.Second)
	accum.Tick()
	snap := accum.Snapshot()
	assert.InDelta(t, 1.0, snap.Total, 1e-9) // 30 cm/min for 2 s
	assert.InDelta(t, 1.0, snap.SinceIteration, 1e-9)
}

func TestAccumulatorUsesActualElapsedTime(t *testing.T) {
	// Jittered tick spacing must not skew the total: only wall time counts.
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	filter := seededFilter(t, 60)
	accum := NewDisplacementAccumulator(filter, clock, 20*time.Millisecond)

	accum.Tick()
	rng := rand.New(rand.NewSource(42))
	var elapsed time.Duration
	for i := 0; i < 50; i++ {
		d := time.Duration(1+rng.Intn(80)) * time.Millisecond
		elapsed += d
		clock.Advance(d)
		accum.Tick()
	}

	expected := 60 * elapsed.Minutes()
	assert.InDelta(t, expected, accum.Snapshot().Total, 1e-9)
}

func TestAccumulatorTotalNonDecreasing(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	filter := seededFilter(t, 25)
	accum := NewDisplacementAccumulator(filter, clock, 20*time.Millisecond)

	accum.Tick()
	prev := 0.0
	for i := 0; i < 100; i++ {
		clock.Advance(time.Duration(i%7) * 10 * time.Millisecond)
		accum.Tick()
		total := accum.Snapshot().Total
		assert.GreaterOrEqual(t, total, prev)
		prev = total
	}
}

func TestResetIterationIdempotent(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	filter := seededFilter(t, 30)
	accum := NewDisplacementAccumulator(filter, clock, 20*time.Millisecond)

	accum.Tick()
	clock.Advance(time.Minute)
	accum.Tick()

	before := accum.Snapshot()
	require.Greater(t, before.SinceIteration, 0.0)

	accum.ResetIteration()
	snap := accum.Snapshot()
	assert.Zero(t, snap.SinceIteration)
	assert.Equal(t, before.Total, snap.Total, "reset must not touch the total")

	accum.ResetIteration()
	assert.Zero(t, accum.Snapshot().SinceIteration)
	assert.Equal(t, before.Total, accum.Snapshot().Total)
}
