package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomsight/weavesync/internal/monitoring"
	"github.com/loomsight/weavesync/internal/timeutil"
)

type statusRecord struct {
	velocity     float64
	displacement float64
}

type fakeStatusSink struct {
	mu      sync.Mutex
	reports []statusRecord
	err     error
}

func (s *fakeStatusSink) EnqueueStatus(v, d float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, statusRecord{velocity: v, displacement: d})
	return nil
}

func (s *fakeStatusSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func (s *fakeStatusSink) last() statusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[len(s.reports)-1]
}

func TestReporterEmitsOnPeriod(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	filter := seededFilter(t, 30)
	accum := NewDisplacementAccumulator(filter, clock, 20*time.Millisecond)
	sink := &fakeStatusSink{}
	rep := NewStatusReporter(filter, accum, sink, clock, 2*time.Second, monitoring.NewLogger("disabled"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rep.Run(ctx) }()

	accum.Tick()
	clock.Advance(2 * time.Second)
	accum.Tick()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("no status report emitted")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	require.NoError(t, <-done)

	got := sink.last()
	assert.InDelta(t, 30, got.velocity, 0.01)
	assert.InDelta(t, 1.0, got.displacement, 0.01) // 30 cm/min for 2 s
}

func TestReporterToleratesSinkErrors(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	filter := seededFilter(t, 30)
	accum := NewDisplacementAccumulator(filter, clock, 20*time.Millisecond)
	sink := &fakeStatusSink{err: errors.New("queue full")}
	rep := NewStatusReporter(filter, accum, sink, clock, 2*time.Second, monitoring.NewLogger("disabled"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rep.Run(ctx) }()

	for i := 0; i < 3; i++ {
		clock.Advance(2 * time.Second)
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	assert.NoError(t, <-done)
}
