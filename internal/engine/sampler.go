package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomsight/weavesync/internal/hardware"
	"github.com/loomsight/weavesync/internal/metrics"
	"github.com/loomsight/weavesync/internal/timeutil"
)

// ErrSensorRead marks sustained velocity sensor failure.
var ErrSensorRead = errors.New("engine: velocity sensor read failed")

// VelocitySampler polls the sensor at a fixed cadence and feeds each reading
// to the filter. A failed read is skipped and counted; errorMax consecutive
// failures escalate to a fatal error that stops the sampler.
type VelocitySampler struct {
	sensor   hardware.VelocitySensor
	filter   *VelocityFilter
	clock    timeutil.Clock
	interval time.Duration
	errorMax int
	log      zerolog.Logger

	consecutive int
	skipped     atomic.Uint64
}

// NewVelocitySampler creates a sampler polling at the given interval.
func NewVelocitySampler(sensor hardware.VelocitySensor, filter *VelocityFilter, clock timeutil.Clock, interval time.Duration, errorMax int, log zerolog.Logger) *VelocitySampler {
	return &VelocitySampler{
		sensor:   sensor,
		filter:   filter,
		clock:    clock,
		interval: interval,
		errorMax: errorMax,
		log:      log,
	}
}

// Skipped returns how many samples were lost to read errors.
func (s *VelocitySampler) Skipped() uint64 { return s.skipped.Load() }

// Run polls until the context is cancelled or the sensor fails errorMax
// times in a row.
func (s *VelocitySampler) Run(ctx context.Context) error {
	if err := s.sensor.Start(); err != nil {
		return fmt.Errorf("start velocity sensor: %w", err)
	}
	defer s.sensor.Stop()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			if err := s.sample(now); err != nil {
				return err
			}
		}
	}
}

func (s *VelocitySampler) sample(now time.Time) error {
	v, err := s.sensor.Velocity()
	if err != nil {
		s.consecutive++
		s.skipped.Add(1)
		metrics.SensorErrors.Inc()
		s.log.Debug().Err(err).Int("consecutive", s.consecutive).Msg("sensor read failed, sample skipped")
		if s.consecutive >= s.errorMax {
			return fmt.Errorf("%w: %d consecutive failures, last: %v", ErrSensorRead, s.consecutive, err)
		}
		return nil
	}
	s.consecutive = 0
	metrics.SamplesRead.Inc()
	if !s.filter.Offer(VelocitySample{At: now, Raw: v}) {
		metrics.SamplesRejected.Inc()
	}
	return nil
}
