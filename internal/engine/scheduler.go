package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomsight/weavesync/internal/hardware"
	"github.com/loomsight/weavesync/internal/metrics"
	"github.com/loomsight/weavesync/internal/timeutil"
	"github.com/loomsight/weavesync/internal/units"
)

// State names the scheduler's position in its capture cycle.
type State string

// Scheduler states.
const (
	StateIdle       State = "idle"
	StateWaiting    State = "waiting_for_displacement"
	StateCapturingA State = "capturing_light_a"
	StateCapturingB State = "capturing_light_b"
	StateAssembling State = "assembling"
	StateStopped    State = "stopped"
)

// TriggerScheduler is the central control loop. It polls accumulated
// displacement at the sampler's cadence and, once the surface has travelled
// the trigger threshold, drives the camera through the sequential two-light
// shutter protocol. Because the wait is displacement-driven rather than
// timer-driven, the iteration period adapts to velocity on its own.
type TriggerScheduler struct {
	camera    hardware.CameraController
	filter    *VelocityFilter
	accum     *DisplacementAccumulator
	assembler *BatchAssembler
	clock     timeutil.Clock
	poll      time.Duration
	threshold float64 // cm
	lights    [2]hardware.LightType
	log       zerolog.Logger

	mu         sync.Mutex
	state      State
	iterations uint64
}

// NewTriggerScheduler creates a scheduler. Green is captured first, then
// blue; order does not matter downstream, only sequentiality does.
func NewTriggerScheduler(camera hardware.CameraController, filter *VelocityFilter, accum *DisplacementAccumulator, assembler *BatchAssembler, clock timeutil.Clock, poll time.Duration, thresholdCm float64, log zerolog.Logger) *TriggerScheduler {
	return &TriggerScheduler{
		camera:    camera,
		filter:    filter,
		accum:     accum,
		assembler: assembler,
		clock:     clock,
		poll:      poll,
		threshold: thresholdCm,
		lights:    [2]hardware.LightType{hardware.LightGreen, hardware.LightBlue},
		log:       log,
		state:     StateIdle,
	}
}

// State returns the scheduler's current state.
func (s *TriggerScheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Iterations returns the number of completed capture iterations.
func (s *TriggerScheduler) Iterations() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iterations
}

func (s *TriggerScheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run opens the cameras and loops until the context is cancelled. A camera
// that cannot even open is a startup failure and stops the engine.
func (s *TriggerScheduler) Run(ctx context.Context) error {
	if err := s.camera.Open(); err != nil {
		return fmt.Errorf("open cameras: %w", err)
	}
	s.setState(StateWaiting)

	ticker := s.clock.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return nil
		case <-ticker.C():
			if s.accum.Snapshot().SinceIteration < s.threshold {
				continue
			}
			s.runIteration()
		}
	}
}

// runIteration performs one full two-light capture cycle. A camera failure
// aborts the iteration without resetting the displacement counter, so the
// next poll still sees the real accumulated distance and retries.
func (s *TriggerScheduler) runIteration() {
	started := s.clock.Now()

	var captures [2]LightCapture
	for i, light := range s.lights {
		if i == 0 {
			s.setState(StateCapturingA)
		} else {
			s.setState(StateCapturingB)
		}
		capture, err := s.captureLight(light)
		if err != nil {
			s.log.Warn().Err(err).Str("light", string(light)).Msg("capture failed, aborting iteration")
			metrics.IterationsAborted.Inc()
			s.setState(StateWaiting)
			return
		}
		captures[i] = capture
	}

	// Displacement during this gap is uncovered surface; keep it visible,
	// both as time and as the distance the surface travelled meanwhile.
	gap := captures[1].CreatedAt.Sub(captures[0].CreatedAt)
	metrics.LightGapSeconds.Observe(gap.Seconds())
	gapCm := units.CmMinToCmSec(captures[1].VelocityCmMin) * gap.Seconds()

	s.setState(StateAssembling)
	if err := s.assembler.AssembleAndForward(captures[0], captures[1]); err != nil {
		// The batch was captured but not handed off. Not resetting the
		// counter makes the next poll re-trigger immediately.
		s.log.Error().Err(err).Msg("batch not dispatched")
		metrics.IterationsAborted.Inc()
		s.setState(StateWaiting)
		return
	}

	s.accum.ResetIteration()
	metrics.IterationsCompleted.Inc()
	s.mu.Lock()
	s.iterations++
	s.mu.Unlock()
	s.log.Info().
		Dur("light_gap", gap).
		Float64("light_gap_cm", gapCm).
		Float64("velocity_cm_min", captures[1].VelocityCmMin).
		Dur("iteration_took", s.clock.Since(started)).
		Dur("next_trigger_eta", units.TravelTime(s.threshold, s.filter.Estimate().Value)).
		Msg("capture iteration complete")
	s.setState(StateWaiting)
}

// captureLight runs the sequential shutter protocol for one light. The
// velocity and displacement context is recorded at the shutter-trigger
// instant, when the image is fixed in space, not at collection time.
func (s *TriggerScheduler) captureLight(light hardware.LightType) (LightCapture, error) {
	if err := s.camera.SetLightType(light); err != nil {
		return LightCapture{}, err
	}

	est := s.filter.Estimate()
	snap := s.accum.Snapshot()
	at := s.clock.Now()

	if err := s.camera.Trigger(); err != nil {
		return LightCapture{}, err
	}
	pictures, err := s.camera.CollectPictures()
	if err != nil {
		return LightCapture{}, err
	}

	return LightCapture{
		Light:          light,
		CreatedAt:      at,
		VelocityCmMin:  est.Value,
		DisplacementCm: snap.Total,
		Pictures:       pictures,
	}, nil
}
