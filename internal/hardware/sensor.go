package hardware

import (
	"errors"
	"math/rand"
	"sync"
)

// Sensor failure modes.
var (
	// ErrSensorStopped is returned when the sensor is read without Start.
	ErrSensorStopped = errors.New("hardware: velocity sensor not started")

	// ErrSensorTimeout is returned when the sensor produces no reading
	// within its per-call deadline.
	ErrSensorTimeout = errors.New("hardware: sensor read timed out")
)

// VelocitySensor is the capability interface over the velocity sensor.
// Velocity readings are in cm/min and may be noisy or outright garbage;
// filtering is the caller's job.
type VelocitySensor interface {
	Start() error
	Stop() error

	// Velocity returns the current raw reading in cm/min.
	Velocity() (float64, error)
}

// SimSensor produces noisy readings around a base velocity, with occasional
// spikes and garbage values mimicking the real sensor's misbehaviour.
type SimSensor struct {
	// BaseCmMin is the underlying true velocity.
	BaseCmMin float64

	// NoiseCmMin is the amplitude of gaussian noise around the base.
	NoiseCmMin float64

	// SpikeRate is the probability of a garbage reading per call.
	SpikeRate float64

	// FailRate is the probability of a read error per call.
	FailRate float64

	mu      sync.Mutex
	rng     *rand.Rand
	started bool
}

// NewSimSensor creates a SimSensor with the given base velocity and defaults
// tuned to look like the bench rig: 5% noise, 1% spikes.
func NewSimSensor(baseCmMin float64, seed int64) *SimSensor {
	return &SimSensor{
		BaseCmMin:  baseCmMin,
		NoiseCmMin: baseCmMin * 0.05,
		SpikeRate:  0.01,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Start powers the sensor on.
func (s *SimSensor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Stop powers the sensor off.
func (s *SimSensor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// SetBase changes the underlying true velocity, for scenario tests.
func (s *SimSensor) SetBase(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BaseCmMin = v
}

// Velocity returns one raw reading.
func (s *SimSensor) Velocity() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0, ErrSensorStopped
	}
	if s.FailRate > 0 && s.rng.Float64() < s.FailRate {
		return 0, ErrSensorTimeout
	}
	if s.SpikeRate > 0 && s.rng.Float64() < s.SpikeRate {
		// Garbage: wild positive spikes and the occasional negative.
		if s.rng.Float64() < 0.25 {
			return -s.BaseCmMin * 10, nil
		}
		return s.BaseCmMin * (10 + s.rng.Float64()*40), nil
	}
	return s.BaseCmMin + s.rng.NormFloat64()*s.NoiseCmMin, nil
}
