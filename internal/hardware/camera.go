// Package hardware defines the narrow collaborator interfaces for the camera
// rig and the velocity sensor, together with simulated implementations and a
// serial-port sensor adapter.
package hardware

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// LightType identifies which light the cameras capture under.
type LightType string

// The two capture lights.
const (
	LightGreen LightType = "green"
	LightBlue  LightType = "blue"
)

// Valid reports whether l is a known light type.
func (l LightType) Valid() bool {
	return l == LightGreen || l == LightBlue
}

// Camera failure modes.
var (
	ErrCamerasNotReady      = errors.New("hardware: cameras not ready")
	ErrLightTypeNotSet      = errors.New("hardware: light type not set")
	ErrTriggerFailed        = errors.New("hardware: trigger failed")
	ErrPicturesNotAvailable = errors.New("hardware: pictures not available")
)

// Picture is a single camera exposure with its metadata.
type Picture struct {
	Data             []byte
	ISO              int
	ExposureTime     float64 // seconds
	DiaphragmOpening float64 // f-stops
}

// PicturePair is one stereo capture: both cameras fire on the same trigger.
type PicturePair struct {
	Left  Picture
	Right Picture
}

// CameraController is the capability interface over the camera rig. Captures
// are sequential: SetLightType, Trigger, CollectPictures, then the next light.
type CameraController interface {
	// Open prepares the cameras. Must be called once before any capture.
	Open() error

	// SetLightType selects the light for the next trigger.
	SetLightType(light LightType) error

	// Trigger fires the shutters for the currently set light.
	Trigger() error

	// CollectPictures retrieves the pair captured by the last trigger.
	CollectPictures() (PicturePair, error)
}

// Sensor characteristics of the simulated rig, taken from the real cameras.
var (
	simISOs       = []int{50, 100, 200, 400, 800, 1600}
	simDiaphragms = []float64{2.8, 5, 5.6, 8, 11}
)

const (
	simExposureMin = 0.00125 // seconds
	simExposureMax = 2.0
)

// SimCameras is an in-memory CameraController for development and tests. It
// enforces the real rig's protocol: open before trigger, light set before
// trigger, trigger before collect. TriggerFailEvery, when positive, makes
// every nth trigger fail so iteration-abort paths can be exercised.
type SimCameras struct {
	TriggerFailEvery int

	mu        sync.Mutex
	rng       *rand.Rand
	ready     bool
	light     LightType
	triggered bool
	triggers  int
}

// NewSimCameras creates a SimCameras seeded for reproducible metadata.
func NewSimCameras(seed int64) *SimCameras {
	return &SimCameras{rng: rand.New(rand.NewSource(seed))}
}

// Open marks the cameras ready.
func (c *SimCameras) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = true
	return nil
}

// SetLightType selects the light for the next trigger.
func (c *SimCameras) SetLightType(light LightType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !light.Valid() {
		return fmt.Errorf("%w: %q", ErrLightTypeNotSet, light)
	}
	c.light = light
	return nil
}

// Trigger fires the shutters.
func (c *SimCameras) Trigger() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return ErrCamerasNotReady
	}
	if !c.light.Valid() {
		return ErrLightTypeNotSet
	}
	c.triggers++
	if c.TriggerFailEvery > 0 && c.triggers%c.TriggerFailEvery == 0 {
		return ErrTriggerFailed
	}
	c.triggered = true
	return nil
}

// CollectPictures returns the stereo pair from the last trigger.
func (c *SimCameras) CollectPictures() (PicturePair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.triggered {
		return PicturePair{}, ErrPicturesNotAvailable
	}
	c.triggered = false
	return PicturePair{Left: c.exposure(), Right: c.exposure()}, nil
}

func (c *SimCameras) exposure() Picture {
	data := make([]byte, 256)
	c.rng.Read(data)
	return Picture{
		Data:             data,
		ISO:              simISOs[c.rng.Intn(len(simISOs))],
		ExposureTime:     simExposureMin + c.rng.Float64()*(simExposureMax-simExposureMin),
		DiaphragmOpening: simDiaphragms[c.rng.Intn(len(simDiaphragms))],
	}
}
