// Package engine implements the capture synchronization core: velocity
// filtering, displacement integration, adaptive trigger scheduling, batch
// assembly, and periodic status reporting.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomsight/weavesync/internal/hardware"
)

// VelocitySample is one raw sensor reading tagged with its read time.
// Samples are ephemeral: the filter consumes them once.
type VelocitySample struct {
	At  time.Time
	Raw float64 // cm/min
}

// FilteredVelocity is an immutable snapshot of the filter's estimate as of
// its last accepted sample.
type FilteredVelocity struct {
	At    time.Time
	Value float64 // cm/min
}

// DisplacementState is an atomic snapshot of the accumulator's counters.
type DisplacementState struct {
	// SinceIteration is the displacement (cm) accumulated since the last
	// completed capture iteration. It drives the trigger threshold.
	SinceIteration float64

	// Total is the displacement (cm) accumulated since startup. Never
	// decreases.
	Total float64
}

// LightCapture is one light's stereo capture with the surface context at its
// shutter instant. Immutable once created.
type LightCapture struct {
	Light          hardware.LightType
	CreatedAt      time.Time
	VelocityCmMin  float64
	DisplacementCm float64
	Pictures       hardware.PicturePair
}

// PictureBatch pairs the two light captures of one iteration. A batch is
// only ever constructed complete: exactly one capture per light type.
type PictureBatch struct {
	ID     uuid.UUID
	Lights []LightCapture
}

// BatchSink accepts completed picture batches for delivery. Implementations
// must not block the capture path beyond their stated enqueue policy.
type BatchSink interface {
	EnqueueBatch(batch PictureBatch) error
}

// StatusSink accepts surface movement reports for delivery. Reports are
// supersedable: an implementation may drop older ones under pressure.
type StatusSink interface {
	EnqueueStatus(velocityCmMin, displacementCm float64) error
}
