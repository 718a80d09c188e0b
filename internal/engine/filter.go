package engine

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const (
	// madMinWindow is the minimum window occupancy before outlier rejection
	// engages; with fewer points the MAD is meaningless.
	madMinWindow = 5

	// relativeMADFloor is a lower bound on the rejection tolerance, as a
	// fraction of the window median. A very quiet (or constant) window has a
	// near-zero MAD; without the floor, a genuine velocity ramp would be
	// rejected sample after sample, freezing the window and sticking the
	// filter at the old velocity for good.
	relativeMADFloor = 0.05
)

// VelocityFilter turns the raw, spiky sample stream into a stable velocity
// estimate. Samples deviating from the window median by more than k times
// the window's median absolute deviation are rejected; accepted samples feed
// a median-seeded EWMA. Single writer (the sampler), many readers.
type VelocityFilter struct {
	mu       sync.RWMutex
	window   []float64
	capacity int
	k        float64
	alpha    float64
	seeded   bool
	est      FilteredVelocity
	accepted uint64
	rejected uint64
}

// NewVelocityFilter creates a filter with the given window size, MAD
// multiplier k, and EWMA smoothing factor alpha.
func NewVelocityFilter(windowSize int, k, alpha float64) *VelocityFilter {
	if windowSize < madMinWindow {
		windowSize = madMinWindow
	}
	return &VelocityFilter{
		window:   make([]float64, 0, windowSize),
		capacity: windowSize,
		k:        k,
		alpha:    alpha,
	}
}

// Offer feeds one raw sample. It returns false if the sample was rejected as
// an outlier, in which case the previous estimate is retained unchanged.
func (f *VelocityFilter) Offer(s VelocitySample) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	// The surface only ascends; negative readings are sensor garbage.
	if s.Raw < 0 {
		f.rejected++
		return false
	}

	if len(f.window) >= madMinWindow {
		med := median(f.window)
		mad := medianAbsDeviation(f.window, med)
		tol := f.k * math.Max(mad, relativeMADFloor*math.Max(math.Abs(med), 1))
		if math.Abs(s.Raw-med) > tol {
			f.rejected++
			return false
		}
	}

	if len(f.window) == f.capacity {
		copy(f.window, f.window[1:])
		f.window = f.window[:f.capacity-1]
	}
	f.window = append(f.window, s.Raw)

	if !f.seeded {
		f.est.Value = median(f.window)
		f.seeded = true
	} else {
		f.est.Value = f.alpha*s.Raw + (1-f.alpha)*f.est.Value
	}
	if f.est.Value < 0 {
		f.est.Value = 0
	}
	f.est.At = s.At
	f.accepted++
	return true
}

// Estimate returns the current filtered velocity. Always safe to call; before
// any sample is accepted it reports zero.
func (f *VelocityFilter) Estimate() FilteredVelocity {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.est
}

// Accepted returns the number of samples accepted into the window.
func (f *VelocityFilter) Accepted() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.accepted
}

// Rejected returns the number of samples rejected as outliers.
func (f *VelocityFilter) Rejected() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rejected
}

func median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	return stat.Quantile(0.5, stat.Empirical, s, nil)
}

func medianAbsDeviation(values []float64, med float64) float64 {
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = math.Abs(v - med)
	}
	sort.Float64s(devs)
	return stat.Quantile(0.5, stat.Empirical, devs, nil)
}
