package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Tuning holds the engine's tunable parameters. Fields are pointers so a
// partial JSON file only overrides what it names; the Get* accessors carry
// the defaults. The defaults mirror the physical rig: a 25 cm vertical field
// of view imaged at 90% to absorb scheduling jitter, sampled at 50 Hz.
type Tuning struct {
	// Sampling and filtering
	SampleInterval  *string  `json:"sample_interval,omitempty"` // duration string like "20ms"
	FilterWindow    *int     `json:"filter_window,omitempty"`
	MADMultiplier   *float64 `json:"mad_multiplier,omitempty"`
	EWMAAlpha       *float64 `json:"ewma_alpha,omitempty"`
	SensorErrorMax  *int     `json:"sensor_error_max,omitempty"` // consecutive read errors before fatal
	FieldOfViewCm   *float64 `json:"field_of_view_cm,omitempty"`
	TriggerFraction *float64 `json:"trigger_fraction,omitempty"`

	// Reporting and dispatch
	StatusPeriod  *string `json:"status_period,omitempty"`
	QueueCapacity *int    `json:"queue_capacity,omitempty"`
	Workers       *int    `json:"workers,omitempty"`
	RetryLimit    *int    `json:"retry_limit,omitempty"` // total send attempts per job
	BackoffBase   *string `json:"backoff_base,omitempty"`
	BackoffCap    *string `json:"backoff_cap,omitempty"`
	DrainGrace    *string `json:"drain_grace,omitempty"`
}

// DefaultTuning returns a Tuning with every field unset, meaning every
// accessor answers its built-in default.
func DefaultTuning() *Tuning {
	return &Tuning{}
}

// LoadTuning loads a Tuning from a JSON file. Omitted fields keep their
// defaults, so partial files are safe.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read tuning file: %w", err)
	}

	t := DefaultTuning()
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse tuning JSON: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return t, nil
}

// Validate checks that the configured values are usable.
func (t *Tuning) Validate() error {
	if t.FilterWindow != nil && *t.FilterWindow < 3 {
		return fmt.Errorf("filter_window must be at least 3, got %d", *t.FilterWindow)
	}
	if t.MADMultiplier != nil && *t.MADMultiplier <= 0 {
		return fmt.Errorf("mad_multiplier must be positive, got %f", *t.MADMultiplier)
	}
	if t.EWMAAlpha != nil && (*t.EWMAAlpha <= 0 || *t.EWMAAlpha > 1) {
		return fmt.Errorf("ewma_alpha must be in (0, 1], got %f", *t.EWMAAlpha)
	}
	if t.FieldOfViewCm != nil && *t.FieldOfViewCm <= 0 {
		return fmt.Errorf("field_of_view_cm must be positive, got %f", *t.FieldOfViewCm)
	}
	if t.TriggerFraction != nil && (*t.TriggerFraction <= 0 || *t.TriggerFraction > 1) {
		return fmt.Errorf("trigger_fraction must be in (0, 1], got %f", *t.TriggerFraction)
	}
	if t.QueueCapacity != nil && *t.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", *t.QueueCapacity)
	}
	if t.Workers != nil && *t.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *t.Workers)
	}
	if t.RetryLimit != nil && *t.RetryLimit < 1 {
		return fmt.Errorf("retry_limit must be at least 1, got %d", *t.RetryLimit)
	}
	for name, v := range map[string]*string{
		"sample_interval": t.SampleInterval,
		"status_period":   t.StatusPeriod,
		"backoff_base":    t.BackoffBase,
		"backoff_cap":     t.BackoffCap,
		"drain_grace":     t.DrainGrace,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	return nil
}

func (t *Tuning) duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetSampleInterval returns the sensor poll interval (50 Hz default).
func (t *Tuning) GetSampleInterval() time.Duration {
	return t.duration(t.SampleInterval, 20*time.Millisecond)
}

// GetFilterWindow returns the sliding window size (~0.64 s at 50 Hz).
func (t *Tuning) GetFilterWindow() int {
	if t.FilterWindow == nil {
		return 32
	}
	return *t.FilterWindow
}

// GetMADMultiplier returns the outlier rejection threshold in MAD units.
func (t *Tuning) GetMADMultiplier() float64 {
	if t.MADMultiplier == nil {
		return 3.5
	}
	return *t.MADMultiplier
}

// GetEWMAAlpha returns the smoothing factor applied over the window median.
func (t *Tuning) GetEWMAAlpha() float64 {
	if t.EWMAAlpha == nil {
		return 0.25
	}
	return *t.EWMAAlpha
}

// GetSensorErrorMax returns how many consecutive sensor read failures are
// tolerated before the sampler escalates (about half a second at 50 Hz).
func (t *Tuning) GetSensorErrorMax() int {
	if t.SensorErrorMax == nil {
		return 25
	}
	return *t.SensorErrorMax
}

// GetFieldOfViewCm returns the cameras' vertical field of view.
func (t *Tuning) GetFieldOfViewCm() float64 {
	if t.FieldOfViewCm == nil {
		return 25.0
	}
	return *t.FieldOfViewCm
}

// GetTriggerFraction returns the fraction of the field of view at which a
// capture iteration triggers.
func (t *Tuning) GetTriggerFraction() float64 {
	if t.TriggerFraction == nil {
		return 0.9
	}
	return *t.TriggerFraction
}

// TriggerThresholdCm is the displacement that starts a capture iteration.
func (t *Tuning) TriggerThresholdCm() float64 {
	return t.GetFieldOfViewCm() * t.GetTriggerFraction()
}

// GetStatusPeriod returns the surface movement report period.
func (t *Tuning) GetStatusPeriod() time.Duration {
	return t.duration(t.StatusPeriod, 2*time.Second)
}

// GetQueueCapacity returns the dispatch queue capacity.
func (t *Tuning) GetQueueCapacity() int {
	if t.QueueCapacity == nil {
		return 64
	}
	return *t.QueueCapacity
}

// GetWorkers returns the sender pool size.
func (t *Tuning) GetWorkers() int {
	if t.Workers == nil {
		return 4
	}
	return *t.Workers
}

// GetRetryLimit returns the total number of send attempts per job.
func (t *Tuning) GetRetryLimit() int {
	if t.RetryLimit == nil {
		return 4
	}
	return *t.RetryLimit
}

// GetBackoffBase returns the first retry delay.
func (t *Tuning) GetBackoffBase() time.Duration {
	return t.duration(t.BackoffBase, 250*time.Millisecond)
}

// GetBackoffCap returns the upper bound on retry delays.
func (t *Tuning) GetBackoffCap() time.Duration {
	return t.duration(t.BackoffCap, 2*time.Second)
}

// GetDrainGrace returns how long the queue may drain after shutdown.
func (t *Tuning) GetDrainGrace() time.Duration {
	return t.duration(t.DrainGrace, 5*time.Second)
}
