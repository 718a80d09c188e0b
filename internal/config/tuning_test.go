package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTuningValues(t *testing.T) {
	tuning := DefaultTuning()

	assert.Equal(t, 20*time.Millisecond, tuning.GetSampleInterval())
	assert.Equal(t, 32, tuning.GetFilterWindow())
	assert.Equal(t, 3.5, tuning.GetMADMultiplier())
	assert.Equal(t, 0.25, tuning.GetEWMAAlpha())
	assert.Equal(t, 25, tuning.GetSensorErrorMax())
	assert.Equal(t, 25.0, tuning.GetFieldOfViewCm())
	assert.Equal(t, 0.9, tuning.GetTriggerFraction())
	assert.Equal(t, 22.5, tuning.TriggerThresholdCm())
	assert.Equal(t, 2*time.Second, tuning.GetStatusPeriod())
	assert.Equal(t, 64, tuning.GetQueueCapacity())
	assert.Equal(t, 4, tuning.GetWorkers())
	assert.Equal(t, 4, tuning.GetRetryLimit())
	assert.Equal(t, 250*time.Millisecond, tuning.GetBackoffBase())
	assert.Equal(t, 2*time.Second, tuning.GetBackoffCap())
	assert.Equal(t, 5*time.Second, tuning.GetDrainGrace())
}

func writeTuningFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadTuningPartialFile(t *testing.T) {
	path := writeTuningFile(t, `{"filter_window": 48, "trigger_fraction": 0.8, "status_period": "1s"}`)

	tuning, err := LoadTuning(path)
	require.NoError(t, err)

	// Overridden fields.
	assert.Equal(t, 48, tuning.GetFilterWindow())
	assert.Equal(t, 0.8, tuning.GetTriggerFraction())
	assert.Equal(t, time.Second, tuning.GetStatusPeriod())
	assert.Equal(t, 20.0, tuning.TriggerThresholdCm())

	// Untouched fields keep defaults.
	assert.Equal(t, 3.5, tuning.GetMADMultiplier())
	assert.Equal(t, 4, tuning.GetWorkers())
}

func TestLoadTuningRejectsBadFiles(t *testing.T) {
	testCases := []struct {
		name     string
		contents string
	}{
		{"bad_json", `{"filter_window": `},
		{"window_too_small", `{"filter_window": 1}`},
		{"alpha_out_of_range", `{"ewma_alpha": 1.5}`},
		{"fraction_out_of_range", `{"trigger_fraction": 0}`},
		{"bad_duration", `{"backoff_base": "fast"}`},
		{"zero_workers", `{"workers": 0}`},
		{"negative_fov", `{"field_of_view_cm": -25}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTuningFile(t, tc.contents)
			_, err := LoadTuning(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadTuningRequiresJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	_, err := LoadTuning(path)
	assert.Error(t, err)
}
