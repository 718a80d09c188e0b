package monitoring

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevels(t *testing.T) {
	testCases := []struct {
		name     string
		level    string
		expected zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"info", "info", zerolog.InfoLevel},
		{"warn_uppercase", "WARN", zerolog.WarnLevel},
		{"unknown_falls_back", "chatty", zerolog.InfoLevel},
		{"empty_falls_back", "", zerolog.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			log := NewLogger(tc.level)
			assert.Equal(t, tc.expected, log.GetLevel())
		})
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewLoggerTo(&buf, "info"), "scheduler")
	log.Info().Msg("hello")
	assert.True(t, strings.Contains(buf.String(), `"component":"scheduler"`))
}
