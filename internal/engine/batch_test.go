package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomsight/weavesync/internal/hardware"
	"github.com/loomsight/weavesync/internal/monitoring"
)

type recordingSink struct {
	mu      sync.Mutex
	batches []PictureBatch
	err     error
}

func (s *recordingSink) EnqueueBatch(b PictureBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, b)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *recordingSink) batch(n int) PictureBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[n]
}

func capture(light hardware.LightType) LightCapture {
	return LightCapture{
		Light:         light,
		CreatedAt:     time.Unix(50, 0),
		VelocityCmMin: 30,
		Pictures: hardware.PicturePair{
			Left:  hardware.Picture{Data: []byte{1}, ISO: 100, ExposureTime: 0.01, DiaphragmOpening: 5.6},
			Right: hardware.Picture{Data: []byte{2}, ISO: 100, ExposureTime: 0.01, DiaphragmOpening: 5.6},
		},
	}
}

func TestAssembleAcceptsBothOrders(t *testing.T) {
	green := capture(hardware.LightGreen)
	blue := capture(hardware.LightBlue)

	for _, pair := range [][]LightCapture{{green, blue}, {blue, green}} {
		batch, err := Assemble(pair...)
		require.NoError(t, err)
		assert.Len(t, batch.Lights, 2)
		assert.NotEqual(t, batch.Lights[0].Light, batch.Lights[1].Light)
		assert.NotEqual(t, batch.ID.String(), "00000000-0000-0000-0000-000000000000")
	}
}

func TestAssembleRejectsIncompleteBatches(t *testing.T) {
	testCases := []struct {
		name     string
		captures []LightCapture
	}{
		{"no_captures", nil},
		{"single_blue", []LightCapture{capture(hardware.LightBlue)}},
		{"duplicate_blue", []LightCapture{capture(hardware.LightBlue), capture(hardware.LightBlue)}},
		{"duplicate_green", []LightCapture{capture(hardware.LightGreen), capture(hardware.LightGreen)}},
		{"three_captures", []LightCapture{capture(hardware.LightGreen), capture(hardware.LightBlue), capture(hardware.LightGreen)}},
		{"unknown_light", []LightCapture{capture(hardware.LightGreen), capture(hardware.LightType("red"))}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Assemble(tc.captures...)
			assert.ErrorIs(t, err, ErrIncompleteBatch)
		})
	}
}

func TestAssemblerForwardsImmediately(t *testing.T) {
	sink := &recordingSink{}
	asm := NewBatchAssembler(sink, monitoring.NewLogger("disabled"))

	err := asm.AssembleAndForward(capture(hardware.LightGreen), capture(hardware.LightBlue))
	require.NoError(t, err)
	assert.Equal(t, 1, sink.count())
}

func TestAssemblerNeverForwardsIncompleteBatch(t *testing.T) {
	sink := &recordingSink{}
	asm := NewBatchAssembler(sink, monitoring.NewLogger("disabled"))

	err := asm.AssembleAndForward(capture(hardware.LightBlue))
	assert.ErrorIs(t, err, ErrIncompleteBatch)
	assert.Zero(t, sink.count(), "incomplete batch reached the sink")
}

func TestAssemblerSurfacesSinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("queue closed")}
	asm := NewBatchAssembler(sink, monitoring.NewLogger("disabled"))

	err := asm.AssembleAndForward(capture(hardware.LightGreen), capture(hardware.LightBlue))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncompleteBatch)
}
