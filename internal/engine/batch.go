package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loomsight/weavesync/internal/hardware"
)

// ErrIncompleteBatch is returned when assembly is attempted without exactly
// one capture per light type.
var ErrIncompleteBatch = errors.New("engine: batch requires exactly one capture per light type")

// BatchAssembler validates the two light captures of one iteration into a
// PictureBatch and forwards it immediately. The scheduler guarantees both
// lights are produced before assembly, so no waiting logic exists here.
type BatchAssembler struct {
	sink BatchSink
	log  zerolog.Logger
}

// NewBatchAssembler creates an assembler forwarding to the given sink.
func NewBatchAssembler(sink BatchSink, log zerolog.Logger) *BatchAssembler {
	return &BatchAssembler{sink: sink, log: log}
}

// Assemble validates the captures into a batch. Arrival order is irrelevant.
func Assemble(captures ...LightCapture) (PictureBatch, error) {
	if len(captures) != 2 {
		return PictureBatch{}, fmt.Errorf("%w: got %d captures", ErrIncompleteBatch, len(captures))
	}
	seen := make(map[hardware.LightType]bool, 2)
	for _, c := range captures {
		if !c.Light.Valid() {
			return PictureBatch{}, fmt.Errorf("%w: unknown light %q", ErrIncompleteBatch, c.Light)
		}
		if seen[c.Light] {
			return PictureBatch{}, fmt.Errorf("%w: duplicate %s capture", ErrIncompleteBatch, c.Light)
		}
		seen[c.Light] = true
	}
	return PictureBatch{ID: uuid.New(), Lights: append([]LightCapture(nil), captures...)}, nil
}

// AssembleAndForward validates and hands the batch to the sink. The batch is
// latency-sensitive: it is forwarded as soon as it validates.
func (b *BatchAssembler) AssembleAndForward(captures ...LightCapture) error {
	batch, err := Assemble(captures...)
	if err != nil {
		return err
	}
	if err := b.sink.EnqueueBatch(batch); err != nil {
		return fmt.Errorf("enqueue batch %s: %w", batch.ID, err)
	}
	b.log.Debug().Str("batch_id", batch.ID.String()).Msg("batch forwarded to dispatch")
	return nil
}
