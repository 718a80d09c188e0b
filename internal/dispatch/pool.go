package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loomsight/weavesync/internal/engine"
	"github.com/loomsight/weavesync/internal/metrics"
	"github.com/loomsight/weavesync/internal/timeutil"
)

// Sender delivers jobs to the remote server.
type Sender interface {
	SendBatch(ctx context.Context, batch engine.PictureBatch) error
	SendStatus(ctx context.Context, report StatusReport) error
}

// DeadLetter spools picture batches that exhausted their retries so they can
// be re-delivered on a later run. Remove is called once a batch is known
// delivered; removing an id that was never spooled must be a no-op.
type DeadLetter interface {
	Spool(batch engine.PictureBatch) error
	Remove(id uuid.UUID) error
}

// PoolOptions configures a worker pool.
type PoolOptions struct {
	Workers     int
	Attempts    int // total send attempts per job
	BackoffBase time.Duration
	BackoffCap  time.Duration
	DrainGrace  time.Duration
}

// Pool is a fixed-size set of workers dequeuing jobs and sending them with
// bounded exponential backoff. On shutdown the queue drains for at most
// DrainGrace before in-flight work is abandoned.
type Pool struct {
	queue      *Queue
	sender     Sender
	deadLetter DeadLetter // optional
	clock      timeutil.Clock
	opts       PoolOptions
	log        zerolog.Logger
}

// NewPool creates a pool over the given queue and sender. deadLetter may be
// nil, in which case undeliverable batches are only logged.
func NewPool(queue *Queue, sender Sender, deadLetter DeadLetter, clock timeutil.Clock, opts PoolOptions, log zerolog.Logger) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &Pool{
		queue:      queue,
		sender:     sender,
		deadLetter: deadLetter,
		clock:      clock,
		opts:       opts,
		log:        log,
	}
}

// Run starts the workers and blocks until the context is cancelled and the
// queue has drained (or the grace period expired).
func (p *Pool) Run(ctx context.Context) error {
	// Workers outlive the parent context by the drain grace so queued jobs
	// still get a delivery attempt during shutdown.
	deliverCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(deliverCtx, id)
		}(i)
	}

	<-ctx.Done()
	p.queue.Close()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-p.clock.After(p.opts.DrainGrace):
		cancel() // grace expired: abandon in-flight retries
		<-drained
	}

	if n := p.queue.Len(); n > 0 {
		p.log.Warn().Int("jobs", n).Msg("dispatch queue not fully drained before shutdown")
	}
	return nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	log := p.log.With().Int("worker", id).Logger()
	for {
		job, ok := p.queue.Dequeue()
		if !ok {
			return
		}
		p.deliver(ctx, log, job)
	}
}

// deliver sends one job, retrying with jittered exponential backoff. A job
// that exhausts its attempts is reported, never retried forever.
func (p *Pool) deliver(ctx context.Context, log zerolog.Logger, job Job) {
	var err error
	for job.Attempts < p.opts.Attempts {
		job.Attempts++
		err = p.send(ctx, job)
		if err == nil {
			metrics.JobsDelivered.WithLabelValues(string(job.Kind)).Inc()
			if job.Attempts > 1 {
				log.Debug().Uint64("seq", job.Seq).Int("attempts", job.Attempts).Msg("job delivered after retries")
			}
			// The batch may have come out of the spool on a previous run;
			// only now that it is delivered may the spooled copy go.
			if job.Kind == KindBatch && p.deadLetter != nil {
				if rerr := p.deadLetter.Remove(job.Batch.ID); rerr != nil {
					log.Error().Err(rerr).Str("batch_id", job.Batch.ID.String()).Msg("clearing delivered batch from spool")
				}
			}
			return
		}
		if job.Attempts >= p.opts.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			p.fail(log, job, err)
			return
		case <-p.clock.After(backoffDelay(p.opts.BackoffBase, p.opts.BackoffCap, job.Attempts)):
		}
	}
	p.fail(log, job, err)
}

func (p *Pool) send(ctx context.Context, job Job) error {
	switch job.Kind {
	case KindBatch:
		return p.sender.SendBatch(ctx, job.Batch)
	default:
		return p.sender.SendStatus(ctx, job.Status)
	}
}

func (p *Pool) fail(log zerolog.Logger, job Job, err error) {
	metrics.JobsFailed.WithLabelValues(string(job.Kind)).Inc()
	if job.Kind != KindBatch {
		// Status reports are superseded every period anyway.
		log.Warn().Err(err).Uint64("seq", job.Seq).Msg("status report dropped after retries")
		return
	}
	log.Error().Err(err).Uint64("seq", job.Seq).Str("batch_id", job.Batch.ID.String()).Msg("picture batch undeliverable")
	if p.deadLetter == nil {
		return
	}
	if serr := p.deadLetter.Spool(job.Batch); serr != nil {
		log.Error().Err(serr).Str("batch_id", job.Batch.ID.String()).Msg("dead letter spool failed")
	} else {
		log.Warn().Str("batch_id", job.Batch.ID.String()).Msg("batch spooled for later re-delivery")
	}
}

// backoffDelay returns base doubled per completed attempt, capped, with
// ±20% jitter to spread concurrent retries.
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d <= 0 || d > cap {
		d = cap
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}
