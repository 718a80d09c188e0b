// Package dispatch hands completed work from the capture path to the network
// path: a bounded multi-producer multi-consumer queue feeding a pool of
// sender workers with bounded retry.
package dispatch

import (
	"errors"
	"sync"

	"github.com/loomsight/weavesync/internal/engine"
	"github.com/loomsight/weavesync/internal/metrics"
)

// JobKind classifies dispatch jobs.
type JobKind string

// Job classes. Status reports are supersedable; picture batches are not.
const (
	KindBatch  JobKind = "batch"
	KindStatus JobKind = "status"
)

// StatusReport is one surface movement report.
type StatusReport struct {
	VelocityCmMin  float64
	DisplacementCm float64
}

// Job is owned by the queue from enqueue until a worker delivers it or gives
// up. Seq is monotonic across both classes, for diagnostics.
type Job struct {
	Seq      uint64
	Kind     JobKind
	Batch    engine.PictureBatch
	Status   StatusReport
	Attempts int
}

// Queue errors.
var (
	ErrQueueClosed = errors.New("dispatch: queue closed")
	ErrQueueFull   = errors.New("dispatch: queue full")
)

// Queue is a bounded FIFO. Under pressure the oldest status report is
// evicted first; a batch is refused (never silently dropped) only when the
// queue is entirely full of batches, which the producer escalates.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	jobs     []Job
	capacity int
	seq      uint64
	closed   bool
}

// NewQueue creates a queue holding at most capacity jobs.
func NewQueue(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// EnqueueBatch queues a picture batch, evicting the oldest status report if
// the queue is full. A queue full of batches refuses the job so the caller
// can escalate; it is never dropped on the floor.
func (q *Queue) EnqueueBatch(batch engine.PictureBatch) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if len(q.jobs) >= q.capacity && !q.evictOldestStatusLocked() {
		metrics.JobsDropped.WithLabelValues(string(KindBatch)).Inc()
		return ErrQueueFull
	}
	q.pushLocked(Job{Kind: KindBatch, Batch: batch})
	return nil
}

// EnqueueStatus queues a status report. Under pressure the oldest queued
// status gives way; if none exists the new report is the one dropped,
// preserving every batch.
func (q *Queue) EnqueueStatus(velocityCmMin, displacementCm float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if len(q.jobs) >= q.capacity && !q.evictOldestStatusLocked() {
		metrics.JobsDropped.WithLabelValues(string(KindStatus)).Inc()
		return ErrQueueFull
	}
	q.pushLocked(Job{Kind: KindStatus, Status: StatusReport{
		VelocityCmMin:  velocityCmMin,
		DisplacementCm: displacementCm,
	}})
	return nil
}

func (q *Queue) pushLocked(job Job) {
	q.seq++
	job.Seq = q.seq
	q.jobs = append(q.jobs, job)
	metrics.JobsEnqueued.WithLabelValues(string(job.Kind)).Inc()
	metrics.QueueDepth.Set(float64(len(q.jobs)))
	q.cond.Signal()
}

func (q *Queue) evictOldestStatusLocked() bool {
	for i, j := range q.jobs {
		if j.Kind == KindStatus {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			metrics.JobsDropped.WithLabelValues(string(KindStatus)).Inc()
			metrics.QueueDepth.Set(float64(len(q.jobs)))
			return true
		}
	}
	return false
}

// Dequeue blocks until a job is available or the queue is closed and
// drained. The second return is false only when no job will ever come.
func (q *Queue) Dequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.jobs) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	metrics.QueueDepth.Set(float64(len(q.jobs)))
	return job, true
}

// Close stops accepting jobs. Queued jobs remain dequeueable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
