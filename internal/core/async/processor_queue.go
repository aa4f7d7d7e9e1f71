package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	queue "github.com/libriscan/libriscan/internal/async"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/metrics"
)

// ErrShuttingDown is returned by Enqueue once Shutdown has begun.
var ErrShuttingDown = errors.New("queue is shutting down")

// JobRunner executes one extraction job.
type JobRunner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
}

type ProcessorQueue struct {
	runner  JobRunner
	logger  *slog.Logger
	metrics *metrics.Metrics
	workers int
	timeout time.Duration

	ch   chan queue.Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

var _ queue.Queue = (*ProcessorQueue)(nil)

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan queue.Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *ProcessorQueue) { q.metrics = m }
}

func NewProcessorQueue(runner JobRunner, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		runner:  runner,
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan queue.Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.metrics.JobQueued(-1)
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := q.runner.Run(ctx, job.JobID)
					cancel()

					if err != nil {
						q.logger.Error("extraction job failed", "worker_id", workerID, "job_id", job.JobID, "page_id", job.PageID, "error", err)
					} else {
						q.logger.Info("extraction job done", "worker_id", workerID, "job_id", job.JobID, "page_id", job.PageID,
							"waited", time.Since(job.SubmittedAt))
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Dispatch queues an extraction job row for a worker.
func (q *ProcessorQueue) Dispatch(ctx context.Context, job *entity.ExtractJob) error {
	return q.Enqueue(ctx, queue.Job{JobID: job.ID, PageID: job.PageID, SubmittedAt: time.Now()})
}

func (q *ProcessorQueue) Enqueue(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.JobID)
		return ErrShuttingDown
	}
	q.metrics.JobQueued(1)
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", job.JobID)
		select {
		case q.ch <- job:
		case <-ctx.Done():
			q.metrics.JobQueued(-1)
			return ctx.Err()
		}
	}
	q.logger.Info("queued page for extraction", "job_id", job.JobID, "page_id", job.PageID)
	return nil
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
