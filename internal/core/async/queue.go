package async

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Job is one unit of work handed off by the front door: the persisted job id
// plus the temp file the upload was spooled to.
type Job struct {
	ID       uuid.UUID
	FilePath string
}

// Processor consumes one job; it must handle every failure internally.
type Processor interface {
	ProcessJob(ctx context.Context, jobID uuid.UUID, filePath string)
}

// JobQueue is a bounded work queue consumed by a pool of workers. The front
// door enqueues and returns immediately; jobs for different documents run
// concurrently with no ordering guarantee. A full queue applies backpressure
// to the producer rather than dropping work.
type JobQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*JobQueue)

func WithWorkers(n int) Option {
	return func(q *JobQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *JobQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func NewJobQueue(proc Processor, logger *slog.Logger, opts ...Option) *JobQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &JobQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *JobQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					// No job-level timeout: a job is not cancellable once
					// started, only its individual HTTP calls time out.
					q.proc.ProcessJob(context.Background(), job.ID, job.FilePath)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *JobQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID)
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued job for processing", "job_id", job.ID)
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", job.ID)
		q.ch <- job
	}
	return nil
}

func (q *JobQueue) Shutdown(ctx context.Context) {
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
