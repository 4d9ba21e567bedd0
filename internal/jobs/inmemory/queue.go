package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/tallysync/internal/jobs"
)

const (
	defaultWorkers    = 2
	defaultMaxRetries = 3
)

// QueueOptions tunes a Queue. Zero values take the defaults.
type QueueOptions struct {
	BufferSize int
	Workers    int
	MaxRetries int

	// Backoff returns the delay before retry n (1-based).
	Backoff func(retry int) time.Duration
}

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs are lost on restart.
type Queue struct {
	jobChan   chan *jobs.RecordExportJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers    int
	maxRetries int
	backoff    func(int) time.Duration
	log        zerolog.Logger
}

// NewQueue creates a new in-memory job queue.
// opts.BufferSize determines how many jobs can be queued before PublishRecordExport blocks.
func NewQueue(opts QueueOptions, store jobs.JobStore, log zerolog.Logger) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Backoff == nil {
		opts.Backoff = func(retry int) time.Duration {
			return time.Duration(retry) * time.Second
		}
	}

	return &Queue{
		jobChan:    make(chan *jobs.RecordExportJob, opts.BufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		workers:    opts.Workers,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		log:        log,
	}
}

// PublishRecordExport implements the Publisher interface.
func (q *Queue) PublishRecordExport(ctx context.Context, job *jobs.RecordExportJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.maxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishRecordExport: saving job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start implements the Consumer interface.
// The handler is called concurrently by up to the configured number of workers.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.RecordExportJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	var retry *jobs.RecordExportJob
	if err != nil {
		job.Error = err.Error()

		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = jobs.JobStatusRetrying

			q.log.Warn().
				Err(err).
				Str("job_id", job.JobID).
				Int("retry", job.RetryCount).
				Msg("Job failed, scheduling retry")

			next := *job
			next.Status = jobs.JobStatusPending
			next.StartedAt = nil
			next.CompletedAt = nil
			retry = &next
		} else {
			job.Status = jobs.JobStatusFailed
			q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Job failed")
		}
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	if retry != nil {
		time.AfterFunc(q.backoff(retry.RetryCount), func() {
			if err := q.PublishRecordExport(ctx, retry); err != nil {
				q.log.Error().Err(err).Str("job_id", retry.JobID).Msg("Failed to re-enqueue job")
			}
		})
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
