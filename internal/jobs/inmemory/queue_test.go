package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/tallysync/internal/jobs"
)

func fastOptions() QueueOptions {
	return QueueOptions{
		BufferSize: 10,
		Workers:    1,
		MaxRetries: 2,
		Backoff:    func(int) time.Duration { return time.Millisecond },
	}
}

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.RecordExportJob {
	t.Helper()
	var job *jobs.RecordExportJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(fastOptions(), store, zerolog.Nop())
	defer q.Close()

	var handled atomic.Int32
	require.NoError(t, q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		assert.Equal(t, jobs.JobTypeRecordExport, job.GetType())
		handled.Add(1)
		return nil
	}))

	job := &jobs.RecordExportJob{StatementID: "stmt_1", Event: jobs.ExportEventRendered}
	require.NoError(t, q.PublishRecordExport(context.Background(), job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, 2, job.MaxRetries)

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, int32(1), handled.Load())
}

func TestQueue_RetriesThenFails(t *testing.T) {
	store := NewStore()
	q := NewQueue(fastOptions(), store, zerolog.Nop())
	defer q.Close()

	var attempts atomic.Int32
	require.NoError(t, q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		attempts.Add(1)
		return errors.New("bucket unavailable")
	}))

	job := &jobs.RecordExportJob{StatementID: "stmt_1"}
	require.NoError(t, q.PublishRecordExport(context.Background(), job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "bucket unavailable", got.Error)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueue_RetrySucceeds(t *testing.T) {
	store := NewStore()
	q := NewQueue(fastOptions(), store, zerolog.Nop())
	defer q.Close()

	var attempts atomic.Int32
	require.NoError(t, q.Start(context.Background(), func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}))

	job := &jobs.RecordExportJob{}
	require.NoError(t, q.PublishRecordExport(context.Background(), job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.Error)
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(fastOptions(), nil, zerolog.Nop())
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	err := q.PublishRecordExport(context.Background(), &jobs.RecordExportJob{})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }), jobs.ErrQueueClosed)
}
