package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/tallysync/internal/jobs"
)

func TestStore_SaveAndGetCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	job := &jobs.RecordExportJob{JobID: "j1", StatementID: "stmt_1", Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))

	job.Status = jobs.JobStatusFailed
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status)

	assert.Error(t, s.SaveJob(ctx, &jobs.RecordExportJob{}))
}

func TestStore_GetUnknown(t *testing.T) {
	_, err := NewStore().GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	assert.ErrorIs(t, NewStore().UpdateJobStatus(context.Background(), "nope", jobs.JobStatusFailed, ""), jobs.ErrJobNotFound)
}

func TestStore_ListJobsFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveJob(ctx, &jobs.RecordExportJob{JobID: "a", StatementID: "stmt_1", Status: jobs.JobStatusCompleted, CreatedAt: base}))
	require.NoError(t, s.SaveJob(ctx, &jobs.RecordExportJob{JobID: "b", StatementID: "stmt_2", Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.SaveJob(ctx, &jobs.RecordExportJob{JobID: "c", StatementID: "stmt_1", Status: jobs.JobStatusPending, CreatedAt: base.Add(2 * time.Minute)}))

	all, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].JobID, all[1].JobID, all[2].JobID})

	byStmt, err := s.ListJobs(ctx, jobs.JobFilter{StatementID: "stmt_1"})
	require.NoError(t, err)
	assert.Len(t, byStmt, 2)

	failed, err := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].JobID)

	page, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].JobID)

	empty, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_UpdateJobStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.SaveJob(ctx, &jobs.RecordExportJob{JobID: "a", Status: jobs.JobStatusRunning}))

	require.NoError(t, s.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "boom"))
	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}
