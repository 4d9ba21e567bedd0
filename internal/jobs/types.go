package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeRecordExport archives a rendered document and writes its audit row.
	JobTypeRecordExport JobType = "record_export"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ExportEvent says what happened to the document being recorded.
type ExportEvent string

const (
	// ExportEventRendered is recorded when a statement's XML is generated.
	ExportEventRendered ExportEvent = "rendered"
	// ExportEventForwarded is recorded when XML is delivered to a connector.
	ExportEventForwarded ExportEvent = "forwarded"
)

// RecordExportJob captures one export so it can be archived and audited
// without blocking the HTTP response.
type RecordExportJob struct {
	JobID string `json:"job_id"`

	// StatementID is empty for documents forwarded without a statement.
	StatementID string      `json:"statement_id,omitempty"`
	Filename    string      `json:"filename,omitempty"`
	Event       ExportEvent `json:"event"`

	// XML is the exported document. It is not exposed through the jobs API.
	XML          string `json:"-"`
	VoucherCount int    `json:"voucher_count"`

	// ConnectorURL is set for forwarded documents.
	ConnectorURL string `json:"connector_url,omitempty"`

	// ArchiveURI is filled in once the document is archived.
	ArchiveURI string `json:"archive_uri,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *RecordExportJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *RecordExportJob) GetType() JobType {
	return JobTypeRecordExport
}

// GetStatus implements the Job interface.
func (j *RecordExportJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs.
type Publisher interface {
	// PublishRecordExport enqueues an export recording job.
	PublishRecordExport(ctx context.Context, job *RecordExportJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs a handler over queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore keeps job state for the jobs API.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *RecordExportJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*RecordExportJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*RecordExportJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	StatementID string
	Status      JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
