package exports

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tallysync/internal/archive"
	bq "github.com/dvloznov/tallysync/internal/infra/bigquery"
	"github.com/dvloznov/tallysync/internal/jobs"
)

// Auditor records export rows.
type Auditor interface {
	InsertExport(ctx context.Context, row *bq.ExportRow) error
}

// History reads recorded exports.
type History interface {
	ListRecentExports(ctx context.Context, statementID string, limit int) ([]*bq.ExportRow, error)
}

// Recorder is the job handler that archives exported XML and writes the
// audit row. Either backend may be nil, in which case that step is skipped.
type Recorder struct {
	archive archive.Archiver
	audit   Auditor
	prefix  string
	now     func() time.Time
	log     zerolog.Logger
}

// NewRecorder creates a Recorder. prefix is the object path prefix in the bucket.
func NewRecorder(a archive.Archiver, audit Auditor, prefix string, log zerolog.Logger) *Recorder {
	return &Recorder{
		archive: a,
		audit:   audit,
		prefix:  prefix,
		now:     time.Now,
		log:     log,
	}
}

// Enabled reports whether any backend is configured.
func (r *Recorder) Enabled() bool {
	return r.archive != nil || r.audit != nil
}

// Handle implements jobs.JobHandler.
func (r *Recorder) Handle(ctx context.Context, job jobs.Job) error {
	export, ok := job.(*jobs.RecordExportJob)
	if !ok {
		return fmt.Errorf("Handle: unexpected job type %s", job.GetType())
	}

	log := r.log.With().
		Str("job_id", export.JobID).
		Str("statement_id", export.StatementID).
		Str("event", string(export.Event)).
		Logger()

	// A retried job keeps the URI from an earlier successful upload.
	if r.archive != nil && export.ArchiveURI == "" {
		name := archive.ObjectName(r.prefix, export.StatementID, export.CreatedAt)
		uri, err := r.archive.Put(ctx, name, "application/xml", []byte(export.XML))
		if err != nil {
			return fmt.Errorf("Handle: archiving: %w", err)
		}
		export.ArchiveURI = uri
		log.Info().Str("uri", uri).Msg("Archived export")
	}

	if r.audit != nil {
		row := &bq.ExportRow{
			ExportID:     export.JobID,
			JobID:        export.JobID,
			StatementID:  bq.NullString(export.StatementID),
			Event:        string(export.Event),
			Filename:     bq.NullString(export.Filename),
			VoucherCount: int64(export.VoucherCount),
			XMLBytes:     int64(len(export.XML)),
			ConnectorURL: bq.NullString(export.ConnectorURL),
			ArchiveURI:   bq.NullString(export.ArchiveURI),
			ExportedTS:   export.CreatedAt,
		}
		if err := r.audit.InsertExport(ctx, row); err != nil {
			return fmt.Errorf("Handle: auditing: %w", err)
		}
		log.Debug().Msg("Recorded export audit row")
	}

	return nil
}
