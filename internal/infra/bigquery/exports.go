package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// ExportRow is one audited export in <dataset>.exports.
type ExportRow struct {
	ExportID     string                 `bigquery:"export_id"`     // REQUIRED
	JobID        string                 `bigquery:"job_id"`        // REQUIRED
	StatementID  bigquery.NullString    `bigquery:"statement_id"`  // NULLABLE
	Event        string                 `bigquery:"event"`         // REQUIRED
	Filename     bigquery.NullString    `bigquery:"filename"`      // NULLABLE
	VoucherCount int64                  `bigquery:"voucher_count"` // REQUIRED
	XMLBytes     int64                  `bigquery:"xml_bytes"`     // REQUIRED
	ConnectorURL bigquery.NullString    `bigquery:"connector_url"` // NULLABLE
	ArchiveURI   bigquery.NullString    `bigquery:"archive_uri"`   // NULLABLE
	ExportedTS   time.Time              `bigquery:"exported_ts"`   // REQUIRED
	RecordedTS   bigquery.NullTimestamp `bigquery:"recorded_ts"`   // NULLABLE
}

// NullString wraps s, treating "" as NULL.
func NullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
