package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const defaultExportsTable = "exports"

// ExportRepository writes and reads export audit rows. It holds a shared
// BigQuery client.
type ExportRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	table     string
}

// NewExportRepository creates a BigQuery client for projectID.
func NewExportRepository(ctx context.Context, projectID, datasetID, table string) (*ExportRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewExportRepository: creating client: %w", err)
	}
	if table == "" {
		table = defaultExportsTable
	}
	return &ExportRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		table:     table,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *ExportRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureDataset creates the dataset when it does not exist yet.
func (r *ExportRepository) EnsureDataset(ctx context.Context, location string) error {
	err := r.client.Dataset(r.datasetID).Create(ctx, &bigquery.DatasetMetadata{Location: location})
	if isConflict(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureDataset: creating %s: %w", r.datasetID, err)
	}
	return nil
}

// EnsureTable creates the exports table when it does not exist yet.
func (r *ExportRepository) EnsureTable(ctx context.Context) error {
	schema, err := bigquery.InferSchema(ExportRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}

	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "exported_ts",
		},
	}

	err = r.client.Dataset(r.datasetID).Table(r.table).Create(ctx, meta)
	if isConflict(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureTable: creating %s.%s: %w", r.datasetID, r.table, err)
	}
	return nil
}

// InsertExport streams one row. ExportID doubles as the insert id so a
// retried job does not produce a duplicate row.
func (r *ExportRepository) InsertExport(ctx context.Context, row *ExportRow) error {
	if !row.RecordedTS.Valid {
		row.RecordedTS = bigquery.NullTimestamp{Timestamp: time.Now(), Valid: true}
	}

	inserter := r.client.Dataset(r.datasetID).Table(r.table).Inserter()
	saver := &bigquery.StructSaver{Struct: row, InsertID: row.ExportID}
	if err := inserter.Put(ctx, saver); err != nil {
		return fmt.Errorf("InsertExport: inserting row: %w", err)
	}

	return nil
}

// ListRecentExports returns up to limit rows, newest first. An empty
// statementID lists every statement.
func (r *ExportRepository) ListRecentExports(ctx context.Context, statementID string, limit int) ([]*ExportRow, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT
			export_id,
			job_id,
			statement_id,
			event,
			filename,
			voucher_count,
			xml_bytes,
			connector_url,
			archive_uri,
			exported_ts,
			recorded_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE (@statement_id = '' OR statement_id = @statement_id)
		ORDER BY exported_ts DESC
		LIMIT @limit
	`, r.projectID, r.datasetID, r.table)

	q := r.client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "statement_id", Value: statementID},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentExports: reading query: %w", err)
	}

	rows := []*ExportRow{}
	for {
		var row ExportRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentExports: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}

func isConflict(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
