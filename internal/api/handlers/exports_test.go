package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bq "github.com/dvloznov/tallysync/internal/infra/bigquery"
)

type mockHistory struct {
	ListRecentExportsFunc func(ctx context.Context, statementID string, limit int) ([]*bq.ExportRow, error)
}

func (m *mockHistory) ListRecentExports(ctx context.Context, statementID string, limit int) ([]*bq.ExportRow, error) {
	return m.ListRecentExportsFunc(ctx, statementID, limit)
}

func TestListExports(t *testing.T) {
	exported := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	var gotStatement string
	var gotLimit int
	history := &mockHistory{
		ListRecentExportsFunc: func(ctx context.Context, statementID string, limit int) ([]*bq.ExportRow, error) {
			gotStatement, gotLimit = statementID, limit
			return []*bq.ExportRow{{
				ExportID:     "job-1",
				JobID:        "job-1",
				StatementID:  bq.NullString("stmt_1"),
				Event:        "forwarded",
				VoucherCount: 2,
				XMLBytes:     512,
				ArchiveURI:   bq.NullString("gs://bucket/exports/stmt_1.xml"),
				ExportedTS:   exported,
			}}, nil
		},
	}
	h := NewExportsHandler(history, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListExports(rec, httptest.NewRequest(http.MethodGet, "/api/exports?statement_id=stmt_1&limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stmt_1", gotStatement)
	assert.Equal(t, 5, gotLimit)

	var body struct {
		Exports []ExportView `json:"exports"`
		Count   int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "forwarded", body.Exports[0].Event)
	assert.Equal(t, "gs://bucket/exports/stmt_1.xml", body.Exports[0].ArchiveURI)
	assert.Empty(t, body.Exports[0].Filename)
	assert.True(t, exported.Equal(body.Exports[0].ExportedAt))
}

func TestListExports_Failure(t *testing.T) {
	history := &mockHistory{
		ListRecentExportsFunc: func(ctx context.Context, statementID string, limit int) ([]*bq.ExportRow, error) {
			return nil, errors.New("bigquery down")
		},
	}
	h := NewExportsHandler(history, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListExports(rec, httptest.NewRequest(http.MethodGet, "/api/exports", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
