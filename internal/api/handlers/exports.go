package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tallysync/internal/api/middleware"
	"github.com/dvloznov/tallysync/internal/exports"
	bq "github.com/dvloznov/tallysync/internal/infra/bigquery"
)

// ExportView is the JSON shape of an audit row.
type ExportView struct {
	ExportID     string    `json:"export_id"`
	JobID        string    `json:"job_id"`
	StatementID  string    `json:"statement_id,omitempty"`
	Event        string    `json:"event"`
	Filename     string    `json:"filename,omitempty"`
	VoucherCount int64     `json:"voucher_count"`
	XMLBytes     int64     `json:"xml_bytes"`
	ConnectorURL string    `json:"connector_url,omitempty"`
	ArchiveURI   string    `json:"archive_uri,omitempty"`
	ExportedAt   time.Time `json:"exported_at"`
}

func exportView(row *bq.ExportRow) ExportView {
	return ExportView{
		ExportID:     row.ExportID,
		JobID:        row.JobID,
		StatementID:  row.StatementID.StringVal,
		Event:        row.Event,
		Filename:     row.Filename.StringVal,
		VoucherCount: row.VoucherCount,
		XMLBytes:     row.XMLBytes,
		ConnectorURL: row.ConnectorURL.StringVal,
		ArchiveURI:   row.ArchiveURI.StringVal,
		ExportedAt:   row.ExportedTS,
	}
}

// ExportsHandler serves the export audit history.
type ExportsHandler struct {
	history exports.History
	log     zerolog.Logger
}

// NewExportsHandler creates a new exports handler. history may be nil.
func NewExportsHandler(history exports.History, log zerolog.Logger) *ExportsHandler {
	return &ExportsHandler{history: history, log: log}
}

// ListExports handles GET /api/exports
func (h *ExportsHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Export history is disabled")
		return
	}

	query := r.URL.Query()
	rows, err := h.history.ListRecentExports(r.Context(), query.Get("statement_id"), intParam(query.Get("limit")))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list exports")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list exports")
		return
	}

	views := make([]ExportView, 0, len(rows))
	for _, row := range rows {
		views = append(views, exportView(row))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"exports": views,
		"count":   len(views),
	})
}
