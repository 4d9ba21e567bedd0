package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tallysync/internal/api/middleware"
	"github.com/dvloznov/tallysync/internal/domain"
	"github.com/dvloznov/tallysync/internal/jobs"
	"github.com/dvloznov/tallysync/internal/statement"
	"github.com/dvloznov/tallysync/internal/store"
	"github.com/dvloznov/tallysync/internal/suggest"
	"github.com/dvloznov/tallysync/internal/voucher"
)

const maxUploadBytes = 20 << 20

// StatementsHandler handles statement upload, review and rendering.
type StatementsHandler struct {
	store     store.StatementStore
	renderer  *voucher.Renderer
	publisher jobs.Publisher
	suggester *suggest.Suggester
	log       zerolog.Logger
}

// NewStatementsHandler creates a new statements handler. publisher and
// suggester may be nil.
func NewStatementsHandler(st store.StatementStore, renderer *voucher.Renderer, publisher jobs.Publisher, suggester *suggest.Suggester, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		store:     st,
		renderer:  renderer,
		publisher: publisher,
		suggester: suggester,
		log:       log,
	}
}

// TransactionView is a transaction with its ledger resolved.
type TransactionView struct {
	ID       string         `json:"id"`
	Index    int            `json:"index"`
	Data     domain.Fields  `json:"data"`
	LedgerID int            `json:"ledger_id"`
	Ledger   *domain.Ledger `json:"ledger"`
}

// TotalsView is the JSON form of statement.Totals.
type TotalsView struct {
	Debit    string `json:"debit"`
	Credit   string `json:"credit"`
	Net      string `json:"net"`
	Count    int    `json:"count"`
	Unparsed int    `json:"unparsed,omitempty"`
}

// StatementSummary is one row of the statement list.
type StatementSummary struct {
	ID               string     `json:"id"`
	Filename         string     `json:"filename,omitempty"`
	UploadedAt       time.Time  `json:"uploaded_at"`
	TransactionCount int        `json:"transaction_count"`
	HasXML           bool       `json:"has_xml"`
	RenderedAt       *time.Time `json:"rendered_at,omitempty"`
}

// Upload handles POST /api/statements/upload
// Accepts a multipart "file" (.json or .xlsx) or a raw JSON body.
func (h *StatementsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	filename, body, err := uploadedFile(r, "upload.json")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer body.Close()

	records, err := statement.Parse(filename, body)
	if err != nil {
		h.log.Warn().Err(err).Str("filename", filename).Msg("Rejected statement upload")
		switch {
		case errors.Is(err, statement.ErrUnsupportedFormat):
			middleware.WriteError(w, http.StatusBadRequest, "Please upload a JSON or XLSX file")
		default:
			middleware.WriteError(w, http.StatusBadRequest, "Invalid statement file")
		}
		return
	}

	statementID, err := h.store.Upload(ctx, store.Upload{
		Filename:     filename,
		Transactions: records.Transactions,
		Summary:      records.Summary,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to store statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store statement")
		return
	}

	h.log.Info().
		Str("statement_id", statementID).
		Str("filename", filename).
		Int("transactions", len(records.Transactions)).
		Msg("Statement uploaded")

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success":      true,
		"statement_id": statementID,
		"count":        len(records.Transactions),
		"message":      fmt.Sprintf("Uploaded successfully! %d transactions found.", len(records.Transactions)),
	})
}

// ListStatements handles GET /api/statements
func (h *StatementsHandler) ListStatements(w http.ResponseWriter, r *http.Request) {
	statements, err := h.store.ListStatements(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list statements")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list statements")
		return
	}

	summaries := make([]StatementSummary, 0, len(statements))
	for _, s := range statements {
		summaries = append(summaries, StatementSummary{
			ID:               s.ID,
			Filename:         s.Filename,
			UploadedAt:       s.UploadedAt,
			TransactionCount: len(s.TransactionIDs),
			HasXML:           s.HasXML(),
			RenderedAt:       s.RenderedAt,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": summaries,
		"count":      len(summaries),
	})
}

// GetStatement handles GET /api/statements/{id}
func (h *StatementsHandler) GetStatement(w http.ResponseWriter, r *http.Request, statementID string) {
	ctx := r.Context()

	stmt, txns, ok := h.load(ctx, w, statementID)
	if !ok {
		return
	}

	views := make([]TransactionView, 0, len(txns))
	for _, t := range txns {
		view := TransactionView{ID: t.ID, Index: t.Index, Data: t.Fields, LedgerID: t.LedgerID}
		if l, ok := domain.LookupLedger(t.LedgerID); ok {
			view.Ledger = &l
		}
		views = append(views, view)
	}

	totals := statement.Sum(txns)

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statement":    stmt,
		"summary":      stmt.Summary,
		"transactions": views,
		"ledgers":      domain.Ledgers(),
		"has_xml":      stmt.HasXML(),
		"totals": TotalsView{
			Debit:    totals.Debit.StringFixed(2),
			Credit:   totals.Credit.StringFixed(2),
			Net:      totals.Net().StringFixed(2),
			Count:    totals.Count,
			Unparsed: totals.Unparsed,
		},
	})
}

// UpdateLedger handles POST /api/update-ledger
func (h *StatementsHandler) UpdateLedger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string   `json:"transaction_id"`
		LedgerID      ledgerID `json:"ledger_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TransactionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}

	err := h.store.AssignLedger(r.Context(), req.TransactionID, int(req.LedgerID))
	switch {
	case errors.Is(err, store.ErrTransactionNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	case errors.Is(err, store.ErrLedgerNotFound):
		middleware.WriteError(w, http.StatusBadRequest, "Ledger not found")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to update ledger")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update ledger")
		return
	}

	h.log.Debug().
		Str("transaction_id", req.TransactionID).
		Int("ledger_id", int(req.LedgerID)).
		Msg("Ledger updated")

	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GenerateXML handles GET /api/generate-xml/{id}
// The document is stored on the statement, replacing any earlier render.
func (h *StatementsHandler) GenerateXML(w http.ResponseWriter, r *http.Request, statementID string) {
	ctx := r.Context()

	stmt, txns, ok := h.load(ctx, w, statementID)
	if !ok {
		return
	}

	vouchers := h.renderer.Vouchers(txns)
	xml := h.renderer.Render(txns)

	if err := h.store.SetXML(ctx, statementID, xml); err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to store XML")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store XML")
		return
	}

	h.log.Info().
		Str("statement_id", statementID).
		Int("vouchers", len(vouchers)).
		Int("skipped", len(txns)-len(vouchers)).
		Msg("XML generated")

	recordExport(ctx, h.publisher, h.log, &jobs.RecordExportJob{
		StatementID:  statementID,
		Filename:     stmt.Filename,
		Event:        jobs.ExportEventRendered,
		XML:          xml,
		VoucherCount: len(vouchers),
	})

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("X-Voucher-Count", strconv.Itoa(len(vouchers)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, xml)
}

// SuggestLedgers handles POST /api/statements/{id}/suggest-ledgers
// With ?apply=true every suggestion is also assigned.
func (h *StatementsHandler) SuggestLedgers(w http.ResponseWriter, r *http.Request, statementID string) {
	ctx := r.Context()

	if !h.suggester.Enabled() {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Ledger suggestions are disabled")
		return
	}

	_, txns, ok := h.load(ctx, w, statementID)
	if !ok {
		return
	}

	suggestions, err := h.suggester.Suggest(ctx, txns)
	if err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to suggest ledgers")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to suggest ledgers")
		return
	}

	applied := 0
	if apply, _ := strconv.ParseBool(r.URL.Query().Get("apply")); apply {
		for _, s := range suggestions {
			if err := h.store.AssignLedger(ctx, s.TransactionID, s.LedgerID); err != nil {
				h.log.Warn().Err(err).Str("transaction_id", s.TransactionID).Msg("Failed to apply suggestion")
				continue
			}
			applied++
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
		"count":       len(suggestions),
		"applied":     applied,
	})
}

// load fetches a statement and its transactions, writing 404 or 500 on failure.
func (h *StatementsHandler) load(ctx context.Context, w http.ResponseWriter, statementID string) (*domain.Statement, []*domain.Transaction, bool) {
	stmt, err := h.store.GetStatement(ctx, statementID)
	if errors.Is(err, store.ErrStatementNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Statement not found")
		return nil, nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to get statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get statement")
		return nil, nil, false
	}

	txns, err := h.store.Transactions(ctx, statementID)
	if err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to get transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get transactions")
		return nil, nil, false
	}

	return stmt, txns, true
}

// ledgerID accepts a JSON number or a numeric string.
type ledgerID int

func (l *ledgerID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("ledger_id: %q is not a number", s)
	}
	*l = ledgerID(n)
	return nil
}

// uploadedFile returns the multipart "file" part, or the raw body named by
// ?filename= (default fallback).
func uploadedFile(r *http.Request, fallback string) (string, io.ReadCloser, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, errors.New("No file uploaded")
		}
		if header.Filename == "" {
			file.Close()
			return "", nil, errors.New("No file selected")
		}
		return filepath.Base(header.Filename), file, nil
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = fallback
	}
	return filepath.Base(filename), r.Body, nil
}

// recordExport queues the archive/audit job. Failures are logged only.
func recordExport(ctx context.Context, publisher jobs.Publisher, log zerolog.Logger, job *jobs.RecordExportJob) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishRecordExport(ctx, job); err != nil {
		log.Warn().Err(err).Str("statement_id", job.StatementID).Msg("Failed to enqueue export record")
		return
	}
	log.Debug().Str("job_id", job.JobID).Msg("Export record enqueued")
}
