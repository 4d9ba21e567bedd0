package domain

import (
	"strings"
	"time"
)

// Raw statement field names as produced by the statement extractor.
const (
	FieldDateTime  = "Trans Date and Time"
	FieldDebit     = "Debit"
	FieldCredit    = "Credit"
	FieldDetails   = "Transaction Details"
	FieldChequeNo  = "Cheque No"
	FieldBalance   = "Balance"
	FieldValueDate = "Value Date"
)

// Fields holds one statement line exactly as uploaded. Keys are the statement
// column headers; unknown columns are kept so nothing is lost on re-render.
type Fields map[string]string

// Get returns the trimmed value for key, or "" when absent.
func (f Fields) Get(key string) string {
	return strings.TrimSpace(f[key])
}

// Transaction is one statement line plus its ledger assignment.
// LedgerID is set at upload time and only changed by explicit reassignment.
type Transaction struct {
	ID          string `json:"id"`
	StatementID string `json:"statement_id"`
	Index       int    `json:"index"`
	Fields      Fields `json:"data"`
	LedgerID    int    `json:"ledger_id"`
}

// Debit returns the raw debit amount string.
func (t *Transaction) Debit() string { return t.Fields.Get(FieldDebit) }

// Credit returns the raw credit amount string.
func (t *Transaction) Credit() string { return t.Fields.Get(FieldCredit) }

// Statement is an uploaded record set. XML holds the last rendered document.
type Statement struct {
	ID             string            `json:"id"`
	Filename       string            `json:"filename,omitempty"`
	UploadedAt     time.Time         `json:"uploaded_at"`
	TransactionIDs []string          `json:"transaction_ids"`
	Summary        map[string]any    `json:"summary,omitempty"`
	XML            string            `json:"-"`
	RenderedAt     *time.Time        `json:"rendered_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// HasXML reports whether the statement has been rendered at least once.
func (s *Statement) HasXML() bool {
	return s.XML != ""
}
