package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tallysync/internal/domain"
)

// ErrDisabled is returned when no model is configured.
var ErrDisabled = errors.New("ledger suggestions are disabled")

// Model generates text for a prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Suggestion proposes a ledger for one transaction.
type Suggestion struct {
	TransactionID string `json:"transaction_id"`
	LedgerID      int    `json:"ledger_id"`
	LedgerName    string `json:"ledger_name"`
	Reason        string `json:"reason,omitempty"`
}

// Suggester asks a language model to pick ledgers for transactions.
type Suggester struct {
	model Model
	log   zerolog.Logger
}

// New creates a Suggester. A nil model yields a disabled suggester.
func New(model Model, log zerolog.Logger) *Suggester {
	return &Suggester{model: model, log: log}
}

// Enabled reports whether a model is configured.
func (s *Suggester) Enabled() bool {
	return s != nil && s.model != nil
}

// Suggest returns one suggestion per transaction the model classified.
// Answers naming unknown transactions or ledgers outside the fixed list are
// dropped.
func (s *Suggester) Suggest(ctx context.Context, txns []*domain.Transaction) ([]Suggestion, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	if len(txns) == 0 {
		return []Suggestion{}, nil
	}

	raw, err := s.model.Generate(ctx, buildPrompt(txns))
	if err != nil {
		return nil, fmt.Errorf("Suggest: generate content: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("Suggest: empty response from model")
	}

	var answers []Suggestion
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &answers); err != nil {
		return nil, fmt.Errorf("Suggest: unmarshal JSON: %w", err)
	}

	known := make(map[string]bool, len(txns))
	for _, t := range txns {
		known[t.ID] = true
	}

	out := make([]Suggestion, 0, len(answers))
	seen := make(map[string]bool, len(answers))
	for _, a := range answers {
		ledger, ok := domain.LookupLedger(a.LedgerID)
		if !ok || !known[a.TransactionID] || seen[a.TransactionID] {
			s.log.Debug().
				Str("transaction_id", a.TransactionID).
				Int("ledger_id", a.LedgerID).
				Msg("Dropping model suggestion")
			continue
		}
		seen[a.TransactionID] = true
		a.LedgerName = ledger.Name
		out = append(out, a)
	}

	return out, nil
}

func buildPrompt(txns []*domain.Transaction) string {
	var b strings.Builder

	b.WriteString("You are an accounting assistant assigning bank statement lines to Tally ledgers.\n\n")
	b.WriteString("Use ONLY the following ledgers:\n")
	for _, l := range domain.Ledgers() {
		if l.ID == domain.BankLedgerID {
			continue
		}
		fmt.Fprintf(&b, "  - id %d: %s (%s)\n", l.ID, l.Name, l.Category)
	}

	b.WriteString("\nTransactions:\n")
	for _, t := range txns {
		fmt.Fprintf(&b, "  - id %q: details %q, debit %q, credit %q\n",
			t.ID, t.Fields.Get(domain.FieldDetails), t.Debit(), t.Credit())
	}

	b.WriteString("\nRules:\n")
	b.WriteString("1. Bank fees, charges and GST on charges go to Bank Charges.\n")
	b.WriteString("2. If you are unsure, use Suspense Account.\n")
	b.WriteString("3. Output a JSON array of objects with \"transaction_id\" (string), \"ledger_id\" (number) and \"reason\" (string).\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n")

	return b.String()
}

// cleanModelJSON strips Markdown fences and text around a JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
