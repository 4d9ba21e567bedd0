package handlers

import (
	"net/http"

	"github.com/dvloznov/tallysync/internal/api/middleware"
	"github.com/dvloznov/tallysync/internal/domain"
)

// ListLedgers handles GET /api/ledgers
func ListLedgers(w http.ResponseWriter, r *http.Request) {
	ledgers := domain.Ledgers()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ledgers":        ledgers,
		"count":          len(ledgers),
		"default_ledger": domain.DefaultLedgerID,
	})
}
