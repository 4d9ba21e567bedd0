package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/tallysync/internal/api/middleware"
)

// Handlers groups the endpoint handlers mounted by NewMux.
type Handlers struct {
	Statements *StatementsHandler
	Connector  *ConnectorHandler
	Jobs       *JobsHandler
	Exports    *ExportsHandler
}

// NewMux registers every export service route.
func NewMux(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ledgers", method(http.MethodGet, ListLedgers))

	// Statements endpoints
	mux.HandleFunc("/api/statements/upload", method(http.MethodPost, h.Statements.Upload))
	mux.HandleFunc("/api/statements", method(http.MethodGet, h.Statements.ListStatements))

	mux.HandleFunc("/api/statements/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/statements/"), "/")
		statementID, action, _ := strings.Cut(rest, "/")
		if statementID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Statement ID is required")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			h.Statements.GetStatement(w, r, statementID)
		case action == "suggest-ledgers" && r.Method == http.MethodPost:
			h.Statements.SuggestLedgers(w, r, statementID)
		case action == "" || action == "suggest-ledgers":
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	mux.HandleFunc("/api/update-ledger", method(http.MethodPost, h.Statements.UpdateLedger))
	mux.HandleFunc("/api/generate-xml/", withID("/api/generate-xml/", http.MethodGet, h.Statements.GenerateXML))

	// Connector endpoints
	mux.HandleFunc("/api/send-to-connector/", withID("/api/send-to-connector/", http.MethodPost, h.Connector.SendStatement))
	mux.HandleFunc("/api/forward-xml", method(http.MethodPost, h.Connector.ForwardXML))
	mux.HandleFunc("/api/connector/status", method(http.MethodGet, h.Connector.Status))

	mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.Connector.GetSettings(w, r)
		case http.MethodPost:
			h.Connector.SaveSettings(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", method(http.MethodGet, h.Jobs.ListJobs))
	mux.HandleFunc("/api/jobs/", withID("/api/jobs/", http.MethodGet, h.Jobs.GetJob))

	mux.HandleFunc("/api/exports", method(http.MethodGet, h.Exports.ListExports))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}

func method(m string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		fn(w, r)
	}
}

// withID extracts the trailing path segment after prefix.
func withID(prefix, m string, fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
		if id == "" || strings.Contains(id, "/") {
			middleware.WriteError(w, http.StatusBadRequest, "ID is required")
			return
		}
		fn(w, r, id)
	}
}
