package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tallysync/internal/api/middleware"
	"github.com/dvloznov/tallysync/internal/jobs"
	"github.com/dvloznov/tallysync/internal/relay"
	"github.com/dvloznov/tallysync/internal/store"
)

// Relay delivers documents to the connector.
type Relay interface {
	Forward(ctx context.Context, ep relay.Endpoint, xml string) (*relay.Receipt, error)
	Probe(ctx context.Context, ep relay.Endpoint) (*relay.Status, error)
}

// ConnectorHandler handles connector settings and XML delivery.
type ConnectorHandler struct {
	store     store.StatementStore
	relay     Relay
	settings  *relay.Settings
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewConnectorHandler creates a new connector handler. publisher may be nil.
func NewConnectorHandler(st store.StatementStore, r Relay, settings *relay.Settings, publisher jobs.Publisher, log zerolog.Logger) *ConnectorHandler {
	return &ConnectorHandler{
		store:     st,
		relay:     r,
		settings:  settings,
		publisher: publisher,
		log:       log,
	}
}

// SendStatement handles POST /api/send-to-connector/{id}
func (h *ConnectorHandler) SendStatement(w http.ResponseWriter, r *http.Request, statementID string) {
	ctx := r.Context()

	stmt, err := h.store.GetStatement(ctx, statementID)
	if errors.Is(err, store.ErrStatementNotFound) {
		writeFailure(w, http.StatusNotFound, "Statement not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to get statement")
		writeFailure(w, http.StatusInternalServerError, "Failed to get statement")
		return
	}

	ep := h.settings.Endpoint()
	if !ep.Configured() {
		writeFailure(w, http.StatusBadRequest, "Connector not configured")
		return
	}

	if !stmt.HasXML() {
		writeFailure(w, http.StatusBadRequest, "XML not generated")
		return
	}

	receipt, ok := h.forward(ctx, w, ep, stmt.XML)
	if !ok {
		return
	}

	h.log.Info().Str("statement_id", statementID).Msg("Statement XML sent to connector")

	recordExport(ctx, h.publisher, h.log, &jobs.RecordExportJob{
		StatementID:  statementID,
		Filename:     stmt.Filename,
		Event:        jobs.ExportEventForwarded,
		XML:          stmt.XML,
		VoucherCount: strings.Count(stmt.XML, "<VOUCHER "),
		ConnectorURL: ep.URL,
	})

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "XML sent to connector successfully!",
		"timestamp": receipt.Timestamp,
	})
}

// ForwardXML handles POST /api/forward-xml
// Sends an uploaded XML document to the connector as-is.
func (h *ConnectorHandler) ForwardXML(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	ep := h.settings.Endpoint()
	if !ep.Configured() {
		writeFailure(w, http.StatusBadRequest, "Connector not configured")
		return
	}

	filename, body, err := uploadedFile(r, "upload.xml")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	defer body.Close()

	if !strings.HasSuffix(strings.ToLower(filename), ".xml") {
		writeFailure(w, http.StatusBadRequest, "Please upload a valid XML file")
		return
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Failed to read upload")
		return
	}
	xml := string(raw)
	if strings.TrimSpace(xml) == "" {
		writeFailure(w, http.StatusBadRequest, "No XML uploaded")
		return
	}

	receipt, ok := h.forward(ctx, w, ep, xml)
	if !ok {
		return
	}

	h.log.Info().Str("filename", filename).Int("bytes", len(raw)).Msg("Uploaded XML sent to connector")

	recordExport(ctx, h.publisher, h.log, &jobs.RecordExportJob{
		Filename:     filename,
		Event:        jobs.ExportEventForwarded,
		XML:          xml,
		VoucherCount: strings.Count(xml, "<VOUCHER "),
		ConnectorURL: ep.URL,
	})

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"message":        "XML sent to connector successfully!",
		"timestamp":      receipt.Timestamp,
		"tally_response": receipt.Body,
	})
}

// forward sends xml and writes the classified error response on failure.
func (h *ConnectorHandler) forward(ctx context.Context, w http.ResponseWriter, ep relay.Endpoint, xml string) (*relay.Receipt, bool) {
	receipt, err := h.relay.Forward(ctx, ep, xml)
	if err == nil {
		return receipt, true
	}

	var relayErr *relay.Error
	if errors.As(err, &relayErr) {
		writeFailure(w, relayErr.HTTPStatus(), relayErr.Error())
		return nil, false
	}

	h.log.Error().Err(err).Msg("Failed to forward XML")
	writeFailure(w, http.StatusInternalServerError, "Error: "+err.Error())
	return nil, false
}

// SettingsView is the readable form of the connector settings.
type SettingsView struct {
	ConnectorURL string        `json:"connector_url"`
	TokenMasked  string        `json:"token_masked"`
	Configured   bool          `json:"configured"`
	LastProbe    *relay.Status `json:"last_probe,omitempty"`
}

func (h *ConnectorHandler) settingsView() SettingsView {
	ep := h.settings.Endpoint()
	return SettingsView{
		ConnectorURL: ep.URL,
		TokenMasked:  relay.MaskToken(ep.Token),
		Configured:   ep.Configured(),
		LastProbe:    h.settings.LastProbe(),
	}
}

// GetSettings handles GET /api/settings
func (h *ConnectorHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.settingsView())
}

// SaveSettings handles POST /api/settings
// Accepts JSON or form fields connector_url and auth_token, then probes the
// connector once.
func (h *ConnectorHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectorURL string `json:"connector_url"`
		AuthToken    string `json:"auth_token"`
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		req.ConnectorURL = r.FormValue("connector_url")
		req.AuthToken = r.FormValue("auth_token")
	}

	ep := relay.Endpoint{URL: strings.TrimSpace(req.ConnectorURL), Token: strings.TrimSpace(req.AuthToken)}
	if !ep.Configured() {
		writeFailure(w, http.StatusBadRequest, "Please fill in both fields")
		return
	}

	h.settings.SetEndpoint(ep)
	h.log.Info().Str("connector_url", ep.URL).Msg("Connector settings saved")

	status, err := h.relay.Probe(r.Context(), ep)
	h.settings.RecordProbe(status)

	message := "Connector is online and reachable!"
	switch {
	case err == nil:
	case relay.IsKind(err, relay.KindRemote):
		message = "Connector responded but with an error"
	default:
		message = "Could not reach connector. Make sure it is running."
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Connector settings saved successfully!",
		"reachable": err == nil,
		"probe":     message,
		"settings":  h.settingsView(),
	})
}

// Status handles GET /api/connector/status
// Returns the last scheduled probe; ?refresh=true probes now.
func (h *ConnectorHandler) Status(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		h.ProbeNow(r.Context())
	}

	middleware.WriteJSON(w, http.StatusOK, h.settingsView())
}

// ProbeNow probes the configured connector and records the result. It is
// also run on the probe schedule.
func (h *ConnectorHandler) ProbeNow(ctx context.Context) *relay.Status {
	ep := h.settings.Endpoint()
	if strings.TrimSpace(ep.URL) == "" {
		return nil
	}

	status, err := h.relay.Probe(ctx, ep)
	h.settings.RecordProbe(status)
	if err != nil {
		h.log.Debug().Err(err).Str("connector_url", ep.URL).Msg("Connector probe failed")
	}
	return status
}

// FailureResponse is the error body of the connector endpoints, which keep
// the {success, message} shape of the relay acknowledgment.
type FailureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	middleware.WriteJSON(w, status, FailureResponse{Success: false, Message: message})
}
