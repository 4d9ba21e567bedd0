package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/tallysync/internal/jobs"
	jobsinmemory "github.com/dvloznov/tallysync/internal/jobs/inmemory"
	"github.com/dvloznov/tallysync/internal/relay"
	"github.com/dvloznov/tallysync/internal/store/inmemory"
	"github.com/dvloznov/tallysync/internal/suggest"
	"github.com/dvloznov/tallysync/internal/voucher"
)

const sampleStatement = `{
  "page_1": {
    "transactions": [
      {"Trans Date and Time": "05/03/24 10:15", "Debit": "1,500.00", "Credit": "", "Transaction Details": "ATM WDL", "Cheque No": "000123"},
      {"Trans Date and Time": "06/03/24", "Debit": "", "Credit": "250", "Transaction Details": "NEFT CR"},
      {"Trans Date and Time": "07/03/24", "Debit": "", "Credit": "", "Transaction Details": "NOTE"}
    ],
    "summary": {"Opening Balance": "10,000.00"}
  }
}`

type mockRelay struct {
	ForwardFunc func(ctx context.Context, ep relay.Endpoint, xml string) (*relay.Receipt, error)
	ProbeFunc   func(ctx context.Context, ep relay.Endpoint) (*relay.Status, error)
}

func (m *mockRelay) Forward(ctx context.Context, ep relay.Endpoint, xml string) (*relay.Receipt, error) {
	return m.ForwardFunc(ctx, ep, xml)
}

func (m *mockRelay) Probe(ctx context.Context, ep relay.Endpoint) (*relay.Status, error) {
	return m.ProbeFunc(ctx, ep)
}

type mockPublisher struct {
	mu   sync.Mutex
	jobs []*jobs.RecordExportJob
}

func (m *mockPublisher) PublishRecordExport(ctx context.Context, job *jobs.RecordExportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.JobID = "job-" + string(rune('a'+len(m.jobs)))
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

type mockModel struct {
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *mockModel) Generate(ctx context.Context, prompt string) (string, error) {
	return m.GenerateFunc(ctx, prompt)
}

type testEnv struct {
	mux       *http.ServeMux
	store     *inmemory.Store
	relay     *mockRelay
	settings  *relay.Settings
	publisher *mockPublisher
	jobStore  *jobsinmemory.Store
}

func newTestEnv(t *testing.T, model suggest.Model) *testEnv {
	t.Helper()

	log := zerolog.Nop()
	st := inmemory.NewStore()
	renderer := voucher.NewRenderer()
	renderer.Now = func() time.Time { return time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC) }

	env := &testEnv{
		store: st,
		relay: &mockRelay{
			ForwardFunc: func(ctx context.Context, ep relay.Endpoint, xml string) (*relay.Receipt, error) {
				return &relay.Receipt{Success: true, Timestamp: "2025-01-15T10:00:00", Body: `{"success":true}`}, nil
			},
			ProbeFunc: func(ctx context.Context, ep relay.Endpoint) (*relay.Status, error) {
				return &relay.Status{Reachable: true, State: "online"}, nil
			},
		},
		settings:  relay.NewSettings(relay.Endpoint{}),
		publisher: &mockPublisher{},
		jobStore:  jobsinmemory.NewStore(),
	}

	var suggester *suggest.Suggester
	if model != nil {
		suggester = suggest.New(model, log)
	}

	env.mux = NewMux(Handlers{
		Statements: NewStatementsHandler(st, renderer, env.publisher, suggester, log),
		Connector:  NewConnectorHandler(st, env.relay, env.settings, env.publisher, log),
		Jobs:       NewJobsHandler(env.jobStore, log),
		Exports:    NewExportsHandler(nil, log),
	})
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) uploadSample(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/statements/upload", bytes.NewBufferString(sampleStatement))
	req.Header.Set("Content-Type", "application/json")
	rec := e.do(t, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		StatementID string `json:"statement_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.StatementID
}

func jsonRequest(t *testing.T, method, path string, v interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
