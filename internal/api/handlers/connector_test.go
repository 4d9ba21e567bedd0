package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/tallysync/internal/jobs"
	"github.com/dvloznov/tallysync/internal/relay"
)

const testToken = "abcdefgh-1234-5678-wxyz"

func configure(env *testEnv) {
	env.settings.SetEndpoint(relay.Endpoint{URL: "https://demo.trycloudflare.com", Token: testToken})
}

func TestSendStatement(t *testing.T) {
	env := newTestEnv(t, nil)
	configure(env)
	id := env.uploadSample(t)
	env.do(t, httptest.NewRequest(http.MethodGet, "/api/generate-xml/"+id, nil))

	var sent string
	var sentTo relay.Endpoint
	env.relay.ForwardFunc = func(ctx context.Context, ep relay.Endpoint, xml string) (*relay.Receipt, error) {
		sent, sentTo = xml, ep
		return &relay.Receipt{Success: true, Timestamp: "2025-01-15T10:00:00"}, nil
	}

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/send-to-connector/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "XML sent to connector successfully!", body["message"])
	assert.Equal(t, "2025-01-15T10:00:00", body["timestamp"])

	stmt, err := env.store.GetStatement(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, stmt.XML, sent)
	assert.Equal(t, testToken, sentTo.Token)

	require.Len(t, env.publisher.jobs, 2)
	forwarded := env.publisher.jobs[1]
	assert.Equal(t, jobs.ExportEventForwarded, forwarded.Event)
	assert.Equal(t, "https://demo.trycloudflare.com", forwarded.ConnectorURL)
	assert.Equal(t, 2, forwarded.VoucherCount)
}

func TestSendStatement_Preconditions(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.uploadSample(t)

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/send-to-connector/stmt_404", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/send-to-connector/"+id, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Connector not configured"}`, rec.Body.String())

	configure(env)
	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/send-to-connector/"+id, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "XML not generated", decode(t, rec)["message"])
}

func TestSendStatement_RelayFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", &relay.Error{Kind: relay.KindAuth, StatusCode: 401}, http.StatusUnauthorized},
		{"unreachable", &relay.Error{Kind: relay.KindUnreachable}, http.StatusServiceUnavailable},
		{"timeout", &relay.Error{Kind: relay.KindTimeout}, http.StatusGatewayTimeout},
		{"remote", &relay.Error{Kind: relay.KindRemote, StatusCode: 500}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			configure(env)
			id := env.uploadSample(t)
			env.do(t, httptest.NewRequest(http.MethodGet, "/api/generate-xml/"+id, nil))

			env.relay.ForwardFunc = func(context.Context, relay.Endpoint, string) (*relay.Receipt, error) {
				return nil, tt.err
			}

			rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/send-to-connector/"+id, nil))
			assert.Equal(t, tt.want, rec.Code)

			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.err.Error(), body["message"])

			// Only the render was recorded.
			assert.Len(t, env.publisher.jobs, 1)
		})
	}
}

func TestForwardXML(t *testing.T) {
	env := newTestEnv(t, nil)
	configure(env)

	var sent string
	env.relay.ForwardFunc = func(ctx context.Context, ep relay.Endpoint, xml string) (*relay.Receipt, error) {
		sent = xml
		return &relay.Receipt{Success: true, Body: `{"success":true}`}, nil
	}

	rec := env.do(t, multipartRequest(t, "/api/forward-xml", "vouchers.xml", []byte("<ENVELOPE/>")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "<ENVELOPE/>", sent)
	assert.Equal(t, `{"success":true}`, decode(t, rec)["tally_response"])

	require.Len(t, env.publisher.jobs, 1)
	assert.Empty(t, env.publisher.jobs[0].StatementID)
	assert.Equal(t, "vouchers.xml", env.publisher.jobs[0].Filename)
}

func TestForwardXML_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, multipartRequest(t, "/api/forward-xml", "vouchers.xml", []byte("<x/>")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Connector not configured", decode(t, rec)["message"])

	configure(env)

	rec = env.do(t, multipartRequest(t, "/api/forward-xml", "vouchers.txt", []byte("<x/>")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please upload a valid XML file", decode(t, rec)["message"])

	rec = env.do(t, multipartRequest(t, "/api/forward-xml", "empty.xml", []byte("  ")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No XML uploaded", decode(t, rec)["message"])

	req := httptest.NewRequest(http.MethodPost, "/api/forward-xml?filename=raw.xml", strings.NewReader("<ENVELOPE/>"))
	req.Header.Set("Content-Type", "application/xml")
	rec = env.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["configured"])

	rec = env.do(t, jsonRequest(t, http.MethodPost, "/api/settings", map[string]string{
		"connector_url": " https://demo.trycloudflare.com ",
		"auth_token":    testToken,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["reachable"])
	assert.Equal(t, "Connector is online and reachable!", body["probe"])

	assert.Equal(t, relay.Endpoint{URL: "https://demo.trycloudflare.com", Token: testToken}, env.settings.Endpoint())

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	body = decode(t, rec)
	assert.Equal(t, "abcdefgh...wxyz", body["token_masked"])
	assert.NotContains(t, rec.Body.String(), testToken)
	assert.NotNil(t, body["last_probe"])
}

func TestSettings_FormAndUnreachable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.relay.ProbeFunc = func(context.Context, relay.Endpoint) (*relay.Status, error) {
		return &relay.Status{}, &relay.Error{Kind: relay.KindUnreachable}
	}

	form := url.Values{"connector_url": {"https://x.trycloudflare.com"}, "auth_token": {"tok"}}
	req := httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["reachable"])
	assert.Equal(t, "Could not reach connector. Make sure it is running.", body["probe"])
}

func TestSettings_MissingFields(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, jsonRequest(t, http.MethodPost, "/api/settings", map[string]string{"connector_url": "https://x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please fill in both fields", decode(t, rec)["message"])
	assert.False(t, env.settings.Endpoint().Configured())
}

func TestConnectorStatus_Refresh(t *testing.T) {
	env := newTestEnv(t, nil)
	configure(env)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/connector/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["last_probe"])

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/connector/status?refresh=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	probe := decode(t, rec)["last_probe"].(map[string]interface{})
	assert.Equal(t, true, probe["reachable"])
	assert.Equal(t, "online", probe["status"])
}
