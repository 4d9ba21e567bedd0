package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultForwardTimeout bounds a single XML delivery.
	DefaultForwardTimeout = 10 * time.Second

	// DefaultProbeTimeout bounds a status probe.
	DefaultProbeTimeout = 5 * time.Second

	receivePath = "/api/receive-xml"
	statusPath  = "/api/status"
)

// Endpoint addresses a connector.
type Endpoint struct {
	URL   string `json:"connector_url"`
	Token string `json:"-"`
}

// Configured reports whether both the URL and the token are set.
func (e Endpoint) Configured() bool {
	return strings.TrimSpace(e.URL) != "" && strings.TrimSpace(e.Token) != ""
}

func (e Endpoint) url(path string) string {
	return strings.TrimRight(strings.TrimSpace(e.URL), "/") + path
}

// Receipt is the connector's acknowledgment of a delivery.
type Receipt struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`

	// Body is the raw response text.
	Body string `json:"-"`
}

// Status is the result of probing a connector.
type Status struct {
	Reachable  bool      `json:"reachable"`
	State      string    `json:"status,omitempty"`
	TunnelURL  string    `json:"tunnel_url,omitempty"`
	Timestamp  string    `json:"timestamp,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Client delivers XML documents to a connector. No call is retried.
type Client struct {
	HTTP           *http.Client
	ForwardTimeout time.Duration
	ProbeTimeout   time.Duration

	log zerolog.Logger
}

// NewClient creates a relay client with the default timeouts.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		HTTP:           &http.Client{},
		ForwardTimeout: DefaultForwardTimeout,
		ProbeTimeout:   DefaultProbeTimeout,
		log:            log,
	}
}

// Forward posts xml to the connector's receive endpoint.
func (c *Client) Forward(ctx context.Context, ep Endpoint, xml string) (*Receipt, error) {
	if !ep.Configured() {
		return nil, &Error{Kind: KindNotConfigured}
	}

	body, err := json.Marshal(map[string]string{"xml": xml})
	if err != nil {
		return nil, &Error{Kind: KindOther, Err: fmt.Errorf("Forward: encoding body: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.ForwardTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url(receivePath), bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindOther, Err: fmt.Errorf("Forward: building request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+ep.Token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		relayErr := classify(err)
		c.log.Warn().Err(err).Str("kind", string(relayErr.Kind)).Str("url", ep.URL).Msg("Forward to connector failed")
		return nil, relayErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}

	c.log.Info().
		Int("status", resp.StatusCode).
		Int("bytes", len(xml)).
		Dur("duration", time.Since(start)).
		Msg("Forwarded XML to connector")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{Kind: KindAuth, StatusCode: resp.StatusCode}
	default:
		return nil, &Error{Kind: KindRemote, StatusCode: resp.StatusCode}
	}

	receipt := &Receipt{Success: true, Body: string(raw)}
	if err := json.Unmarshal(raw, receipt); err != nil {
		c.log.Debug().Err(err).Msg("Connector response is not JSON")
	}
	receipt.Success = true
	return receipt, nil
}

// Probe asks the connector for its status. The error is nil only when the
// connector answered 200.
func (c *Client) Probe(ctx context.Context, ep Endpoint) (*Status, error) {
	status := &Status{CheckedAt: time.Now()}

	if strings.TrimSpace(ep.URL) == "" {
		err := &Error{Kind: KindNotConfigured}
		status.Error = err.Error()
		return status, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.url(statusPath), nil)
	if err != nil {
		relayErr := &Error{Kind: KindOther, Err: fmt.Errorf("Probe: building request: %w", err)}
		status.Error = relayErr.Error()
		return status, relayErr
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		relayErr := classify(err)
		status.Error = relayErr.Error()
		return status, relayErr
	}
	defer resp.Body.Close()

	status.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		relayErr := &Error{Kind: KindRemote, StatusCode: resp.StatusCode}
		status.Error = relayErr.Error()
		return status, relayErr
	}

	status.Reachable = true
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		c.log.Debug().Err(err).Msg("Connector status is not JSON")
	}
	status.Reachable = true
	return status, nil
}

// Settings holds the process-wide connector endpoint and the last probe.
type Settings struct {
	mu        sync.RWMutex
	endpoint  Endpoint
	lastProbe *Status
}

// NewSettings seeds the settings with ep.
func NewSettings(ep Endpoint) *Settings {
	return &Settings{endpoint: ep}
}

// Endpoint returns the current endpoint.
func (s *Settings) Endpoint() Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// SetEndpoint replaces the endpoint and forgets the last probe.
func (s *Settings) SetEndpoint(ep Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = Endpoint{URL: strings.TrimSpace(ep.URL), Token: strings.TrimSpace(ep.Token)}
	s.lastProbe = nil
}

// RecordProbe stores the most recent probe result.
func (s *Settings) RecordProbe(status *Status) {
	if status == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *status
	s.lastProbe = &cp
}

// LastProbe returns a copy of the most recent probe, or nil.
func (s *Settings) LastProbe() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastProbe == nil {
		return nil
	}
	cp := *s.lastProbe
	return &cp
}

// MaskToken hides all but the first 8 and last 4 characters of a token.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..." + token[len(token)-4:]
}
