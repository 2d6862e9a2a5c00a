package enforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"netsentry/internal/config"
)

// HTTPEnforcer POSTs block directives to an external controller, for setups
// where the firewall is managed by a separate service.
type HTTPEnforcer struct {
	url     string
	headers map[string]string
	client  *http.Client
}

type blockDirective struct {
	SourceIP string    `json:"source_ip"`
	Action   string    `json:"action"`
	IssuedAt time.Time `json:"issued_at"`
}

// NewHTTPEnforcer builds an enforcer for the configured endpoint.
func NewHTTPEnforcer(cfg config.HTTPEnforcerConfig) *HTTPEnforcer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEnforcer{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// Block sends the directive and treats any non-2xx status as failure.
func (e *HTTPEnforcer) Block(ctx context.Context, sourceIP string) error {
	payload, err := json.Marshal(blockDirective{
		SourceIP: sourceIP,
		Action:   "block",
		IssuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal block directive: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build block request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send block directive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("block directive rejected with status %d", resp.StatusCode)
	}
	return nil
}
