package discovery

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	// verifyPath is the control endpoint used to confirm that a candidate
	// port actually belongs to the target's automation surface.
	verifyPath = "/automation/verify"

	// TokenHeader carries the session token on probe and RPC requests.
	TokenHeader = "X-Session-Token"

	defaultProbeTimeout = 2 * time.Second
)

// ConnectionProbe verifies that a (port, token) pair belongs to the target
// application's debugging endpoint.
type ConnectionProbe interface {
	Verify(ctx context.Context, port int, token string) error
}

// HTTPProbe verifies candidates with a minimal authenticated POST against
// the loopback control endpoint. Any HTTP 200 response verifies.
type HTTPProbe struct {
	client *http.Client
}

// NewHTTPProbe creates a probe with a short per-request timeout.
func NewHTTPProbe() *HTTPProbe {
	return &HTTPProbe{
		client: &http.Client{Timeout: defaultProbeTimeout},
	}
}

// Verify issues the verification request against 127.0.0.1:<port>.
func (p *HTTPProbe) Verify(ctx context.Context, port int, token string) error {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, verifyPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set(TokenHeader, token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe rejected with status %d", resp.StatusCode)
	}
	return nil
}
