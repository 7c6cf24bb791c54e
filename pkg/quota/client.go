// Package quota fetches account usage from the assistant's RPC surface. It
// shares the session token transport with discovery but is otherwise an
// independent collaborator: its results are display-only and never affect
// the automation loop.
package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// rpcPath is the fixed usage RPC endpoint, relative to the base URL.
	rpcPath = "/rpc/GetUsageStatus"

	tokenHeader     = "X-Session-Token"
	versionHeader   = "X-Protocol-Version"
	protocolVersion = "1"

	defaultTimeout = 10 * time.Second

	// resetFallback applies when the server omits or mangles the reset
	// timestamp.
	resetFallback = 24 * time.Hour
)

// Item is one metered quota bucket with its remaining fraction in [0,1].
type Item struct {
	Name      string
	Remaining float64
}

// Status is a decoded usage snapshot.
type Status struct {
	Items    []Item
	ResetsAt time.Time
	Plan     string
	Credits  float64
}

// Client issues authenticated usage requests.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	version string
	now     func() time.Time
}

// NewClient creates a usage client for the given RPC base URL. version
// identifies this client in request metadata.
func NewClient(baseURL, token, version string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		version: version,
		client:  &http.Client{Timeout: defaultTimeout},
		now:     time.Now,
	}
}

type usageRequest struct {
	Client        string `json:"client"`
	ClientVersion string `json:"clientVersion"`
}

type usageResponse struct {
	Items []struct {
		Name      string  `json:"name"`
		Remaining float64 `json:"remaining"`
	} `json:"items"`
	ResetsAt string `json:"resetsAt"`
	Account  struct {
		Plan    string  `json:"plan"`
		Credits float64 `json:"credits"`
	} `json:"account"`
}

// Fetch retrieves and decodes the current usage status. Remaining fractions
// are clamped to [0,1]; a missing or unparseable reset timestamp defaults
// to now+24h; absent account fields decode to their zero values.
func (c *Client) Fetch(ctx context.Context) (Status, error) {
	body, err := json.Marshal(usageRequest{Client: "autopilot", ClientVersion: c.version})
	if err != nil {
		return Status{}, fmt.Errorf("failed to encode usage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+rpcPath, bytes.NewReader(body))
	if err != nil {
		return Status{}, fmt.Errorf("failed to create usage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set(versionHeader, protocolVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("usage request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("usage request rejected with status %d", resp.StatusCode)
	}

	var decoded usageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Status{}, fmt.Errorf("failed to decode usage response: %w", err)
	}
	return c.normalize(decoded), nil
}

func (c *Client) normalize(decoded usageResponse) Status {
	status := Status{
		Plan:    decoded.Account.Plan,
		Credits: decoded.Account.Credits,
	}

	for _, item := range decoded.Items {
		status.Items = append(status.Items, Item{
			Name:      item.Name,
			Remaining: clamp01(item.Remaining),
		})
	}

	status.ResetsAt = c.now().Add(resetFallback)
	if decoded.ResetsAt != "" {
		if ts, err := time.Parse(time.RFC3339, decoded.ResetsAt); err == nil {
			status.ResetsAt = ts
		}
	}
	return status
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
