// Package identity is the narrow client for the external identity
// provider that owns activation lifecycle. The gateway only ever asks one
// question: what is the status and owning user of an activation?
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Status is the activation lifecycle state as reported by the provider.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusBlocked Status = "BLOCKED"
	StatusRemoved Status = "REMOVED"
)

// Activation is the answer to a status lookup.
type Activation struct {
	Status Status `json:"status"`
	UserID string `json:"user_id"`
}

var (
	// ErrActivationNotFound means the provider has no such activation.
	ErrActivationNotFound = errors.New("identity: activation not found")
	// ErrStatusUnavailable means the provider could not be reached; the
	// resolver treats it as a registration failure, never as a status.
	ErrStatusUnavailable = errors.New("identity: activation status unavailable")
)

// Client answers activation status lookups.
type Client interface {
	GetActivationStatus(ctx context.Context, activationID string) (*Activation, error)
}

// HTTPClient is the production Client over the provider's REST surface.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) GetActivationStatus(ctx context.Context, activationID string) (*Activation, error) {
	endpoint := fmt.Sprintf("%s/api/v1/activations/%s/status", c.baseURL, url.PathEscape(activationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build activation status request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStatusUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("activation %s: %w", activationID, ErrActivationNotFound)
	case res.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: provider returned status %d", ErrStatusUnavailable, res.StatusCode)
	}

	var act Activation
	if err := json.NewDecoder(res.Body).Decode(&act); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrStatusUnavailable, err)
	}
	return &act, nil
}
