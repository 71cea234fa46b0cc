// Package hms is the channel client for Huawei's push service. There is
// no official Go SDK; the send surface is a single authenticated JSON
// endpoint, so the client is built directly on the OAuth2
// client-credentials flow.
package hms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

const (
	tokenURL      = "https://oauth-login.cloud.huawei.com/oauth2/v3/token"
	sendURLFormat = "https://push-api.cloud.huawei.com/v1/%s/messages:send"
)

// Response codes documented for the HMS send API.
const (
	codeSuccess        = "80000000"
	codePartialSuccess = "80100000"
	codeAuthExpired    = "80200001"
	codeAuthInvalid    = "80200003"
	codeTokenInvalid   = "80300007"
	codeInternalError  = "81000001"
)

// Doer is ostensibly an *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the per-application HMS credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	ProjectID    string
}

// Channel implements push.Channel over the HMS REST API.
type Channel struct {
	client  Doer
	sendURL string
	logger  *slog.Logger
}

// NewChannel builds a channel whose HTTP client injects and refreshes the
// OAuth2 access token transparently.
func NewChannel(cfg Config, logger *slog.Logger) *Channel {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
	}
	httpClient := cc.Client(context.Background())
	httpClient.Timeout = 30 * time.Second
	return &Channel{
		client:  httpClient,
		sendURL: fmt.Sprintf(sendURLFormat, cfg.ProjectID),
		logger:  logger.With("component", "HMSChannel"),
	}
}

// NewChannelWithClient wires a prepared client and endpoint; used by tests.
func NewChannelWithClient(client Doer, sendURL string, logger *slog.Logger) *Channel {
	return &Channel{client: client, sendURL: sendURL, logger: logger.With("component", "HMSChannel")}
}

type sendRequest struct {
	Message struct {
		Token   []string        `json:"token"`
		Data    string          `json:"data,omitempty"`
		Android *androidPayload `json:"android,omitempty"`
	} `json:"message"`
}

type androidPayload struct {
	Urgency      string               `json:"urgency,omitempty"`
	TTL          string               `json:"ttl,omitempty"`
	Notification *androidNotification `json:"notification,omitempty"`
}

type androidNotification struct {
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	Sound       string       `json:"sound,omitempty"`
	ClickAction *clickAction `json:"click_action"`
}

// Type 3 opens the app; HMS requires an explicit click action.
type clickAction struct {
	Type int `json:"type"`
}

type sendResponse struct {
	Code      string `json:"code"`
	Msg       string `json:"msg"`
	RequestID string `json:"requestId"`
}

// Send pushes to one device token and maps the HMS response code onto the
// gateway's abstract outcomes.
func (c *Channel) Send(ctx context.Context, token string, msg *push.Message) push.Result {
	body, err := json.Marshal(buildRequest(token, msg))
	if err != nil {
		return push.Result{Outcome: push.OutcomeFailed, Err: fmt.Errorf("marshal hms payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return push.Result{Outcome: push.OutcomeFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("HMS transport failed", "err", err)
		return push.Result{Outcome: push.OutcomePending, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
		return push.Result{
			Outcome: push.OutcomePending,
			Err:     fmt.Errorf("hms unavailable: status %d", res.StatusCode),
		}
	}

	var parsed sendResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return push.Result{Outcome: push.OutcomePending, Err: fmt.Errorf("decode hms response: %w", err)}
	}

	result := push.Result{ProviderID: parsed.RequestID}
	switch parsed.Code {
	case codeSuccess, codePartialSuccess:
		result.Outcome = push.OutcomeSent
	case codeTokenInvalid, codeAuthExpired, codeAuthInvalid:
		result.Outcome = push.OutcomeFailedDelete
		result.Err = fmt.Errorf("hms rejected: %s %s", parsed.Code, parsed.Msg)
	case codeInternalError:
		result.Outcome = push.OutcomePending
		result.Err = fmt.Errorf("hms internal error: %s", parsed.Msg)
	default:
		result.Outcome = push.OutcomeFailed
		result.Err = fmt.Errorf("hms rejected: %s %s", parsed.Code, parsed.Msg)
	}
	return result
}

func buildRequest(token string, msg *push.Message) *sendRequest {
	req := &sendRequest{}
	req.Message.Token = []string{token}

	if len(msg.Body.Extras) > 0 || msg.Silent {
		if data, err := json.Marshal(msg.Body.Extras); err == nil {
			req.Message.Data = string(data)
		}
	}

	android := &androidPayload{Urgency: "HIGH"}
	if msg.Priority == push.PriorityNormal {
		android.Urgency = "NORMAL"
	}
	if !msg.Body.Expiry.IsZero() {
		if ttl := time.Until(msg.Body.Expiry); ttl > 0 {
			android.TTL = fmt.Sprintf("%ds", int(ttl.Seconds()))
		}
	}
	if !msg.Silent {
		android.Notification = &androidNotification{
			Title:       msg.Body.Title,
			Body:        msg.Body.Text,
			Sound:       msg.Body.Sound,
			ClickAction: &clickAction{Type: 3},
		}
	}
	req.Message.Android = android
	return req
}
