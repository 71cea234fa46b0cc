// Package apns is the channel client for Apple's token-based push service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// APNSClient is the subset of apns2.Client the channel uses, kept narrow
// for unit-test mocking.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs provider tokens.
type Config struct {
	Key      []byte // raw content of the .p8 signing key
	KeyID    string
	TeamID   string
	BundleID string
	Sandbox  bool
}

// Channel implements push.Channel over APNs HTTP/2.
type Channel struct {
	client APNSClient
	topic  string
	logger *slog.Logger
}

// NewChannel parses the p8 key immediately to fail fast on bad credentials.
func NewChannel(cfg Config, logger *slog.Logger) (*Channel, error) {
	authKey, err := token.AuthKeyFromBytes(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("parse APNs p8 key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}
	return &Channel{
		client: client,
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSChannel"),
	}, nil
}

// Send pushes to one device token and maps the APNs response onto the
// gateway's abstract outcomes.
func (c *Channel) Send(ctx context.Context, deviceToken string, msg *push.Message) push.Result {
	n := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       c.topic,
		Payload:     buildPayload(msg),
		CollapseID:  msg.Body.CollapseKey,
		Expiration:  msg.Body.Expiry,
	}
	if msg.Priority == push.PriorityNormal {
		n.Priority = apns2.PriorityLow
	} else {
		n.Priority = apns2.PriorityHigh
	}

	res, err := c.client.Push(n)
	if err != nil {
		// Transport-level failure, retryable later.
		c.logger.Warn("APNs transport failed", "err", err)
		return push.Result{Outcome: push.OutcomePending, Err: err}
	}
	if res.Sent() {
		return push.Result{Outcome: push.OutcomeSent, ProviderID: res.ApnsID}
	}

	result := push.Result{Err: fmt.Errorf("apns rejected: %s (status %d)", res.Reason, res.StatusCode)}
	switch res.Reason {
	case apns2.ReasonBadDeviceToken,
		apns2.ReasonUnregistered,
		apns2.ReasonDeviceTokenNotForTopic,
		apns2.ReasonExpiredProviderToken,
		apns2.ReasonInvalidProviderToken:
		result.Outcome = push.OutcomeFailedDelete
	case apns2.ReasonInternalServerError,
		apns2.ReasonServiceUnavailable,
		apns2.ReasonShutdown,
		apns2.ReasonTooManyRequests:
		result.Outcome = push.OutcomePending
	default:
		if !res.Timestamp.IsZero() {
			// An invalidation timestamp means the token died at that instant.
			result.Outcome = push.OutcomeFailedDelete
			break
		}
		result.Outcome = push.OutcomeFailed
	}
	return result
}

func buildPayload(msg *push.Message) *payload.Payload {
	p := payload.NewPayload()
	if msg.Silent {
		p.ContentAvailable()
	} else {
		p.AlertTitle(msg.Body.Title).AlertBody(msg.Body.Text)
		if msg.Body.Sound != "" {
			p.Sound(msg.Body.Sound)
		}
		if msg.Body.Badge != nil {
			p.Badge(*msg.Body.Badge)
		}
		if msg.Body.Category != "" {
			p.Category(msg.Body.Category)
		}
	}
	for k, v := range msg.Body.Extras {
		p.Custom(k, v)
	}
	return p
}
