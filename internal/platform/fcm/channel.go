// Package fcm is the channel client for Google's push service.
package fcm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// MessagingClient is the subset of the Firebase messaging API the channel
// uses. *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// Config holds the per-application Firebase credentials.
type Config struct {
	ProjectID      string
	ServiceAccount []byte
}

// Channel implements push.Channel over FCM.
type Channel struct {
	client MessagingClient
	logger *slog.Logger
}

// NewChannel builds a messaging client from the stored service-account key.
func NewChannel(ctx context.Context, cfg Config, logger *slog.Logger) (*Channel, error) {
	app, err := firebase.NewApp(ctx,
		&firebase.Config{ProjectID: cfg.ProjectID},
		option.WithCredentialsJSON(cfg.ServiceAccount),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("create fcm messaging client: %w", err)
	}
	return NewChannelWithClient(client, logger), nil
}

// NewChannelWithClient wires an already built client; used by tests.
func NewChannelWithClient(client MessagingClient, logger *slog.Logger) *Channel {
	return &Channel{
		client: client,
		logger: logger.With("component", "FCMChannel"),
	}
}

// Send pushes to one registration token and maps the SDK error categories
// onto the gateway's abstract outcomes.
func (c *Channel) Send(ctx context.Context, token string, msg *push.Message) push.Result {
	id, err := c.client.Send(ctx, buildMessage(token, msg))
	if err == nil {
		return push.Result{Outcome: push.OutcomeSent, ProviderID: id}
	}

	result := push.Result{Err: fmt.Errorf("fcm rejected: %w", err)}
	switch {
	case messaging.IsRegistrationTokenNotRegistered(err):
		result.Outcome = push.OutcomeFailedDelete
	case messaging.IsUnavailable(err), messaging.IsInternal(err), messaging.IsQuotaExceeded(err):
		result.Outcome = push.OutcomePending
	case messaging.IsInvalidArgument(err), messaging.IsSenderIDMismatch(err), messaging.IsThirdPartyAuthError(err):
		result.Outcome = push.OutcomeFailed
	default:
		// Uncategorized errors are transport failures, left for retry.
		c.logger.Warn("FCM transport failed", "err", err)
		result.Outcome = push.OutcomePending
	}
	return result
}

func buildMessage(token string, msg *push.Message) *messaging.Message {
	android := &messaging.AndroidConfig{
		CollapseKey: msg.Body.CollapseKey,
		Priority:    "high",
	}
	if msg.Priority == push.PriorityNormal {
		android.Priority = "normal"
	}
	if !msg.Body.Expiry.IsZero() {
		ttl := time.Until(msg.Body.Expiry)
		if ttl > 0 {
			android.TTL = &ttl
		}
	}

	out := &messaging.Message{
		Token:   token,
		Data:    msg.Body.Extras,
		Android: android,
	}
	if !msg.Silent {
		out.Notification = &messaging.Notification{
			Title: msg.Body.Title,
			Body:  msg.Body.Text,
		}
		android.Notification = &messaging.AndroidNotification{
			Sound:       msg.Body.Sound,
			ClickAction: msg.Body.Category,
		}
	}
	return out
}
