// Package ingest consumes send requests from a Pub/Sub subscription and
// feeds them to the dispatch engine.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub/v2"

	"github.com/tinywideclouds/go-push-gateway/internal/engine"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Sender is the slice of the dispatch engine the consumer needs.
type Sender interface {
	Send(ctx context.Context, appID string, msgs []*push.Message) (*push.BatchResult, error)
}

// SendRequest is the wire shape of one inbound dispatch request.
type SendRequest struct {
	AppID    string          `json:"app_id"`
	Messages []*push.Message `json:"messages"`
}

// DecodeSendRequest unmarshals and shape-checks an inbound payload.
func DecodeSendRequest(payload []byte) (*SendRequest, error) {
	var req SendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("unmarshal send request: %w", err)
	}
	if req.AppID == "" {
		return nil, fmt.Errorf("send request missing app_id")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("send request has no messages")
	}
	return &req, nil
}

// Consumer pulls send requests off a subscription.
type Consumer struct {
	subscriber *pubsub.Subscriber
	sender     Sender
	logger     *slog.Logger
}

func NewConsumer(client *pubsub.Client, subscriptionID string, sender Sender, logger *slog.Logger) *Consumer {
	return &Consumer{
		subscriber: client.Subscriber(subscriptionID),
		sender:     sender,
		logger:     logger.With("component", "IngestConsumer"),
	}
}

// Start blocks receiving until the context is cancelled. Malformed
// payloads and caller-input errors are acked and dropped so a poison
// message cannot wedge the subscription; transient failures are nacked
// for redelivery.
func (c *Consumer) Start(ctx context.Context) error {
	return c.subscriber.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		req, err := DecodeSendRequest(m.Data)
		if err != nil {
			c.logger.Warn("dropping malformed send request", "err", err)
			m.Ack()
			return
		}

		result, err := c.sender.Send(ctx, req.AppID, req.Messages)
		switch {
		case err == nil:
			c.logger.Info("send request dispatched", "app_id", req.AppID, "platforms", len(result.Platforms))
			m.Ack()
		case errors.Is(err, push.ErrInvalidMessage),
			errors.Is(err, engine.ErrNoChannelsConfigured),
			errors.Is(err, engine.ErrNoTargetDevices):
			// Caller-input error; redelivery cannot fix it.
			c.logger.Warn("dropping undeliverable send request", "app_id", req.AppID, "err", err)
			m.Ack()
		default:
			c.logger.Error("send request failed, nacking for redelivery", "app_id", req.AppID, "err", err)
			m.Nack()
		}
	})
}
