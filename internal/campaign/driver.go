// Package campaign is the thin batch driver: it pages over a user
// population and repeatedly invokes the dispatch engine. It adds no
// semantics of its own.
package campaign

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// UserSource pages user IDs for a campaign. An empty page ends the run.
type UserSource interface {
	NextPage(ctx context.Context, offset, limit int) ([]string, error)
}

// Sender is the slice of the dispatch engine the driver needs.
type Sender interface {
	Send(ctx context.Context, appID string, msgs []*push.Message) (*push.BatchResult, error)
}

// Driver delivers one message template to every user a source yields.
type Driver struct {
	sender   Sender
	pageSize int
	logger   *slog.Logger
}

func NewDriver(sender Sender, pageSize int, logger *slog.Logger) *Driver {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Driver{
		sender:   sender,
		pageSize: pageSize,
		logger:   logger.With("component", "CampaignDriver"),
	}
}

// Run pages through the source and dispatches the template to each page's
// users, accumulating counters across pages. A pre-dispatch error on any
// page stops the run; per-device outcomes never do.
func (d *Driver) Run(ctx context.Context, appID string, template push.Message, users UserSource) (*push.BatchResult, error) {
	total := &push.BatchResult{Platforms: make(map[push.Platform]push.Counters)}

	for offset := 0; ; offset += d.pageSize {
		userIDs, err := users.NextPage(ctx, offset, d.pageSize)
		if err != nil {
			return total, fmt.Errorf("campaign page at offset %d: %w", offset, err)
		}
		if len(userIDs) == 0 {
			break
		}

		msgs := make([]*push.Message, 0, len(userIDs))
		for _, userID := range userIDs {
			msg := template
			msg.UserID = userID
			msgs = append(msgs, &msg)
		}

		result, err := d.sender.Send(ctx, appID, msgs)
		if err != nil {
			return total, fmt.Errorf("campaign dispatch at offset %d: %w", offset, err)
		}
		merge(total, result)
		d.logger.Info("campaign page dispatched", "app_id", appID, "offset", offset, "users", len(userIDs))
	}
	return total, nil
}

func merge(into, from *push.BatchResult) {
	for platform, c := range from.Platforms {
		agg := into.Platforms[platform]
		agg.Sent += c.Sent
		agg.Pending += c.Pending
		agg.Failed += c.Failed
		agg.Total += c.Total
		into.Platforms[platform] = agg
	}
}
