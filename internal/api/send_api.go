package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tinywideclouds/go-push-gateway/internal/engine"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Sender is the slice of the dispatch engine the send handler needs.
type Sender interface {
	Send(ctx context.Context, appID string, msgs []*push.Message) (*push.BatchResult, error)
}

type SendAPI struct {
	sender Sender
	logger *slog.Logger
}

func NewSendAPI(sender Sender, logger *slog.Logger) *SendAPI {
	return &SendAPI{sender: sender, logger: logger.With("component", "SendAPI")}
}

type sendRequest struct {
	AppID    string          `json:"app_id" binding:"required"`
	Messages []*push.Message `json:"messages" binding:"required,min=1"`
}

// Send dispatches a batch and returns the aggregate counters. Per-device
// outcomes are never errors; only the pre-dispatch error class maps to a
// non-200 response.
func (a *SendAPI) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.sender.Send(c.Request.Context(), req.AppID, req.Messages)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, push.ErrInvalidMessage),
		errors.Is(err, engine.ErrNoChannelsConfigured),
		errors.Is(err, engine.ErrNoTargetDevices):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		a.logger.Error("send failed", "app_id", req.AppID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "send failed"})
	}
}
