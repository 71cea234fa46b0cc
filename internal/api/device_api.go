// Package api exposes the gateway's HTTP surface: device registration,
// sending, and administrative credential CRUD.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tinywideclouds/go-push-gateway/internal/identity"
	"github.com/tinywideclouds/go-push-gateway/internal/registry"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Registrar is the slice of the resolver the device handlers need.
type Registrar interface {
	Register(ctx context.Context, appID, token string, platform push.Platform, activationID string) error
	RegisterMulti(ctx context.Context, appID, token string, platform push.Platform, activationIDs []string) error
	UpdateStatus(ctx context.Context, activationID string, known *identity.Status) error
	Delete(ctx context.Context, appID, token string) error
}

type DeviceAPI struct {
	registrar Registrar
	logger    *slog.Logger
}

func NewDeviceAPI(registrar Registrar, logger *slog.Logger) *DeviceAPI {
	return &DeviceAPI{registrar: registrar, logger: logger.With("component", "DeviceAPI")}
}

type registerRequest struct {
	AppID        string `json:"app_id" binding:"required"`
	Token        string `json:"token" binding:"required"`
	Platform     string `json:"platform" binding:"required"`
	ActivationID string `json:"activation_id" binding:"required"`
}

func (a *DeviceAPI) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := a.registrar.Register(c.Request.Context(), req.AppID, req.Token, push.Platform(req.Platform), req.ActivationID)
	if err != nil {
		a.writeRegistrationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type registerMultiRequest struct {
	AppID         string   `json:"app_id" binding:"required"`
	Token         string   `json:"token" binding:"required"`
	Platform      string   `json:"platform" binding:"required"`
	ActivationIDs []string `json:"activation_ids" binding:"required,min=1"`
}

func (a *DeviceAPI) RegisterMulti(c *gin.Context) {
	var req registerMultiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := a.registrar.RegisterMulti(c.Request.Context(), req.AppID, req.Token, push.Platform(req.Platform), req.ActivationIDs)
	if err != nil {
		a.writeRegistrationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type statusUpdateRequest struct {
	ActivationID string `json:"activation_id" binding:"required"`
	// Status, when present, skips the identity provider round-trip.
	Status string `json:"status"`
}

func (a *DeviceAPI) UpdateStatus(c *gin.Context) {
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var known *identity.Status
	if req.Status != "" {
		st := identity.Status(req.Status)
		known = &st
	}
	if err := a.registrar.UpdateStatus(c.Request.Context(), req.ActivationID, known); err != nil {
		a.writeRegistrationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type unregisterRequest struct {
	AppID string `json:"app_id" binding:"required"`
	Token string `json:"token" binding:"required"`
}

func (a *DeviceAPI) Unregister(c *gin.Context) {
	var req unregisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.registrar.Delete(c.Request.Context(), req.AppID, req.Token); err != nil {
		a.logger.Error("device unregistration failed", "app_id", req.AppID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove registrations"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *DeviceAPI) writeRegistrationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrInconsistentRegistrations):
		// Operator attention required; never auto-healed.
		a.logger.Error("registration consistency violation", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrUnknownPlatform),
		errors.Is(err, registry.ErrTokenSharedAcrossActivations),
		errors.Is(err, registry.ErrActivationRemoved),
		errors.Is(err, identity.ErrActivationNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrStatusUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		a.logger.Error("registration failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
	}
}
