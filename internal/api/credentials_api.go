package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tinywideclouds/go-push-gateway/internal/storage"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// CredentialsAPI is the administrative surface over per-application
// provider credentials. Every write commits transactionally and the
// store's post-commit hook refreshes the provider client cache.
type CredentialsAPI struct {
	store  storage.CredentialsStore
	logger *slog.Logger
}

func NewCredentialsAPI(store storage.CredentialsStore, logger *slog.Logger) *CredentialsAPI {
	return &CredentialsAPI{store: store, logger: logger.With("component", "CredentialsAPI")}
}

type apnsCredentialsRequest struct {
	Key      []byte `json:"key" binding:"required"`
	KeyID    string `json:"key_id" binding:"required"`
	TeamID   string `json:"team_id" binding:"required"`
	BundleID string `json:"bundle_id" binding:"required"`
	Sandbox  bool   `json:"sandbox"`
}

type fcmCredentialsRequest struct {
	ProjectID      string `json:"project_id" binding:"required"`
	ServiceAccount []byte `json:"service_account" binding:"required"`
}

type hmsCredentialsRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
	ProjectID    string `json:"project_id" binding:"required"`
}

// SetChannel upserts one channel's credential bundle, leaving the other
// channels untouched.
func (a *CredentialsAPI) SetChannel(c *gin.Context) {
	appID := c.Param("app_id")
	platform := push.Platform(c.Param("channel"))
	if !platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
		return
	}

	creds, err := a.store.Get(c.Request.Context(), appID)
	if errors.Is(err, storage.ErrNotFound) {
		creds = &storage.AppCredentials{AppID: appID}
	} else if err != nil {
		a.logger.Error("failed to load credentials", "app_id", appID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load credentials"})
		return
	}

	switch platform {
	case push.PlatformIOS:
		var req apnsCredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		creds.APNSKey = req.Key
		creds.APNSKeyID = req.KeyID
		creds.APNSTeamID = req.TeamID
		creds.APNSBundleID = req.BundleID
		creds.APNSSandbox = req.Sandbox
	case push.PlatformAndroid:
		var req fcmCredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		creds.FCMProjectID = req.ProjectID
		creds.FCMServiceAccount = req.ServiceAccount
	case push.PlatformHuawei:
		var req hmsCredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		creds.HMSClientID = req.ClientID
		creds.HMSClientSecret = req.ClientSecret
		creds.HMSProjectID = req.ProjectID
	}

	if err := a.store.Upsert(c.Request.Context(), creds); err != nil {
		a.logger.Error("failed to store credentials", "app_id", appID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credentials"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetChannels reports which channels an app has configured. Secrets never
// leave the store.
func (a *CredentialsAPI) GetChannels(c *gin.Context) {
	appID := c.Param("app_id")
	creds, err := a.store.Get(c.Request.Context(), appID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
		return
	}
	if err != nil {
		a.logger.Error("failed to load credentials", "app_id", appID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load credentials"})
		return
	}

	configured := make([]push.Platform, 0, 3)
	if creds.APNS() != nil {
		configured = append(configured, push.PlatformIOS)
	}
	if creds.FCM() != nil {
		configured = append(configured, push.PlatformAndroid)
	}
	if creds.HMS() != nil {
		configured = append(configured, push.PlatformHuawei)
	}
	c.JSON(http.StatusOK, gin.H{
		"app_id":       appID,
		"channels":     configured,
		"last_updated": creds.LastUpdated,
	})
}

// DeleteChannel nulls one channel's credential bundle.
func (a *CredentialsAPI) DeleteChannel(c *gin.Context) {
	appID := c.Param("app_id")
	platform := push.Platform(c.Param("channel"))
	if !platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
		return
	}
	err := a.store.DeleteChannel(c.Request.Context(), appID, platform)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
		return
	}
	if err != nil {
		a.logger.Error("failed to delete channel credentials", "app_id", appID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete channel"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteApp removes the whole credential row.
func (a *CredentialsAPI) DeleteApp(c *gin.Context) {
	appID := c.Param("app_id")
	if err := a.store.Delete(c.Request.Context(), appID); err != nil {
		a.logger.Error("failed to delete credentials", "app_id", appID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete credentials"})
		return
	}
	c.Status(http.StatusNoContent)
}
