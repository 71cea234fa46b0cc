package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/tinywideclouds/go-push-gateway/internal/storage"
)

// NewRouter wires every handler onto a gin engine.
func NewRouter(registrar Registrar, sender Sender, credentials storage.CredentialsStore, logger *slog.Logger) *gin.Engine {
	deviceAPI := NewDeviceAPI(registrar, logger)
	sendAPI := NewSendAPI(sender, logger)
	credentialsAPI := NewCredentialsAPI(credentials, logger)

	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/devices/register", deviceAPI.Register)
		v1.POST("/devices/register-multi", deviceAPI.RegisterMulti)
		v1.POST("/devices/status", deviceAPI.UpdateStatus)
		v1.POST("/devices/remove", deviceAPI.Unregister)
		v1.POST("/push/send", sendAPI.Send)
	}

	admin := router.Group("/admin/apps/:app_id")
	{
		admin.GET("/credentials", credentialsAPI.GetChannels)
		admin.PUT("/credentials/:channel", credentialsAPI.SetChannel)
		admin.DELETE("/credentials/:channel", credentialsAPI.DeleteChannel)
		admin.DELETE("/credentials", credentialsAPI.DeleteApp)
	}

	return router
}
