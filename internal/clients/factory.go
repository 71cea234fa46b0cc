package clients

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-push-gateway/internal/platform/apns"
	"github.com/tinywideclouds/go-push-gateway/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-gateway/internal/platform/hms"
	"github.com/tinywideclouds/go-push-gateway/internal/storage"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// ProviderFactory builds real provider channel clients.
type ProviderFactory struct {
	logger *slog.Logger
}

func NewProviderFactory(logger *slog.Logger) *ProviderFactory {
	return &ProviderFactory{logger: logger}
}

func (f *ProviderFactory) APNS(creds *storage.APNSCredentials) (push.Channel, error) {
	return apns.NewChannel(apns.Config{
		Key:      creds.Key,
		KeyID:    creds.KeyID,
		TeamID:   creds.TeamID,
		BundleID: creds.BundleID,
		Sandbox:  creds.Sandbox,
	}, f.logger)
}

func (f *ProviderFactory) FCM(ctx context.Context, creds *storage.FCMCredentials) (push.Channel, error) {
	return fcm.NewChannel(ctx, fcm.Config{
		ProjectID:      creds.ProjectID,
		ServiceAccount: creds.ServiceAccount,
	}, f.logger)
}

func (f *ProviderFactory) HMS(creds *storage.HMSCredentials) (push.Channel, error) {
	return hms.NewChannel(hms.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		ProjectID:    creds.ProjectID,
	}, f.logger), nil
}
