// Package clients maintains the per-application provider client bundles.
// Bundles are derived purely from stored app credentials: a performance
// cache, never a source of truth.
package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tinywideclouds/go-push-gateway/internal/storage"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// Bundle is the live client set for one application: zero to three
// channels, plus the credentials snapshot timestamp it was built from.
type Bundle struct {
	AppID       string
	LastUpdated time.Time
	channels    map[push.Platform]push.Channel
}

// Channel returns the client for a platform, or nil when the app has no
// credentials for that channel.
func (b *Bundle) Channel(platform push.Platform) push.Channel {
	return b.channels[platform]
}

// Empty reports whether no channel is configured at all.
func (b *Bundle) Empty() bool { return len(b.channels) == 0 }

// Platforms lists the configured channels of the bundle.
func (b *Bundle) Platforms() []push.Platform {
	out := make([]push.Platform, 0, len(b.channels))
	for p := range b.channels {
		out = append(out, p)
	}
	return out
}

// Factory constructs channel clients from credential bundles.
type Factory interface {
	APNS(creds *storage.APNSCredentials) (push.Channel, error)
	FCM(ctx context.Context, creds *storage.FCMCredentials) (push.Channel, error)
	HMS(creds *storage.HMSCredentials) (push.Channel, error)
}

// CredentialsSource is the read side of the credentials store.
type CredentialsSource interface {
	Get(ctx context.Context, appID string) (*storage.AppCredentials, error)
}

// Cache maps application ID to a lazily built client bundle. Concurrent
// misses for the same app collapse into a single build; unrelated apps
// never serialize against each other.
type Cache struct {
	creds   CredentialsSource
	factory Factory
	logger  *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*Bundle
}

func NewCache(creds CredentialsSource, factory Factory, logger *slog.Logger) *Cache {
	return &Cache{
		creds:   creds,
		factory: factory,
		logger:  logger.With("component", "ProviderClientCache"),
		entries: make(map[string]*Bundle),
	}
}

// GetClients returns the bundle for an app, building it on first use.
// An app without stored credentials yields an empty bundle, not an error:
// callers treat each channel independently as unavailable.
func (c *Cache) GetClients(ctx context.Context, appID string) (*Bundle, error) {
	c.mu.RLock()
	bundle, ok := c.entries[appID]
	c.mu.RUnlock()
	if ok {
		return bundle, nil
	}

	v, err, _ := c.group.Do(appID, func() (any, error) {
		// Re-check under the flight: a refresh may have landed meanwhile.
		c.mu.RLock()
		if existing, ok := c.entries[appID]; ok {
			c.mu.RUnlock()
			return existing, nil
		}
		c.mu.RUnlock()

		built, err := c.build(ctx, appID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[appID] = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Bundle), nil
}

// Refresh reconciles one app's bundle against the stored credentials. If
// the lastUpdated snapshot is unchanged the existing bundle is kept as is,
// with its live client handles; otherwise the whole bundle is rebuilt.
func (c *Cache) Refresh(ctx context.Context, appID string) error {
	c.mu.RLock()
	current, ok := c.entries[appID]
	c.mu.RUnlock()

	creds, err := c.creds.Get(ctx, appID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("refresh clients for app %s: %w", appID, err)
	}

	if ok && creds != nil && creds.LastUpdated.Equal(current.LastUpdated) {
		return nil
	}
	if ok && creds == nil && current.Empty() {
		return nil
	}

	built, err := c.buildFromCredentials(ctx, appID, creds)
	if err != nil {
		return fmt.Errorf("refresh clients for app %s: %w", appID, err)
	}
	c.mu.Lock()
	c.entries[appID] = built
	c.mu.Unlock()
	c.logger.Info("provider client bundle rebuilt",
		"app_id", appID, "channels", len(built.channels))
	return nil
}

// InvalidationHook adapts Refresh into the post-commit hook shape the
// credentials store expects. It must only ever run after the credential
// transaction has committed.
func (c *Cache) InvalidationHook() func(appID string) {
	return func(appID string) {
		if err := c.Refresh(context.Background(), appID); err != nil {
			c.logger.Error("post-commit client refresh failed", "app_id", appID, "err", err)
		}
	}
}

// StartRefreshLoop refreshes every cached bundle on a fixed schedule until
// the context is cancelled.
func (c *Cache) StartRefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.RLock()
				appIDs := make([]string, 0, len(c.entries))
				for appID := range c.entries {
					appIDs = append(appIDs, appID)
				}
				c.mu.RUnlock()
				for _, appID := range appIDs {
					if err := c.Refresh(ctx, appID); err != nil {
						c.logger.Warn("scheduled client refresh failed", "app_id", appID, "err", err)
					}
				}
			}
		}
	}()
}

func (c *Cache) build(ctx context.Context, appID string) (*Bundle, error) {
	creds, err := c.creds.Get(ctx, appID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("build clients for app %s: %w", appID, err)
	}
	bundle, err := c.buildFromCredentials(ctx, appID, creds)
	if err != nil {
		return nil, fmt.Errorf("build clients for app %s: %w", appID, err)
	}
	return bundle, nil
}

func (c *Cache) buildFromCredentials(ctx context.Context, appID string, creds *storage.AppCredentials) (*Bundle, error) {
	bundle := &Bundle{AppID: appID, channels: make(map[push.Platform]push.Channel)}
	if creds == nil {
		return bundle, nil
	}
	bundle.LastUpdated = creds.LastUpdated

	if apns := creds.APNS(); apns != nil {
		ch, err := c.factory.APNS(apns)
		if err != nil {
			return nil, fmt.Errorf("apns client: %w", err)
		}
		bundle.channels[push.PlatformIOS] = ch
	}
	if fcm := creds.FCM(); fcm != nil {
		ch, err := c.factory.FCM(ctx, fcm)
		if err != nil {
			return nil, fmt.Errorf("fcm client: %w", err)
		}
		bundle.channels[push.PlatformAndroid] = ch
	}
	if hms := creds.HMS(); hms != nil {
		ch, err := c.factory.HMS(hms)
		if err != nil {
			return nil, fmt.Errorf("hms client: %w", err)
		}
		bundle.channels[push.PlatformHuawei] = ch
	}
	return bundle, nil
}
