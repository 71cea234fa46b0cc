// Package pushgateway assembles the gateway from its parts: the Postgres
// stores, the optional Redis read-aside, the identity client, the
// registration resolver, the provider client cache, the dispatch engine
// and the HTTP surface.
package pushgateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub/v2"

	"github.com/tinywideclouds/go-push-gateway/internal/api"
	"github.com/tinywideclouds/go-push-gateway/internal/clients"
	"github.com/tinywideclouds/go-push-gateway/internal/engine"
	"github.com/tinywideclouds/go-push-gateway/internal/identity"
	"github.com/tinywideclouds/go-push-gateway/internal/ingest"
	"github.com/tinywideclouds/go-push-gateway/internal/registry"
	"github.com/tinywideclouds/go-push-gateway/internal/storage"
	"github.com/tinywideclouds/go-push-gateway/internal/storage/cache"
	"github.com/tinywideclouds/go-push-gateway/internal/storage/postgres"
	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"
)

// Wrapper owns the assembled service and its lifecycle.
type Wrapper struct {
	server       *http.Server
	consumer     *ingest.Consumer
	redisClient  *cache.RedisClient
	refreshStop  context.CancelFunc
	logger       *slog.Logger
	consumerDone chan error
}

// New assembles the service. The pubsub client is optional; pass nil when
// ingestion is disabled.
func New(cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (*Wrapper, error) {
	// 1. Storage
	db, err := postgres.Open(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	var registrations storage.RegistrationStore = postgres.NewRegistrationStore(db)
	credentials := postgres.NewCredentialsStore(db)
	logger.Info("Stores initialized", "type", "postgres")

	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		registrations = cache.NewCachedRegistrationStore(registrations, redisClient, cfg.Redis.TTL)
		logger.Info("RegistrationStore upgraded", "type", "redis_cached_postgres")
	}

	var records storage.MessageStore
	if cfg.Dispatch.StoreMessages {
		records = postgres.NewMessageStore(db)
	}

	// 2. Registration resolver
	idClient := identity.NewHTTPClient(cfg.Identity.BaseURL)
	resolver := registry.NewResolver(registrations, idClient, logger)

	// 3. Provider client cache. Credential writes commit first, then the
	// hook refreshes the cached clients for that app.
	clientCache := clients.NewCache(credentials, clients.NewProviderFactory(logger), logger)
	credentials.OnCommit(clientCache.InvalidationHook())

	refreshCtx, refreshStop := context.WithCancel(context.Background())
	clientCache.StartRefreshLoop(refreshCtx, cfg.Clients.RefreshInterval)

	// 4. Dispatch engine
	dispatchEngine := engine.New(clientCache, registrations, records, cfg.Dispatch.Timeout, logger)

	// 5. HTTP surface
	router := api.NewRouter(resolver, dispatchEngine, credentials, logger)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	// 6. Optional Pub/Sub ingestion
	var consumer *ingest.Consumer
	if cfg.PubSub.Enabled {
		if psClient == nil {
			refreshStop()
			return nil, fmt.Errorf("pubsub ingestion enabled but no pubsub client provided")
		}
		consumer = ingest.NewConsumer(psClient, cfg.PubSub.SubscriptionID, dispatchEngine, logger)
	}

	return &Wrapper{
		server:       server,
		consumer:     consumer,
		redisClient:  redisClient,
		refreshStop:  refreshStop,
		logger:       logger,
		consumerDone: make(chan error, 1),
	}, nil
}

// Start serves HTTP and, when configured, starts the ingestion consumer.
// It blocks until the server stops.
func (w *Wrapper) Start(ctx context.Context) error {
	if w.consumer != nil {
		go func() {
			w.logger.Info("Ingestion consumer starting...")
			w.consumerDone <- w.consumer.Start(ctx)
		}()
	}

	w.logger.Info("HTTP server starting...", "addr", w.server.Addr)
	if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops the components in reverse order of startup.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error

	w.refreshStop()

	if err := w.server.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}

	if w.consumer != nil {
		select {
		case err := <-w.consumerDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("Ingestion consumer stopped with error.", "err", err)
				finalErr = err
			}
		case <-time.After(5 * time.Second):
			w.logger.Warn("Timed out waiting for ingestion consumer to stop.")
		}
	}

	if w.redisClient != nil {
		if err := w.redisClient.Close(); err != nil {
			w.logger.Error("Redis client close failed.", "err", err)
		}
	}

	w.logger.Info("Service shutdown complete.")
	return finalErr
}
