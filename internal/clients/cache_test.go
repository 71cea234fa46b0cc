package clients_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/clients"
	"github.com/tinywideclouds/go-push-gateway/internal/storage"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubChannel struct{ id int }

func (stubChannel) Send(context.Context, string, *push.Message) push.Result {
	return push.Result{Outcome: push.OutcomeSent}
}

// countingFactory builds a fresh stub per call and counts builds.
type countingFactory struct {
	builds atomic.Int64
}

func (f *countingFactory) newChannel() (push.Channel, error) {
	n := f.builds.Add(1)
	return stubChannel{id: int(n)}, nil
}

func (f *countingFactory) APNS(*storage.APNSCredentials) (push.Channel, error) { return f.newChannel() }
func (f *countingFactory) FCM(context.Context, *storage.FCMCredentials) (push.Channel, error) {
	return f.newChannel()
}
func (f *countingFactory) HMS(*storage.HMSCredentials) (push.Channel, error) { return f.newChannel() }

// mutableCreds is a credentials source a test can rewrite between calls.
type mutableCreds struct {
	mu    sync.Mutex
	creds map[string]*storage.AppCredentials
	gets  atomic.Int64
}

func (s *mutableCreds) Get(_ context.Context, appID string) (*storage.AppCredentials, error) {
	s.gets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[appID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *mutableCreds) set(appID string, c *storage.AppCredentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[appID] = c
}

func fcmOnly(appID string, updated time.Time) *storage.AppCredentials {
	return &storage.AppCredentials{
		AppID:             appID,
		FCMProjectID:      "project",
		FCMServiceAccount: []byte("{}"),
		LastUpdated:       updated,
	}
}

func TestCache_GetClients(t *testing.T) {
	ctx := context.Background()

	t.Run("Builds once and serves the same bundle after", func(t *testing.T) {
		factory := &countingFactory{}
		creds := &mutableCreds{creds: map[string]*storage.AppCredentials{
			"app-1": fcmOnly("app-1", time.Now()),
		}}
		cache := clients.NewCache(creds, factory, newTestLogger())

		first, err := cache.GetClients(ctx, "app-1")
		require.NoError(t, err)
		second, err := cache.GetClients(ctx, "app-1")
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.EqualValues(t, 1, factory.builds.Load())
		assert.NotNil(t, first.Channel(push.PlatformAndroid))
		assert.Nil(t, first.Channel(push.PlatformIOS))
	})

	t.Run("Unknown app yields an empty bundle, not an error", func(t *testing.T) {
		cache := clients.NewCache(&mutableCreds{creds: map[string]*storage.AppCredentials{}}, &countingFactory{}, newTestLogger())

		bundle, err := cache.GetClients(ctx, "app-missing")
		require.NoError(t, err)
		assert.True(t, bundle.Empty())
		assert.Empty(t, bundle.Platforms())
	})

	t.Run("Concurrent misses collapse into one build", func(t *testing.T) {
		factory := &countingFactory{}
		creds := &mutableCreds{creds: map[string]*storage.AppCredentials{
			"app-1": fcmOnly("app-1", time.Now()),
		}}
		cache := clients.NewCache(creds, factory, newTestLogger())

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := cache.GetClients(ctx, "app-1")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, factory.builds.Load())
	})
}

func TestCache_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("Unchanged snapshot keeps the live bundle", func(t *testing.T) {
		factory := &countingFactory{}
		updated := time.Now()
		creds := &mutableCreds{creds: map[string]*storage.AppCredentials{
			"app-1": fcmOnly("app-1", updated),
		}}
		cache := clients.NewCache(creds, factory, newTestLogger())

		before, err := cache.GetClients(ctx, "app-1")
		require.NoError(t, err)

		require.NoError(t, cache.Refresh(ctx, "app-1"))
		after, err := cache.GetClients(ctx, "app-1")
		require.NoError(t, err)

		assert.Same(t, before, after, "refresh must not churn client handles")
		assert.EqualValues(t, 1, factory.builds.Load())
	})

	t.Run("Changed snapshot rebuilds the bundle", func(t *testing.T) {
		factory := &countingFactory{}
		updated := time.Now()
		creds := &mutableCreds{creds: map[string]*storage.AppCredentials{
			"app-1": fcmOnly("app-1", updated),
		}}
		cache := clients.NewCache(creds, factory, newTestLogger())

		before, err := cache.GetClients(ctx, "app-1")
		require.NoError(t, err)

		creds.set("app-1", fcmOnly("app-1", updated.Add(time.Minute)))
		require.NoError(t, cache.Refresh(ctx, "app-1"))

		after, err := cache.GetClients(ctx, "app-1")
		require.NoError(t, err)
		assert.NotSame(t, before, after)
		assert.EqualValues(t, 2, factory.builds.Load())
	})

	t.Run("Credential deletion empties the bundle", func(t *testing.T) {
		updated := time.Now()
		creds := &mutableCreds{creds: map[string]*storage.AppCredentials{
			"app-1": fcmOnly("app-1", updated),
		}}
		cache := clients.NewCache(creds, &countingFactory{}, newTestLogger())

		bundle, err := cache.GetClients(ctx, "app-1")
		require.NoError(t, err)
		require.False(t, bundle.Empty())

		creds.mu.Lock()
		delete(creds.creds, "app-1")
		creds.mu.Unlock()
		require.NoError(t, cache.Refresh(ctx, "app-1"))

		bundle, err = cache.GetClients(ctx, "app-1")
		require.NoError(t, err)
		assert.True(t, bundle.Empty())
	})

	t.Run("Invalidation hook refreshes the touched app", func(t *testing.T) {
		factory := &countingFactory{}
		updated := time.Now()
		creds := &mutableCreds{creds: map[string]*storage.AppCredentials{
			"app-1": fcmOnly("app-1", updated),
		}}
		cache := clients.NewCache(creds, factory, newTestLogger())

		_, err := cache.GetClients(ctx, "app-1")
		require.NoError(t, err)

		creds.set("app-1", fcmOnly("app-1", updated.Add(time.Minute)))
		cache.InvalidationHook()("app-1")

		bundle, err := cache.GetClients(ctx, "app-1")
		require.NoError(t, err)
		assert.EqualValues(t, 2, factory.builds.Load())
		assert.Equal(t, updated.Add(time.Minute).Unix(), bundle.LastUpdated.Unix())
	})
}
