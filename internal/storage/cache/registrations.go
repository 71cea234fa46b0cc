package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-push-gateway/internal/storage"
)

// CachedRegistrationStore is a decorator that adds read-aside caching to
// the per-user device lookup the dispatch engine hits on every send. The
// resolver's tiered lookups pass straight through: registration
// reconciliation must always see the source of truth.
type CachedRegistrationStore struct {
	real  storage.RegistrationStore
	cache Client
	ttl   time.Duration
}

func NewCachedRegistrationStore(real storage.RegistrationStore, cache Client, ttl time.Duration) *CachedRegistrationStore {
	return &CachedRegistrationStore{real: real, cache: cache, ttl: ttl}
}

// --- READ PATHS ---

func (s *CachedRegistrationStore) FindByUser(ctx context.Context, appID, userID string) ([]storage.DeviceRegistration, error) {
	key := s.userKey(appID, userID)

	var cached []storage.DeviceRegistration
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.real.FindByUser(ctx, appID, userID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization, not a transaction; if Redis is down we
	// just serve from the database.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)
	return fresh, nil
}

// Uncached pass-throughs.

func (s *CachedRegistrationStore) FindByActivationAndToken(ctx context.Context, activationID, token string) ([]storage.DeviceRegistration, error) {
	return s.real.FindByActivationAndToken(ctx, activationID, token)
}

func (s *CachedRegistrationStore) FindByActivation(ctx context.Context, activationID string) ([]storage.DeviceRegistration, error) {
	return s.real.FindByActivation(ctx, activationID)
}

func (s *CachedRegistrationStore) FindByAppAndToken(ctx context.Context, appID, token string) ([]storage.DeviceRegistration, error) {
	return s.real.FindByAppAndToken(ctx, appID, token)
}

func (s *CachedRegistrationStore) FindByUserAndActivation(ctx context.Context, appID, userID, activationID string) ([]storage.DeviceRegistration, error) {
	return s.real.FindByUserAndActivation(ctx, appID, userID, activationID)
}

// --- WRITE PATHS (invalidate-on-write) ---

func (s *CachedRegistrationStore) Create(ctx context.Context, reg *storage.DeviceRegistration) error {
	if err := s.real.Create(ctx, reg); err != nil {
		return err
	}
	return s.invalidateRow(ctx, reg)
}

func (s *CachedRegistrationStore) Save(ctx context.Context, reg *storage.DeviceRegistration) error {
	if err := s.real.Save(ctx, reg); err != nil {
		return err
	}
	return s.invalidateRow(ctx, reg)
}

// Delete must clear the cache even though the row is gone: a dead token
// must stop receiving sends immediately.
func (s *CachedRegistrationStore) Delete(ctx context.Context, reg *storage.DeviceRegistration) error {
	if err := s.real.Delete(ctx, reg); err != nil {
		return err
	}
	return s.invalidateRow(ctx, reg)
}

func (s *CachedRegistrationStore) DeleteByAppAndToken(ctx context.Context, appID, token string) error {
	// Look the rows up first so their users' cache keys can be dropped.
	rows, err := s.real.FindByAppAndToken(ctx, appID, token)
	if err != nil {
		return err
	}
	if err := s.real.DeleteByAppAndToken(ctx, appID, token); err != nil {
		return err
	}
	for i := range rows {
		if err := s.invalidateRow(ctx, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// --- Helpers ---

func (s *CachedRegistrationStore) invalidateRow(ctx context.Context, reg *storage.DeviceRegistration) error {
	if reg.UserID == nil {
		return nil
	}
	return s.cache.Del(ctx, s.userKey(reg.AppID, *reg.UserID))
}

func (s *CachedRegistrationStore) userKey(appID, userID string) string {
	return fmt.Sprintf("push:devices:%s:%s", appID, userID)
}
