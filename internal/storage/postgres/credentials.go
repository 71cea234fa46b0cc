package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tinywideclouds/go-push-gateway/internal/storage"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// CredentialsStore implements storage.CredentialsStore. Writes run inside
// a transaction and the registered hook fires only after the transaction
// has committed; the provider client cache depends on that ordering.
type CredentialsStore struct {
	db         *gorm.DB
	afterWrite func(appID string)
}

func NewCredentialsStore(db *gorm.DB) *CredentialsStore {
	return &CredentialsStore{db: db, afterWrite: func(string) {}}
}

// OnCommit registers the post-commit hook invoked with the app ID of
// every successful credential write.
func (s *CredentialsStore) OnCommit(hook func(appID string)) {
	if hook != nil {
		s.afterWrite = hook
	}
}

func (s *CredentialsStore) Get(ctx context.Context, appID string) (*storage.AppCredentials, error) {
	var creds storage.AppCredentials
	err := s.db.WithContext(ctx).First(&creds, "app_id = ?", appID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("credentials for app %s: %w", appID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials for app %s: %w", appID, err)
	}
	return &creds, nil
}

func (s *CredentialsStore) Upsert(ctx context.Context, creds *storage.AppCredentials) error {
	creds.LastUpdated = time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Save(creds).Error
	})
	if err != nil {
		return fmt.Errorf("upsert credentials for app %s: %w", creds.AppID, err)
	}
	s.afterWrite(creds.AppID)
	return nil
}

// DeleteChannel nulls one channel's credential bundle. The row itself
// stays so the remaining channels keep working.
func (s *CredentialsStore) DeleteChannel(ctx context.Context, appID string, platform push.Platform) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var creds storage.AppCredentials
		if err := tx.First(&creds, "app_id = ?", appID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		creds.ClearChannel(platform)
		creds.LastUpdated = time.Now().UTC()
		return tx.Save(&creds).Error
	})
	if err != nil {
		return fmt.Errorf("delete %s channel for app %s: %w", platform, appID, err)
	}
	s.afterWrite(appID)
	return nil
}

func (s *CredentialsStore) Delete(ctx context.Context, appID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Delete(&storage.AppCredentials{}, "app_id = ?", appID).Error
	})
	if err != nil {
		return fmt.Errorf("delete credentials for app %s: %w", appID, err)
	}
	s.afterWrite(appID)
	return nil
}
