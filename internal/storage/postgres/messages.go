package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tinywideclouds/go-push-gateway/internal/storage"
)

// MessageStore implements storage.MessageStore.
type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) Create(ctx context.Context, rec *storage.PushMessageRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create message record: %w", err)
	}
	return nil
}

func (s *MessageStore) UpdateStatus(ctx context.Context, id string, status storage.MessageStatus) error {
	err := s.db.WithContext(ctx).Model(&storage.PushMessageRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("update message record %s: %w", id, err)
	}
	return nil
}
