// Package postgres implements the storage contracts on gorm/Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tinywideclouds/go-push-gateway/internal/storage"
)

// RegistrationStore implements storage.RegistrationStore.
type RegistrationStore struct {
	db *gorm.DB
}

func NewRegistrationStore(db *gorm.DB) *RegistrationStore {
	return &RegistrationStore{db: db}
}

func (s *RegistrationStore) FindByActivationAndToken(ctx context.Context, activationID, token string) ([]storage.DeviceRegistration, error) {
	var rows []storage.DeviceRegistration
	err := s.db.WithContext(ctx).
		Where("activation_id = ? AND push_token = ?", activationID, token).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find by activation+token: %w", err)
	}
	return rows, nil
}

func (s *RegistrationStore) FindByActivation(ctx context.Context, activationID string) ([]storage.DeviceRegistration, error) {
	var rows []storage.DeviceRegistration
	err := s.db.WithContext(ctx).
		Where("activation_id = ?", activationID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find by activation: %w", err)
	}
	return rows, nil
}

func (s *RegistrationStore) FindByAppAndToken(ctx context.Context, appID, token string) ([]storage.DeviceRegistration, error) {
	var rows []storage.DeviceRegistration
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND push_token = ?", appID, token).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find by app+token: %w", err)
	}
	return rows, nil
}

func (s *RegistrationStore) FindByUser(ctx context.Context, appID, userID string) ([]storage.DeviceRegistration, error) {
	var rows []storage.DeviceRegistration
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND user_id = ?", appID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find by user: %w", err)
	}
	return rows, nil
}

func (s *RegistrationStore) FindByUserAndActivation(ctx context.Context, appID, userID, activationID string) ([]storage.DeviceRegistration, error) {
	var rows []storage.DeviceRegistration
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND user_id = ? AND activation_id = ?", appID, userID, activationID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find by user+activation: %w", err)
	}
	return rows, nil
}

// Create inserts a brand-new row. A unique-index rejection surfaces as
// storage.ErrDuplicateRegistration so the resolver can retry its lookup.
func (s *RegistrationStore) Create(ctx context.Context, reg *storage.DeviceRegistration) error {
	err := s.db.WithContext(ctx).Create(reg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("create registration %s: %w", reg.PushToken, storage.ErrDuplicateRegistration)
	}
	if err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (s *RegistrationStore) Save(ctx context.Context, reg *storage.DeviceRegistration) error {
	err := s.db.WithContext(ctx).Save(reg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("save registration %s: %w", reg.ID, storage.ErrDuplicateRegistration)
	}
	if err != nil {
		return fmt.Errorf("save registration %s: %w", reg.ID, err)
	}
	return nil
}

func (s *RegistrationStore) Delete(ctx context.Context, reg *storage.DeviceRegistration) error {
	if err := s.db.WithContext(ctx).Delete(&storage.DeviceRegistration{}, "id = ?", reg.ID).Error; err != nil {
		return fmt.Errorf("delete registration %s: %w", reg.ID, err)
	}
	return nil
}

func (s *RegistrationStore) DeleteByAppAndToken(ctx context.Context, appID, token string) error {
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND push_token = ?", appID, token).
		Delete(&storage.DeviceRegistration{}).Error
	if err != nil {
		return fmt.Errorf("delete registrations for app %s: %w", appID, err)
	}
	return nil
}
