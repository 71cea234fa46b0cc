package storage

import (
	"context"
	"errors"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

var (
	// ErrNotFound is returned by single-row lookups when no row exists.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateRegistration is returned by RegistrationStore.Create when
	// the (activation_id, push_token) unique constraint rejects the insert.
	// Callers resolve it by re-running their lookup.
	ErrDuplicateRegistration = errors.New("storage: duplicate device registration")
)

// RegistrationStore is the persistence contract for device registrations.
// The three Find* lookups mirror the resolver's tier order; FindByUser and
// FindByUserAndActivation serve the dispatch path.
type RegistrationStore interface {
	FindByActivationAndToken(ctx context.Context, activationID, token string) ([]DeviceRegistration, error)
	FindByActivation(ctx context.Context, activationID string) ([]DeviceRegistration, error)
	FindByAppAndToken(ctx context.Context, appID, token string) ([]DeviceRegistration, error)

	FindByUser(ctx context.Context, appID, userID string) ([]DeviceRegistration, error)
	FindByUserAndActivation(ctx context.Context, appID, userID, activationID string) ([]DeviceRegistration, error)

	Create(ctx context.Context, reg *DeviceRegistration) error
	Save(ctx context.Context, reg *DeviceRegistration) error
	Delete(ctx context.Context, reg *DeviceRegistration) error
	DeleteByAppAndToken(ctx context.Context, appID, token string) error
}

// CredentialsStore is the persistence contract for per-application
// provider credentials. Upsert and DeleteChannel run transactionally and
// fire the registered post-commit hook only after the transaction commits.
type CredentialsStore interface {
	Get(ctx context.Context, appID string) (*AppCredentials, error)
	Upsert(ctx context.Context, creds *AppCredentials) error
	DeleteChannel(ctx context.Context, appID string, platform push.Platform) error
	Delete(ctx context.Context, appID string) error
}

// MessageStore persists per-device message records.
type MessageStore interface {
	Create(ctx context.Context, rec *PushMessageRecord) error
	UpdateStatus(ctx context.Context, id string, status MessageStatus) error
}
