// Package registry reconciles inbound device registration requests
// against the registration store, enforcing the single- and
// multi-activation invariants and re-validating every registration
// against the identity provider.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-gateway/internal/identity"
	"github.com/tinywideclouds/go-push-gateway/internal/storage"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

var (
	// ErrInconsistentRegistrations indicates duplicate rows where at most
	// one may exist. This is an operator-attention error, never auto-healed.
	ErrInconsistentRegistrations = errors.New("registry: multiple registrations where at most one may exist")
	// ErrTokenSharedAcrossActivations is returned by single registration
	// when the token is already bound to several activations; the caller
	// must use multi-activation registration instead.
	ErrTokenSharedAcrossActivations = errors.New("registry: token bound to multiple activations, use multi-activation registration")
	// ErrActivationRemoved means the activation is in a terminal state and
	// must not be registered.
	ErrActivationRemoved = errors.New("registry: activation is removed")
	// ErrUnknownPlatform rejects registrations for platforms the gateway
	// has no channel for.
	ErrUnknownPlatform = errors.New("registry: unknown platform")
)

const (
	defaultMaxConflictRetries = 3
	defaultConflictRetryWait  = 50 * time.Millisecond
)

// Resolver implements the device registration operations.
type Resolver struct {
	store    storage.RegistrationStore
	identity identity.Client
	logger   *slog.Logger

	maxConflictRetries uint64
	conflictRetryWait  time.Duration
}

func NewResolver(store storage.RegistrationStore, idClient identity.Client, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:              store,
		identity:           idClient,
		logger:             logger.With("component", "RegistrationResolver"),
		maxConflictRetries: defaultMaxConflictRetries,
		conflictRetryWait:  defaultConflictRetryWait,
	}
}

// Register binds one activation to a push token. An existing row found by
// the tiered lookup is updated in place, which is how token rotation and
// activation replacement are absorbed without row churn.
func (r *Resolver) Register(ctx context.Context, appID, token string, platform push.Platform, activationID string) error {
	if !platform.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
	return r.withConflictRetry(ctx, func() error {
		return r.registerOne(ctx, appID, token, platform, activationID, nil)
	})
}

// RegisterMulti binds several activations to the same token, one row per
// activation. Activations are processed independently against a
// request-scoped set of already-used row IDs so one physical row is never
// bound twice within the call. Rows written for activations that validated
// before a later failure are kept; the call still reports overall failure.
func (r *Resolver) RegisterMulti(ctx context.Context, appID, token string, platform push.Platform, activationIDs []string) error {
	if !platform.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}
	used := make(map[string]struct{})
	seen := make(map[string]struct{}, len(activationIDs))
	var errs []error
	for _, activationID := range activationIDs {
		if _, dup := seen[activationID]; dup {
			continue
		}
		seen[activationID] = struct{}{}

		err := r.withConflictRetry(ctx, func() error {
			return r.registerOne(ctx, appID, token, platform, activationID, used)
		})
		if err != nil {
			r.logger.Error("multi-activation registration failed",
				"app_id", appID, "activation_id", activationID, "err", err)
			errs = append(errs, fmt.Errorf("activation %s: %w", activationID, err))
		}
	}
	return errors.Join(errs...)
}

// UpdateStatus refreshes the active flag on every row bound to the
// activation. A known status skips the identity provider round-trip.
func (r *Resolver) UpdateStatus(ctx context.Context, activationID string, known *identity.Status) error {
	status := identity.Status("")
	if known != nil {
		status = *known
	} else {
		act, err := r.identity.GetActivationStatus(ctx, activationID)
		if err != nil {
			return fmt.Errorf("status update for activation %s: %w", activationID, err)
		}
		status = act.Status
	}

	rows, err := r.store.FindByActivation(ctx, activationID)
	if err != nil {
		return fmt.Errorf("status update for activation %s: %w", activationID, err)
	}
	for i := range rows {
		rows[i].Active = status == identity.StatusActive
		if err := r.store.Save(ctx, &rows[i]); err != nil {
			return fmt.Errorf("status update for activation %s: %w", activationID, err)
		}
	}
	return nil
}

// Delete removes every activation binding for (appID, token) in one call.
func (r *Resolver) Delete(ctx context.Context, appID, token string) error {
	return r.store.DeleteByAppAndToken(ctx, appID, token)
}

// withConflictRetry retries op a bounded number of times with fixed
// backoff, but only on the unique-constraint conflict of the create path.
// The re-run lookup then finds the winner's row and proceeds via update.
func (r *Resolver) withConflictRetry(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err != nil && !errors.Is(err, storage.ErrDuplicateRegistration) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.conflictRetryWait), r.maxConflictRetries),
		ctx,
	)
	return backoff.Retry(wrapped, bo)
}

// registerOne resolves one activation to a row, validates it against the
// identity provider and persists it. A nil used set selects single
// registration semantics; a non-nil set selects multi-activation semantics.
func (r *Resolver) registerOne(ctx context.Context, appID, token string, platform push.Platform, activationID string, used map[string]struct{}) error {
	rows, tier, err := r.lookup(ctx, appID, token, activationID)
	if err != nil {
		return err
	}

	var reg *storage.DeviceRegistration
	switch {
	case len(rows) == 0:
		// Brand-new binding.

	case len(rows) == 1:
		row := rows[0]
		if used != nil {
			if _, taken := used[row.ID]; taken {
				break // row already bound this request, create a fresh one
			}
		}
		reg = &row

	default:
		// Only the app+token tier can match many rows.
		if used == nil {
			return fmt.Errorf("token %s in app %s: %w", token, appID, ErrTokenSharedAcrossActivations)
		}
		var unused []storage.DeviceRegistration
		for _, row := range rows {
			if _, taken := used[row.ID]; !taken {
				unused = append(unused, row)
			}
		}
		switch len(unused) {
		case 0:
			// every matched row is bound already, create a fresh one
		case 1:
			reg = &unused[0]
		default:
			// A token seen before with no activation to disambiguate.
			// Drop the ambiguous rows and start clean.
			r.logger.Warn("deleting ambiguous registrations for token",
				"app_id", appID, "count", len(unused), "tier", tier)
			for i := range unused {
				if err := r.store.Delete(ctx, &unused[i]); err != nil {
					return err
				}
			}
		}
	}

	created := reg == nil
	if created {
		reg = &storage.DeviceRegistration{ID: uuid.NewString()}
	}

	act, err := r.identity.GetActivationStatus(ctx, activationID)
	if err != nil {
		return fmt.Errorf("validate activation %s: %w", activationID, err)
	}
	if act.Status == identity.StatusRemoved {
		return fmt.Errorf("activation %s: %w", activationID, ErrActivationRemoved)
	}

	reg.AppID = appID
	reg.ActivationID = &activationID
	reg.UserID = &act.UserID
	reg.Platform = platform
	reg.PushToken = token
	reg.Active = act.Status == identity.StatusActive
	reg.LastRegistered = time.Now().UTC()

	if created {
		err = r.store.Create(ctx, reg)
	} else {
		err = r.store.Save(ctx, reg)
	}
	if err != nil {
		return err
	}

	if used != nil {
		used[reg.ID] = struct{}{}
	}
	r.logger.Debug("registration persisted",
		"app_id", appID, "activation_id", activationID, "created", created, "tier", tier)
	return nil
}
