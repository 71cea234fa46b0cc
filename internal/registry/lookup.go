package registry

import (
	"context"
	"fmt"

	"github.com/tinywideclouds/go-push-gateway/internal/storage"
)

// lookupTier is one step of the registration lookup. Tiers are evaluated
// in priority order and a tier is consulted only when every tier before it
// returned nothing. Exclusive tiers may legitimately match at most one
// row; more than one means the unique index is missing or broken.
type lookupTier struct {
	name      string
	exclusive bool
	find      func(ctx context.Context) ([]storage.DeviceRegistration, error)
}

func (r *Resolver) lookupTiers(appID, token, activationID string) []lookupTier {
	return []lookupTier{
		{
			name:      "activation+token",
			exclusive: true,
			find: func(ctx context.Context) ([]storage.DeviceRegistration, error) {
				return r.store.FindByActivationAndToken(ctx, activationID, token)
			},
		},
		{
			name:      "activation",
			exclusive: true,
			find: func(ctx context.Context) ([]storage.DeviceRegistration, error) {
				return r.store.FindByActivation(ctx, activationID)
			},
		},
		{
			name:      "app+token",
			exclusive: false,
			find: func(ctx context.Context) ([]storage.DeviceRegistration, error) {
				return r.store.FindByAppAndToken(ctx, appID, token)
			},
		},
	}
}

// lookup runs the tiers in order and returns the first non-empty match
// along with the matching tier's name, or (nil, "") when no tier matched.
func (r *Resolver) lookup(ctx context.Context, appID, token, activationID string) ([]storage.DeviceRegistration, string, error) {
	for _, tier := range r.lookupTiers(appID, token, activationID) {
		rows, err := tier.find(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("registration lookup (%s): %w", tier.name, err)
		}
		if len(rows) == 0 {
			continue
		}
		if tier.exclusive && len(rows) > 1 {
			return nil, "", fmt.Errorf("%d rows matched tier %s for activation %s: %w",
				len(rows), tier.name, activationID, ErrInconsistentRegistrations)
		}
		return rows, tier.name, nil
	}
	return nil, "", nil
}
