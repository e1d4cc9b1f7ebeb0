// Package store persists calculator configurations as JSON documents keyed
// by id, with optimistic concurrency on the version field.
package store

import (
	"context"

	"github.com/pitabwire/quotecfg/model"
)

// ConfigStore persists calculator configurations.
type ConfigStore interface {
	// Create persists a new configuration. Returns CONFLICT if the id exists.
	Create(ctx context.Context, cfg model.CalculatorConfig) error

	// Get retrieves a configuration by id. Returns NOT_FOUND if missing.
	Get(ctx context.Context, id string) (model.CalculatorConfig, error)

	// List returns configuration summaries, most recently updated first.
	List(ctx context.Context, filter ListFilter) ([]model.ConfigSummary, error)

	// Update persists cfg if the stored version equals cfg.Version, and
	// stores it as version cfg.Version+1. Returns CONFLICT on a version
	// mismatch and NOT_FOUND if the id does not exist.
	Update(ctx context.Context, cfg model.CalculatorConfig) (model.CalculatorConfig, error)

	// Replace swaps the stored configuration wholesale, creating it if
	// absent. An existing configuration's version is bumped past the
	// stored one.
	Replace(ctx context.Context, cfg model.CalculatorConfig) (model.CalculatorConfig, error)

	// Delete removes a configuration. Returns NOT_FOUND if missing.
	Delete(ctx context.Context, id string) error

	// HealthCheck verifies the backing storage is reachable.
	HealthCheck(ctx context.Context) error
}

// ListFilter narrows List results.
type ListFilter struct {
	Category string
	Limit    int
	Offset   int
}

// replacedVersion returns the version a Replace stores.
func replacedVersion(existing, incoming int, exists bool) int {
	if exists {
		return max(existing, incoming) + 1
	}
	return max(incoming, 1)
}
