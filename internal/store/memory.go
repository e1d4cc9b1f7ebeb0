package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pitabwire/quotecfg/model"
)

// MemoryConfigStore is an in-memory ConfigStore for tests and single-process
// deployments. Values are deep-copied in and out.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]model.CalculatorConfig
}

// NewMemoryConfigStore creates an empty in-memory store.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[string]model.CalculatorConfig)}
}

// Create persists a new configuration.
func (s *MemoryConfigStore) Create(_ context.Context, cfg model.CalculatorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[cfg.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("configuration %q already exists", cfg.ID))
	}
	s.configs[cfg.ID] = cfg.DeepCopy()
	return nil
}

// Get retrieves a configuration by id.
func (s *MemoryConfigStore) Get(_ context.Context, id string) (model.CalculatorConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, exists := s.configs[id]
	if !exists {
		return model.CalculatorConfig{}, notFound(id)
	}
	return cfg.DeepCopy(), nil
}

// List returns summaries ordered by UpdatedAt descending, then id.
func (s *MemoryConfigStore) List(_ context.Context, filter ListFilter) ([]model.ConfigSummary, error) {
	s.mu.RLock()
	var out []model.ConfigSummary
	for _, cfg := range s.configs {
		if filter.Category != "" && cfg.Category != filter.Category {
			continue
		}
		out = append(out, model.Summarize(cfg))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []model.ConfigSummary{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	if out == nil {
		out = []model.ConfigSummary{}
	}
	return out, nil
}

// Update persists cfg with optimistic locking.
func (s *MemoryConfigStore) Update(_ context.Context, cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.configs[cfg.ID]
	if !exists {
		return model.CalculatorConfig{}, notFound(cfg.ID)
	}
	if existing.Version != cfg.Version {
		return model.CalculatorConfig{}, versionConflict(cfg.ID, cfg.Version, existing.Version)
	}

	stored := cfg.DeepCopy()
	stored.Version++
	s.configs[cfg.ID] = stored
	return stored.DeepCopy(), nil
}

// Replace swaps the configuration wholesale.
func (s *MemoryConfigStore) Replace(_ context.Context, cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.configs[cfg.ID]
	stored := cfg.DeepCopy()
	stored.Version = replacedVersion(existing.Version, cfg.Version, exists)
	s.configs[cfg.ID] = stored
	return stored.DeepCopy(), nil
}

// Delete removes a configuration.
func (s *MemoryConfigStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[id]; !exists {
		return notFound(id)
	}
	delete(s.configs, id)
	return nil
}

// HealthCheck always succeeds.
func (s *MemoryConfigStore) HealthCheck(context.Context) error {
	return nil
}

// Len returns the number of stored configurations. For testing.
func (s *MemoryConfigStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs)
}

func notFound(id string) error {
	return model.NewNotFoundError(fmt.Sprintf("configuration %q not found", id))
}

func versionConflict(id string, expected, actual int) error {
	return model.NewConflictError(
		fmt.Sprintf("configuration %q version conflict (expected %d, got %d)", id, expected, actual),
	)
}
