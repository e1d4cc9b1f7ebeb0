package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/quotecfg/model"
)

const pgUniqueViolation = "23505"

// PgConfigStore is a PostgreSQL-backed ConfigStore using pgx/v5. The full
// configuration is kept in a JSONB column; the listed columns are copies used
// for filtering and ordering.
type PgConfigStore struct {
	pool *pgxpool.Pool
}

// NewPgConfigStore creates a new PostgreSQL configuration store.
func NewPgConfigStore(pool *pgxpool.Pool) *PgConfigStore {
	return &PgConfigStore{pool: pool}
}

// Create inserts a new configuration.
func (s *PgConfigStore) Create(ctx context.Context, cfg model.CalculatorConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO calculator_configs (id, name, category, version, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cfg.ID, cfg.Name, cfg.Category, cfg.Version, body, cfg.CreatedAt, cfg.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return model.NewConflictError(fmt.Sprintf("configuration %q already exists", cfg.ID))
	}
	if err != nil {
		return fmt.Errorf("insert configuration: %w", err)
	}
	return nil
}

// Get retrieves a configuration by id.
func (s *PgConfigStore) Get(ctx context.Context, id string) (model.CalculatorConfig, error) {
	var body []byte
	var version int
	err := s.pool.QueryRow(ctx,
		`SELECT body, version FROM calculator_configs WHERE id = $1`, id,
	).Scan(&body, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CalculatorConfig{}, notFound(id)
	}
	if err != nil {
		return model.CalculatorConfig{}, fmt.Errorf("query configuration: %w", err)
	}
	return decodeBody(body, version)
}

// List returns summaries ordered by updated_at descending.
func (s *PgConfigStore) List(ctx context.Context, filter ListFilter) ([]model.ConfigSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT body, version FROM calculator_configs
		WHERE ($1 = '' OR category = $1)
		ORDER BY updated_at DESC, id
		LIMIT $2 OFFSET $3`,
		filter.Category, limit, max(filter.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("query configurations: %w", err)
	}
	defer rows.Close()

	out := []model.ConfigSummary{}
	for rows.Next() {
		var body []byte
		var version int
		if err := rows.Scan(&body, &version); err != nil {
			return nil, fmt.Errorf("scan configuration: %w", err)
		}
		cfg, err := decodeBody(body, version)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Summarize(cfg))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate configurations: %w", err)
	}
	return out, nil
}

// Update persists cfg with optimistic locking.
func (s *PgConfigStore) Update(ctx context.Context, cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
	stored := cfg.DeepCopy()
	stored.Version = cfg.Version + 1
	body, err := json.Marshal(stored)
	if err != nil {
		return model.CalculatorConfig{}, fmt.Errorf("marshal configuration: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE calculator_configs SET
			name = $1,
			category = $2,
			version = $3,
			body = $4,
			updated_at = $5
		WHERE id = $6 AND version = $7`,
		stored.Name, stored.Category, stored.Version, body, stored.UpdatedAt,
		cfg.ID, cfg.Version,
	)
	if err != nil {
		return model.CalculatorConfig{}, fmt.Errorf("update configuration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current int
		err := s.pool.QueryRow(ctx, `SELECT version FROM calculator_configs WHERE id = $1`, cfg.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CalculatorConfig{}, notFound(cfg.ID)
		}
		if err != nil {
			return model.CalculatorConfig{}, fmt.Errorf("query configuration version: %w", err)
		}
		return model.CalculatorConfig{}, versionConflict(cfg.ID, cfg.Version, current)
	}
	return stored, nil
}

// Replace swaps the configuration wholesale inside a transaction.
func (s *PgConfigStore) Replace(ctx context.Context, cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
	stored := cfg.DeepCopy()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current int
		err := tx.QueryRow(ctx,
			`SELECT version FROM calculator_configs WHERE id = $1 FOR UPDATE`, cfg.ID,
		).Scan(&current)
		exists := err == nil
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lock configuration: %w", err)
		}
		stored.Version = replacedVersion(current, cfg.Version, exists)

		body, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal configuration: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO calculator_configs (id, name, category, version, body, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				category = EXCLUDED.category,
				version = EXCLUDED.version,
				body = EXCLUDED.body,
				created_at = EXCLUDED.created_at,
				updated_at = EXCLUDED.updated_at`,
			stored.ID, stored.Name, stored.Category, stored.Version, body, stored.CreatedAt, stored.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert configuration: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.CalculatorConfig{}, err
	}
	return stored, nil
}

// Delete removes a configuration.
func (s *PgConfigStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM calculator_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete configuration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// HealthCheck pings the pool.
func (s *PgConfigStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// decodeBody unmarshals a stored document. The version column is
// authoritative over the copy inside the body.
func decodeBody(body []byte, version int) (model.CalculatorConfig, error) {
	var cfg model.CalculatorConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return model.CalculatorConfig{}, fmt.Errorf("unmarshal configuration: %w", err)
	}
	cfg.Version = version
	return cfg.Normalized(), nil
}
