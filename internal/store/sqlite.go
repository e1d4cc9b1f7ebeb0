package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/quotecfg/model"
)

// SQLiteConfigStore is a ConfigStore on an embedded SQLite database, using
// the pure-Go modernc.org/sqlite driver. Callers should limit the pool to a
// single connection; writes rely on it for serialization.
type SQLiteConfigStore struct {
	db *sql.DB
}

// NewSQLiteConfigStore wraps an open SQLite handle.
func NewSQLiteConfigStore(db *sql.DB) *SQLiteConfigStore {
	return &SQLiteConfigStore{db: db}
}

// Create inserts a new configuration.
func (s *SQLiteConfigStore) Create(ctx context.Context, cfg model.CalculatorConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, exists, err := currentVersion(ctx, tx, cfg.ID); err != nil {
			return err
		} else if exists {
			return model.NewConflictError(fmt.Sprintf("configuration %q already exists", cfg.ID))
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO calculator_configs (id, name, category, version, body, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			cfg.ID, cfg.Name, cfg.Category, cfg.Version, string(body),
			formatTime(cfg.CreatedAt), formatTime(cfg.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert configuration: %w", err)
		}
		return nil
	})
}

// Get retrieves a configuration by id.
func (s *SQLiteConfigStore) Get(ctx context.Context, id string) (model.CalculatorConfig, error) {
	var body string
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT body, version FROM calculator_configs WHERE id = ?`, id,
	).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CalculatorConfig{}, notFound(id)
	}
	if err != nil {
		return model.CalculatorConfig{}, fmt.Errorf("query configuration: %w", err)
	}
	return decodeBody([]byte(body), version)
}

// List returns summaries ordered by updated_at descending. Timestamps are
// stored as fixed-width UTC text so lexical order matches time order.
func (s *SQLiteConfigStore) List(ctx context.Context, filter ListFilter) ([]model.ConfigSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT body, version FROM calculator_configs
		WHERE (? = '' OR category = ?)
		ORDER BY updated_at DESC, id
		LIMIT ? OFFSET ?`,
		filter.Category, filter.Category, limit, max(filter.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("query configurations: %w", err)
	}
	defer rows.Close()

	out := []model.ConfigSummary{}
	for rows.Next() {
		var body string
		var version int
		if err := rows.Scan(&body, &version); err != nil {
			return nil, fmt.Errorf("scan configuration: %w", err)
		}
		cfg, err := decodeBody([]byte(body), version)
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
func (s *SQLiteConfigStore) Update(ctx context.Context, cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
	stored := cfg.DeepCopy()
	stored.Version = cfg.Version + 1
	body, err := json.Marshal(stored)
	if err != nil {
		return model.CalculatorConfig{}, fmt.Errorf("marshal configuration: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE calculator_configs SET name = ?, category = ?, version = ?, body = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			stored.Name, stored.Category, stored.Version, string(body), formatTime(stored.UpdatedAt),
			cfg.ID, cfg.Version,
		)
		if err != nil {
			return fmt.Errorf("update configuration: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		current, exists, err := currentVersion(ctx, tx, cfg.ID)
		if err != nil {
			return err
		}
		if !exists {
			return notFound(cfg.ID)
		}
		return versionConflict(cfg.ID, cfg.Version, current)
	})
	if err != nil {
		return model.CalculatorConfig{}, err
	}
	return stored, nil
}

// Replace swaps the configuration wholesale.
func (s *SQLiteConfigStore) Replace(ctx context.Context, cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
	stored := cfg.DeepCopy()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, exists, err := currentVersion(ctx, tx, cfg.ID)
		if err != nil {
			return err
		}
		stored.Version = replacedVersion(current, cfg.Version, exists)
		body, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal configuration: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO calculator_configs (id, name, category, version, body, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				category = excluded.category,
				version = excluded.version,
				body = excluded.body,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at`,
			stored.ID, stored.Name, stored.Category, stored.Version, string(body),
			formatTime(stored.CreatedAt), formatTime(stored.UpdatedAt),
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
func (s *SQLiteConfigStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calculator_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete configuration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

// HealthCheck pings the database.
func (s *SQLiteConfigStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteConfigStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func currentVersion(ctx context.Context, tx *sql.Tx, id string) (int, bool, error) {
	var v int
	err := tx.QueryRowContext(ctx, `SELECT version FROM calculator_configs WHERE id = ?`, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query configuration version: %w", err)
	}
	return v, true, nil
}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
