package oracle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore keeps sources in the oracle_sources table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the oracle_sources table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS oracle_sources (
			name              TEXT PRIMARY KEY,
			address           VARCHAR(42) NOT NULL,
			weight            INTEGER NOT NULL CHECK (weight >= 0 AND weight <= 10000),
			last_update_time  TIMESTAMPTZ NOT NULL,
			is_active         BOOLEAN NOT NULL DEFAULT TRUE
		)
	`)
	return err
}

func (p *PostgresStore) Upsert(ctx context.Context, s *Source) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO oracle_sources (name, address, weight, last_update_time, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			address = EXCLUDED.address,
			weight = EXCLUDED.weight,
			last_update_time = EXCLUDED.last_update_time,
			is_active = EXCLUDED.is_active
	`, s.Name, s.Address, int64(s.Weight), s.LastUpdateTime, s.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert oracle source: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, name string) (*Source, error) {
	s := &Source{}
	var weight int64
	err := p.db.QueryRowContext(ctx, `
		SELECT name, address, weight, last_update_time, is_active
		FROM oracle_sources WHERE name = $1
	`, name).Scan(&s.Name, &s.Address, &weight, &s.LastUpdateTime, &s.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Weight = uint64(weight)
	return s, nil
}

func (p *PostgresStore) List(ctx context.Context, activeOnly bool) ([]*Source, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT name, address, weight, last_update_time, is_active
		FROM oracle_sources WHERE ($1 = FALSE OR is_active) ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []*Source{}
	for rows.Next() {
		s := &Source{}
		var weight int64
		if err := rows.Scan(&s.Name, &s.Address, &weight, &s.LastUpdateTime, &s.IsActive); err != nil {
			return nil, err
		}
		s.Weight = uint64(weight)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetActive(ctx context.Context, name string, active bool) error {
	return p.execOne(ctx, `UPDATE oracle_sources SET is_active = $2 WHERE name = $1`, name, active)
}

func (p *PostgresStore) Touch(ctx context.Context, name string, at time.Time) error {
	return p.execOne(ctx, `UPDATE oracle_sources SET last_update_time = $2 WHERE name = $1`, name, at)
}

func (p *PostgresStore) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSourceNotFound
	}
	return nil
}
