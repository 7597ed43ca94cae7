package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps models in the ai_models table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the ai_models table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ai_models (
			model_id          TEXT PRIMARY KEY,
			model_hash        VARCHAR(66) NOT NULL,
			operator          VARCHAR(42) NOT NULL,
			registered_at     TIMESTAMPTZ NOT NULL,
			is_active         BOOLEAN NOT NULL DEFAULT TRUE,
			prediction_count  BIGINT NOT NULL DEFAULT 0
		)
	`)
	return err
}

func (p *PostgresStore) Put(ctx context.Context, m *Model) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ai_models (model_id, model_hash, operator, registered_at, is_active, prediction_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (model_id) DO UPDATE SET
			model_hash = EXCLUDED.model_hash,
			operator = EXCLUDED.operator,
			registered_at = EXCLUDED.registered_at,
			is_active = EXCLUDED.is_active,
			prediction_count = EXCLUDED.prediction_count
	`, m.ModelID, m.ModelHash, m.Operator, m.RegisteredAt, m.IsActive, int64(m.PredictionCount))
	if err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, modelID string) (*Model, error) {
	m := &Model{}
	var count int64
	err := p.db.QueryRowContext(ctx, `
		SELECT model_id, model_hash, operator, registered_at, is_active, prediction_count
		FROM ai_models WHERE model_id = $1
	`, modelID).Scan(&m.ModelID, &m.ModelHash, &m.Operator, &m.RegisteredAt, &m.IsActive, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModelNotRegistered
	}
	if err != nil {
		return nil, err
	}
	m.PredictionCount = uint64(count)
	return m, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*Model, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT model_id, model_hash, operator, registered_at, is_active, prediction_count
		FROM ai_models ORDER BY model_id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []*Model{}
	for rows.Next() {
		m := &Model{}
		var count int64
		if err := rows.Scan(&m.ModelID, &m.ModelHash, &m.Operator, &m.RegisteredAt, &m.IsActive, &count); err != nil {
			return nil, err
		}
		m.PredictionCount = uint64(count)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PostgresStore) IncrementPredictions(ctx context.Context, modelID string) (uint64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx, `
		UPDATE ai_models SET prediction_count = prediction_count + 1
		WHERE model_id = $1 RETURNING prediction_count
	`, modelID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrModelNotRegistered
	}
	if err != nil {
		return 0, err
	}
	return uint64(count), nil
}

func (p *PostgresStore) DecrementPredictions(ctx context.Context, modelID string) (uint64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx, `
		UPDATE ai_models SET prediction_count = GREATEST(prediction_count - 1, 0)
		WHERE model_id = $1 RETURNING prediction_count
	`, modelID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrModelNotRegistered
	}
	if err != nil {
		return 0, err
	}
	return uint64(count), nil
}
