package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps results in the ai_results table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the ai_results table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ai_results (
			result_id    VARCHAR(66) PRIMARY KEY,
			model_id     TEXT NOT NULL,
			asset_id     TEXT NOT NULL,
			risk_score   INTEGER NOT NULL CHECK (risk_score >= 0 AND risk_score <= 10000),
			confidence   INTEGER NOT NULL CHECK (confidence >= 0 AND confidence <= 10000),
			proof        BYTEA NOT NULL DEFAULT '',
			computed_at  TIMESTAMPTZ NOT NULL,
			verified     BOOLEAN NOT NULL DEFAULT FALSE,
			submitter    VARCHAR(42) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ai_results_asset ON ai_results (asset_id, computed_at DESC);
	`)
	return err
}

const resultColumns = `result_id, model_id, asset_id, risk_score, confidence, proof, computed_at, verified, submitter`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row scanner) (*Result, error) {
	r := &Result{}
	var score, conf int64
	var proof []byte
	if err := row.Scan(&r.ResultID, &r.ModelID, &r.AssetID, &score, &conf, &proof, &r.ComputedAt, &r.Verified, &r.Submitter); err != nil {
		return nil, err
	}
	r.RiskScore = uint64(score)
	r.Confidence = uint64(conf)
	r.Proof = proof
	return r, nil
}

func (p *PostgresStore) Put(ctx context.Context, r *Result) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ai_results (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (result_id) DO UPDATE SET
			risk_score = EXCLUDED.risk_score,
			confidence = EXCLUDED.confidence,
			proof = EXCLUDED.proof,
			computed_at = EXCLUDED.computed_at,
			verified = EXCLUDED.verified,
			submitter = EXCLUDED.submitter
	`, r.ResultID, r.ModelID, r.AssetID, int64(r.RiskScore), int64(r.Confidence),
		[]byte(r.Proof), r.ComputedAt, r.Verified, r.Submitter)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, resultID string) (*Result, error) {
	r, err := scanResult(p.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM ai_results WHERE result_id = $1`, resultID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidProof
	}
	return r, err
}

func (p *PostgresStore) ListByAsset(ctx context.Context, assetID string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+resultColumns+` FROM ai_results
		WHERE asset_id = $1 ORDER BY computed_at DESC, result_id LIMIT $2
	`, assetID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []*Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetVerified(ctx context.Context, resultID string, verified bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE ai_results SET verified = $2 WHERE result_id = $1`, resultID, verified)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidProof
	}
	return nil
}
