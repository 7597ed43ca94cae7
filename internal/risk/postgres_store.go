package risk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists profiles in risk_profiles, ledgers in risk_score_ledger
// and thresholds in risk_thresholds.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed risk store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_profiles (
			asset_key           VARCHAR(66) PRIMARY KEY,
			asset_id            TEXT NOT NULL,
			score               INTEGER NOT NULL CHECK (score >= 0 AND score <= 10000),
			volatility          INTEGER NOT NULL,
			liquidity           INTEGER NOT NULL,
			market_cap          INTEGER NOT NULL,
			regulatory          INTEGER NOT NULL,
			ai_confidence       INTEGER NOT NULL,
			params_updated_at   TIMESTAMPTZ NOT NULL,
			params_active       BOOLEAN NOT NULL DEFAULT FALSE,
			oracle_sources      TEXT[] NOT NULL DEFAULT '{}',
			assessment_count    BIGINT NOT NULL DEFAULT 0,
			verified            BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS risk_score_ledger (
			seq          BIGSERIAL PRIMARY KEY,
			asset_key    VARCHAR(66) NOT NULL,
			score        INTEGER NOT NULL,
			recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_risk_score_ledger_asset
			ON risk_score_ledger (asset_key, seq DESC);

		CREATE TABLE IF NOT EXISTS risk_thresholds (
			asset_key   VARCHAR(66) PRIMARY KEY,
			asset_id    TEXT NOT NULL,
			threshold   INTEGER NOT NULL CHECK (threshold > 0 AND threshold <= 10000)
		);
	`)
	return err
}

const upsertProfile = `
	INSERT INTO risk_profiles (
		asset_key, asset_id, score, volatility, liquidity, market_cap, regulatory,
		ai_confidence, params_updated_at, params_active, oracle_sources,
		assessment_count, verified, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (asset_key) DO UPDATE SET
		score = EXCLUDED.score,
		volatility = EXCLUDED.volatility,
		liquidity = EXCLUDED.liquidity,
		market_cap = EXCLUDED.market_cap,
		regulatory = EXCLUDED.regulatory,
		ai_confidence = EXCLUDED.ai_confidence,
		params_updated_at = EXCLUDED.params_updated_at,
		params_active = EXCLUDED.params_active,
		oracle_sources = EXCLUDED.oracle_sources,
		assessment_count = EXCLUDED.assessment_count,
		verified = EXCLUDED.verified,
		updated_at = EXCLUDED.updated_at`

func profileArgs(p *Profile) []interface{} {
	sources := p.OracleSources
	if sources == nil {
		sources = []string{}
	}
	return []interface{}{
		p.AssetKey, p.AssetID, int64(p.AggregatedRiskScore),
		int64(p.Parameters.VolatilityScore), int64(p.Parameters.LiquidityScore),
		int64(p.Parameters.MarketCapScore), int64(p.Parameters.RegulatoryScore),
		int64(p.Parameters.AIConfidenceScore), p.Parameters.LastUpdated, p.Parameters.IsActive,
		pq.Array(sources), int64(p.AssessmentCount), p.Verified, p.UpdatedAt,
	}
}

func (s *PostgresStore) GetProfile(ctx context.Context, assetKey string) (*Profile, error) {
	p := &Profile{}
	var score, vol, liq, mcap, reg, ai, count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT asset_key, asset_id, score, volatility, liquidity, market_cap, regulatory,
		       ai_confidence, params_updated_at, params_active, oracle_sources,
		       assessment_count, verified, updated_at
		FROM risk_profiles WHERE asset_key = $1
	`, assetKey).Scan(
		&p.AssetKey, &p.AssetID, &score, &vol, &liq, &mcap, &reg,
		&ai, &p.Parameters.LastUpdated, &p.Parameters.IsActive, pq.Array(&p.OracleSources),
		&count, &p.Verified, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk profile: %w", err)
	}
	p.AggregatedRiskScore = uint64(score)
	p.Parameters.VolatilityScore = uint64(vol)
	p.Parameters.LiquidityScore = uint64(liq)
	p.Parameters.MarketCapScore = uint64(mcap)
	p.Parameters.RegulatoryScore = uint64(reg)
	p.Parameters.AIConfidenceScore = uint64(ai)
	p.AssessmentCount = uint64(count)
	return p, nil
}

func (s *PostgresStore) SaveAssessment(ctx context.Context, p *Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertProfile, profileArgs(p)...); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO risk_score_ledger (asset_key, score, recorded_at) VALUES ($1, $2, $3)
	`, p.AssetKey, int64(p.AggregatedRiskScore), p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to append ledger: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) SaveProfiles(ctx context.Context, ps []*Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range ps {
		if _, err := tx.ExecContext(ctx, upsertProfile, profileArgs(p)...); err != nil {
			return fmt.Errorf("failed to upsert profile %s: %w", p.AssetID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) History(ctx context.Context, assetKey string, limit int) ([]uint64, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT score FROM (
				SELECT seq, score FROM risk_score_ledger
				WHERE asset_key = $1 ORDER BY seq DESC LIMIT $2
			) recent ORDER BY seq ASC
		`, assetKey, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT score FROM risk_score_ledger WHERE asset_key = $1 ORDER BY seq ASC
		`, assetKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []uint64{}
	for rows.Next() {
		var score int64
		if err := rows.Scan(&score); err != nil {
			return nil, err
		}
		out = append(out, uint64(score))
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetThreshold(ctx context.Context, assetKey, assetID string, threshold uint64) error {
	if threshold == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM risk_thresholds WHERE asset_key = $1`, assetKey)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_thresholds (asset_key, asset_id, threshold) VALUES ($1, $2, $3)
		ON CONFLICT (asset_key) DO UPDATE SET threshold = EXCLUDED.threshold
	`, assetKey, assetID, int64(threshold))
	return err
}

func (s *PostgresStore) GetThreshold(ctx context.Context, assetKey string) (uint64, error) {
	var t int64
	err := s.db.QueryRowContext(ctx, `SELECT threshold FROM risk_thresholds WHERE asset_key = $1`, assetKey).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(t), nil
}
