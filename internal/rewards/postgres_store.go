package rewards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// PostgresStore keeps the pool in the single-row reward_pool table and
// operator positions in reward_accounts. Amounts are NUMERIC(78,0).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the reward tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reward_pool (
			id                 SMALLINT PRIMARY KEY CHECK (id = 1),
			balance            NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			total_funded       NUMERIC(78,0) NOT NULL DEFAULT 0,
			total_distributed  NUMERIC(78,0) NOT NULL DEFAULT 0,
			total_claimed      NUMERIC(78,0) NOT NULL DEFAULT 0
		);
		INSERT INTO reward_pool (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

		CREATE TABLE IF NOT EXISTS reward_accounts (
			operator       VARCHAR(42) PRIMARY KEY,
			pending        NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (pending >= 0),
			total_claimed  NUMERIC(78,0) NOT NULL DEFAULT 0,
			last_claim_at  TIMESTAMPTZ
		);
	`)
	return err
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric %q", s)
	}
	return v, nil
}

const poolColumns = `balance::text, total_funded::text, total_distributed::text, total_claimed::text`

func scanPool(row *sql.Row) (*Pool, error) {
	var b, f, d, c string
	if err := row.Scan(&b, &f, &d, &c); err != nil {
		return nil, err
	}
	pool := &Pool{}
	var err error
	for _, pair := range []struct {
		dst **big.Int
		src string
	}{{&pool.Balance, b}, {&pool.TotalFunded, f}, {&pool.TotalDistributed, d}, {&pool.TotalClaimed, c}} {
		if *pair.dst, err = parseNumeric(pair.src); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

func (p *PostgresStore) Pool(ctx context.Context) (*Pool, error) {
	pool, err := scanPool(p.db.QueryRowContext(ctx, `SELECT `+poolColumns+` FROM reward_pool WHERE id = 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return &Pool{Balance: zero(), TotalFunded: zero(), TotalDistributed: zero(), TotalClaimed: zero()}, nil
	}
	return pool, err
}

func (p *PostgresStore) Fund(ctx context.Context, amount *big.Int) (*Pool, error) {
	pool, err := scanPool(p.db.QueryRowContext(ctx, `
		UPDATE reward_pool
		SET balance = balance + $1::numeric, total_funded = total_funded + $1::numeric
		WHERE id = 1
		RETURNING `+poolColumns, amount.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to fund pool: %w", err)
	}
	return pool, nil
}

func (p *PostgresStore) Distribute(ctx context.Context, operator string, amount *big.Int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE reward_pool
		SET balance = balance - $1::numeric, total_distributed = total_distributed + $1::numeric
		WHERE id = 1 AND balance >= $1::numeric
	`, amount.String())
	if err != nil {
		return fmt.Errorf("failed to debit pool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientPool
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reward_accounts (operator, pending) VALUES ($1, $2::numeric)
		ON CONFLICT (operator) DO UPDATE SET pending = reward_accounts.pending + EXCLUDED.pending
	`, strings.ToLower(operator), amount.String()); err != nil {
		return fmt.Errorf("failed to credit operator: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresStore) TakePending(ctx context.Context, operator string, at time.Time) (*big.Int, error) {
	operator = strings.ToLower(operator)
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var pendingStr string
	err = tx.QueryRowContext(ctx, `
		SELECT pending::text FROM reward_accounts WHERE operator = $1 FOR UPDATE
	`, operator).Scan(&pendingStr)
	if errors.Is(err, sql.ErrNoRows) {
		return zero(), nil
	}
	if err != nil {
		return nil, err
	}
	pending, err := parseNumeric(pendingStr)
	if err != nil {
		return nil, err
	}
	if pending.Sign() == 0 {
		return zero(), nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE reward_accounts
		SET pending = 0, total_claimed = total_claimed + $2::numeric, last_claim_at = $3
		WHERE operator = $1
	`, operator, pending.String(), at); err != nil {
		return nil, fmt.Errorf("failed to zero pending: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE reward_pool SET total_claimed = total_claimed + $1::numeric WHERE id = 1
	`, pending.String()); err != nil {
		return nil, fmt.Errorf("failed to count claim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return pending, nil
}

func (p *PostgresStore) RestorePending(ctx context.Context, operator string, amount *big.Int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE reward_accounts
		SET pending = pending + $2::numeric, total_claimed = total_claimed - $2::numeric
		WHERE operator = $1
	`, strings.ToLower(operator), amount.String()); err != nil {
		return fmt.Errorf("failed to restore pending: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE reward_pool SET total_claimed = total_claimed - $1::numeric WHERE id = 1
	`, amount.String()); err != nil {
		return fmt.Errorf("failed to uncount claim: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresStore) Account(ctx context.Context, operator string) (*Account, error) {
	operator = strings.ToLower(operator)
	var pending, claimed string
	var last sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT pending::text, total_claimed::text, last_claim_at
		FROM reward_accounts WHERE operator = $1
	`, operator).Scan(&pending, &claimed, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return &Account{Operator: operator, Pending: zero(), TotalClaimed: zero()}, nil
	}
	if err != nil {
		return nil, err
	}
	a := &Account{Operator: operator, LastClaimAt: last.Time}
	if a.Pending, err = parseNumeric(pending); err != nil {
		return nil, err
	}
	if a.TotalClaimed, err = parseNumeric(claimed); err != nil {
		return nil, err
	}
	return a, nil
}
