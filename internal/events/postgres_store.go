package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists signals in the signals table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the signals table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS signals (
			seq         BIGSERIAL PRIMARY KEY,
			id          VARCHAR(64) NOT NULL UNIQUE,
			type        VARCHAR(64) NOT NULL,
			data        JSONB NOT NULL DEFAULT '{}',
			emitted_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_signals_type ON signals (type, seq);
	`)
	return err
}

func (p *PostgresStore) Append(ctx context.Context, sig *Signal) error {
	data, err := json.Marshal(sig.Data)
	if err != nil {
		return fmt.Errorf("encode signal data: %w", err)
	}
	return p.db.QueryRowContext(ctx, `
		INSERT INTO signals (id, type, data, emitted_at)
		VALUES ($1, $2, $3::JSONB, $4)
		RETURNING seq
	`, sig.ID, string(sig.Type), string(data), sig.Timestamp).Scan(&sig.Seq)
}

func (p *PostgresStore) List(ctx context.Context, opts ListOptions) ([]*Signal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT seq, id, type, data::TEXT, emitted_at
		FROM signals
		WHERE seq > $1 AND ($2 = '' OR type = $2)
		ORDER BY seq ASC
		LIMIT $3
	`, opts.AfterSeq, string(opts.Type), normalizeLimit(opts.Limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Signal
	for rows.Next() {
		var (
			s   Signal
			typ string
			raw string
		)
		if err := rows.Scan(&s.Seq, &s.ID, &typ, &raw, &s.Timestamp); err != nil {
			return nil, err
		}
		s.Type = Type(typ)
		if err := json.Unmarshal([]byte(raw), &s.Data); err != nil {
			return nil, fmt.Errorf("decode signal %s: %w", s.ID, err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
