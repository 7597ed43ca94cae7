package rolegate

import (
	"context"
	"database/sql"
)

// PostgresStore keeps grants in the capability_grants table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) HasCapability(ctx context.Context, actor string, c Capability) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM capability_grants WHERE address = $1 AND capability = $2)
	`, Normalize(actor), string(c)).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) Grant(ctx context.Context, g *Grant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO capability_grants (address, capability, granted_by, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address, capability) DO NOTHING
	`, Normalize(g.Address), string(g.Capability), g.GrantedBy, g.GrantedAt)
	return err
}

func (p *PostgresStore) Revoke(ctx context.Context, address string, c Capability) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM capability_grants WHERE address = $1 AND capability = $2
	`, Normalize(address), string(c))
	return err
}

func (p *PostgresStore) List(ctx context.Context, address string) ([]*Grant, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT address, capability, granted_by, granted_at
		FROM capability_grants WHERE address = $1 ORDER BY capability
	`, Normalize(address))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Grant
	for rows.Next() {
		g := &Grant{}
		var c string
		if err := rows.Scan(&g.Address, &c, &g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, err
		}
		g.Capability = Capability(c)
		out = append(out, g)
	}
	return out, rows.Err()
}

// Migrate creates the capability_grants table if it doesn't exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS capability_grants (
			address     VARCHAR(42) NOT NULL,
			capability  VARCHAR(32) NOT NULL,
			granted_by  VARCHAR(64) NOT NULL DEFAULT '',
			granted_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (address, capability)
		)
	`)
	return err
}
