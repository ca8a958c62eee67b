package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adarsh-shaw/MedScriptAI/pkg/database"
)

// PostgresStore keeps values as rows of a (key, value) table
type PostgresStore struct {
	db    *database.DB
	table string
}

// NewPostgresStore returns a store over table; the schema is created separately
func NewPostgresStore(db *database.DB, table string) (*PostgresStore, error) {
	if !database.ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	return &PostgresStore{db: db, table: table}, nil
}

// Name implements Backend
func (p *PostgresStore) Name() string { return "postgres" }

// Get implements KeyValueStore
func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, p.table)

	var value []byte
	err := p.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

// Set implements KeyValueStore
func (p *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, p.table)

	if _, err := p.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Remove implements KeyValueStore
func (p *PostgresStore) Remove(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, p.table)

	if _, err := p.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Ping implements Backend
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close implements Backend
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
