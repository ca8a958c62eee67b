package database

import (
	"context"
	"fmt"
	"regexp"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidTableName reports whether name is safe to interpolate into DDL
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// CreateKeyValueSchema creates the table backing the key-value store
func (db *DB) CreateKeyValueSchema(ctx context.Context, table string) error {
	if !ValidTableName(table) {
		return fmt.Errorf("invalid table name: %q", table)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key VARCHAR(255) PRIMARY KEY,
			value BYTEA NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`, table)

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	if db.logger != nil {
		db.logger.WithComponent("database").WithField("table", table).Info("Key-value schema ready")
	}
	return nil
}
