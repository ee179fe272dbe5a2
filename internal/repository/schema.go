package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS shop_connections (
	id BIGINT PRIMARY KEY,
	shop TEXT NOT NULL,
	nonce TEXT NOT NULL,
	access_token TEXT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NULL,
	deleted_at TIMESTAMPTZ NULL,
	active BOOLEAN NOT NULL DEFAULT true
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS shop_connections_pending_nonce
	ON shop_connections (shop, nonce)
	WHERE active AND access_token IS NULL AND deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS shop_connections_shop_nonce_created
	ON shop_connections (shop, nonce, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS login_users (
	id BIGINT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

// EnsureSchema creates the tables this service owns when they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
