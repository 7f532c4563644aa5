package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied on startup. Statements are idempotent so every service
// instance can run them unconditionally.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		growid      TEXT PRIMARY KEY,
		balance_wl  BIGINT NOT NULL DEFAULT 0,
		balance_dl  BIGINT NOT NULL DEFAULT 0,
		balance_bgl BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS identity_bindings (
		principal_id TEXT PRIMARY KEY,
		growid       TEXT NOT NULL,
		bound_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		code        TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		price       BIGINT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS stock_tokens (
		id           TEXT PRIMARY KEY,
		product_code TEXT NOT NULL REFERENCES products(code) ON DELETE CASCADE,
		content      TEXT NOT NULL,
		state        TEXT NOT NULL DEFAULT 'available',
		consumed_by  TEXT NOT NULL DEFAULT '',
		consumed_at  TIMESTAMPTZ,
		added_by     TEXT NOT NULL DEFAULT '',
		added_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		source_batch TEXT NOT NULL DEFAULT '',
		seq          BIGSERIAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_tokens_pick
		ON stock_tokens (product_code, seq) WHERE state = 'available'`,
	`CREATE TABLE IF NOT EXISTS orders (
		order_number BIGINT PRIMARY KEY,
		principal_id TEXT NOT NULL,
		growid       TEXT NOT NULL,
		product_code TEXT NOT NULL,
		quantity     BIGINT NOT NULL,
		unit_price   BIGINT NOT NULL,
		total_price  BIGINT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_growid ON orders (growid, order_number DESC)`,
	`CREATE TABLE IF NOT EXISTS order_counter (
		id          INT PRIMARY KEY CHECK (id = 1),
		last_number BIGINT NOT NULL
	)`,
	`INSERT INTO order_counter (id, last_number) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS world_info (
		id    INT PRIMARY KEY CHECK (id = 1),
		world TEXT NOT NULL,
		owner TEXT NOT NULL,
		bot   TEXT NOT NULL
	)`,
}

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
