package postgres

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
)

func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database connected and migrated")
	return db, nil
}

func migrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price BIGINT NOT NULL DEFAULT 0,
			image_url TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			stock INT NOT NULL DEFAULT 0,
			sold INT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS payment_intents (
			id TEXT PRIMARY KEY,
			total_price BIGINT NOT NULL DEFAULT 0,
			order_type TEXT NOT NULL DEFAULT 'dine_in',
			table_number TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'created',
			payment_id TEXT UNIQUE,
			redirect_url TEXT NOT NULL DEFAULT '',
			session_token TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS intent_items (
			id SERIAL PRIMARY KEY,
			intent_id TEXT NOT NULL REFERENCES payment_intents(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL,
			name TEXT NOT NULL,
			price BIGINT NOT NULL DEFAULT 0,
			quantity INT NOT NULL DEFAULT 1,
			note TEXT NOT NULL DEFAULT ''
		);

		-- payment_id carries a UNIQUE index: it is the linearization point
		-- for reconciliation. NULL (staff-created orders) never conflicts.
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			total_price BIGINT NOT NULL DEFAULT 0,
			order_type TEXT NOT NULL DEFAULT 'dine_in',
			table_number TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			payment_id TEXT UNIQUE,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			payment_method TEXT NOT NULL DEFAULT '',
			paid_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS order_items (
			id SERIAL PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL,
			name TEXT NOT NULL,
			price BIGINT NOT NULL DEFAULT 0,
			quantity INT NOT NULL DEFAULT 1,
			note TEXT NOT NULL DEFAULT ''
		);

		-- Per-order stock effect ledger. The primary key makes each
		-- direction applicable at most once per order.
		CREATE TABLE IF NOT EXISTS stock_entries (
			order_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (order_id, direction)
		);
	`)
	return err
}
