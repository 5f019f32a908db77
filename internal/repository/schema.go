package repository

import (
	"context"
	"fmt"
)

// schema はサービス起動時に適用するDDLです。何度実行しても結果は変わりません
var schema = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id                TEXT PRIMARY KEY,
		customer          TEXT NOT NULL,
		item              TEXT NOT NULL,
		date              TEXT NOT NULL,
		amount            TEXT NOT NULL,
		status            TEXT NOT NULL CHECK (status IN ('Confirmed', 'Pending', 'Cancelled')),
		payment_intent_id TEXT,
		payment_method    TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bookings_payment_intent_id_key
		ON bookings (payment_intent_id) WHERE payment_intent_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS bookings_status_idx ON bookings (status)`,
	`CREATE TABLE IF NOT EXISTS payment_settings (
		provider          TEXT PRIMARY KEY,
		enabled           BOOLEAN NOT NULL DEFAULT FALSE,
		publishable_key   TEXT NOT NULL DEFAULT '',
		secret_key        TEXT NOT NULL DEFAULT '',
		additional_config JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`INSERT INTO payment_settings (provider) VALUES ('stripe'), ('stored_card'), ('bank_transfer')
		ON CONFLICT (provider) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS saved_cards (
		id             TEXT PRIMARY KEY,
		customer_email TEXT NOT NULL,
		brand          TEXT NOT NULL,
		last4          TEXT NOT NULL,
		exp_month      INTEGER NOT NULL,
		exp_year       INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS saved_cards_customer_email_idx ON saved_cards (LOWER(customer_email))`,
	`CREATE TABLE IF NOT EXISTS payment_reconciliations (
		id                TEXT PRIMARY KEY,
		payment_intent_id TEXT NOT NULL,
		customer          TEXT NOT NULL,
		item              TEXT NOT NULL,
		amount            TEXT NOT NULL,
		reason            TEXT NOT NULL,
		detail            TEXT NOT NULL DEFAULT '',
		reported          BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate はスキーマを適用します
func Migrate(ctx context.Context, db *DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
