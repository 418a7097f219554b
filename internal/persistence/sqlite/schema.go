package sqlite

import (
	"context"
	"fmt"
)

// schemaStatements holds the idempotent table definitions for the booking
// engine. The uniqueness constraint on (series_id, scheduled_date) is the
// real duplicate guard for concurrent generator runs; application code only
// reacts to its violation.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		staff_id TEXT NOT NULL DEFAULT '',
		service_id TEXT NOT NULL DEFAULT '',
		booking_date TEXT NOT NULL,
		booking_time TEXT NOT NULL DEFAULT '',
		instance_id TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS series (
		id TEXT PRIMARY KEY,
		master_booking_id TEXT NOT NULL REFERENCES bookings(id),
		customer_id TEXT NOT NULL,
		staff_id TEXT NOT NULL DEFAULT '',
		service_id TEXT NOT NULL DEFAULT '',
		pattern_key TEXT NOT NULL,
		pattern_options TEXT NOT NULL DEFAULT '{}',
		start_date TEXT NOT NULL,
		start_time TEXT NOT NULL DEFAULT '',
		end_date TEXT,
		end_time TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL DEFAULT 'UTC',
		max_occurrences INTEGER NOT NULL,
		total_occurrences INTEGER NOT NULL DEFAULT 0,
		completed_occurrences INTEGER NOT NULL DEFAULT 0,
		discount REAL,
		status TEXT NOT NULL CHECK (status IN ('active', 'paused', 'cancelled', 'completed')),
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS series_exclusions (
		id TEXT PRIMARY KEY,
		series_id TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
		kind TEXT NOT NULL CHECK (kind IN ('date', 'weekday', 'range')),
		exact_date TEXT,
		weekday INTEGER,
		range_start TEXT,
		range_end TEXT,
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS series_instances (
		id TEXT PRIMARY KEY,
		series_id TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
		instance_number INTEGER NOT NULL,
		scheduled_date TEXT NOT NULL,
		scheduled_time TEXT NOT NULL DEFAULT '',
		original_date TEXT,
		original_time TEXT,
		status TEXT NOT NULL CHECK (status IN ('scheduled', 'booked', 'completed', 'skipped', 'cancelled')),
		reason TEXT NOT NULL DEFAULT '',
		booking_id TEXT REFERENCES bookings(id),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (series_id, scheduled_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_series_status ON series(status)`,
	`CREATE INDEX IF NOT EXISTS idx_exclusions_series ON series_exclusions(series_id)`,
	`CREATE INDEX IF NOT EXISTS idx_instances_series ON series_instances(series_id)`,
	`CREATE INDEX IF NOT EXISTS idx_instances_status_date ON series_instances(status, scheduled_date)`,
}

// Migrate applies the schema. Every statement is idempotent, so running it on
// startup against an existing database is safe.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := cp.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
