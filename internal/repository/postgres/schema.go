package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSchema creates the tables the service needs.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS tracked_rides (
    id BIGINT PRIMARY KEY,
    origin TEXT NOT NULL,
    destination TEXT NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    declared_fare DOUBLE PRECISION,
    state TEXT NOT NULL CHECK (state IN ('ACTIVE', 'ACCEPTED', 'FROZEN', 'CANCELED', 'FINISHED')),
    status_text TEXT NOT NULL DEFAULT '',
    stage_label TEXT NOT NULL DEFAULT '',
    last_error TEXT NOT NULL DEFAULT '',
    driver_name TEXT NOT NULL DEFAULT '',
    vehicle TEXT NOT NULL DEFAULT '',
    plate TEXT NOT NULL DEFAULT '',
    final_fare DOUBLE PRECISION,
    alerted BOOLEAN NOT NULL DEFAULT FALSE,
    notified_acceptance BOOLEAN NOT NULL DEFAULT FALSE,
    relaunched_from BIGINT,
    relaunched_to BIGINT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tracked_rides_created_at ON tracked_rides(created_at DESC);
`
