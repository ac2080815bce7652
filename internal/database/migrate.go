package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS routes (
		id                         BIGSERIAL PRIMARY KEY,
		name                       TEXT NOT NULL,
		origin_address             TEXT NOT NULL,
		destination_address        TEXT NOT NULL,
		origin_lat                 DOUBLE PRECISION,
		origin_lng                 DOUBLE PRECISION,
		destination_lat            DOUBLE PRECISION,
		destination_lng            DOUBLE PRECISION,
		origin_geocode             TEXT NOT NULL DEFAULT '',
		destination_geocode        TEXT NOT NULL DEFAULT '',
		legacy_distance_km         DOUBLE PRECISION,
		total_miles                DOUBLE PRECISION,
		estimated_duration_minutes INTEGER,
		state_breakdown            JSONB,
		polyline                   TEXT,
		calculated_at              TIMESTAMPTZ,
		metrics_failed_at          TIMESTAMPTZ,
		status                     TEXT NOT NULL DEFAULT 'planned',
		driver_id                  TEXT,
		shipment_id                TEXT,
		created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE routes ADD COLUMN IF NOT EXISTS metrics_failed_at TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS routes_driver_id_idx ON routes (driver_id, id DESC)`,
	`CREATE INDEX IF NOT EXISTS routes_status_idx ON routes (status, id DESC)`,
	`DROP INDEX IF EXISTS routes_missing_metrics_idx`,
	`CREATE INDEX IF NOT EXISTS routes_backfill_queue_idx ON routes (metrics_failed_at NULLS FIRST, id)
		WHERE total_miles IS NULL AND origin_lat IS NOT NULL AND destination_lat IS NOT NULL`,
}

// Migrate creates the route schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
