package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haulplan/haulplan/internal/geocoding"
	"github.com/haulplan/haulplan/internal/routing"
	"github.com/haulplan/haulplan/pkg/polyline"
)

const routeColumns = `
	id, name, origin_address, destination_address,
	origin_lat, origin_lng, destination_lat, destination_lng,
	origin_geocode, destination_geocode,
	legacy_distance_km, total_miles, estimated_duration_minutes,
	state_breakdown, polyline, calculated_at,
	status, driver_id, shipment_id,
	created_at, updated_at`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL route repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a route by ID.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*Route, error) {
	query := `SELECT ` + routeColumns + ` FROM routes WHERE id = $1`

	route, err := scanRoute(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	return route, nil
}

// GetByDriverAndID retrieves a route by ID only if it belongs to driverID.
func (r *PostgresRepository) GetByDriverAndID(ctx context.Context, driverID string, id int64) (*Route, error) {
	query := `SELECT ` + routeColumns + ` FROM routes WHERE id = $1 AND driver_id = $2`

	route, err := scanRoute(r.pool.QueryRow(ctx, query, id, driverID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	return route, nil
}

// List retrieves routes newest first with keyset pagination on id.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := clampLimit(opts.Limit)

	query := `SELECT ` + routeColumns + `
		FROM routes
		WHERE ($1::text = '' OR driver_id = $1::text)
		  AND ($2::text = '' OR status = $2::text)
		  AND ($3::bigint = 0 OR id < $3::bigint)
		ORDER BY id DESC
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query, opts.DriverID, string(opts.Status), opts.Cursor, limit+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []*Route
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return page(routes, limit), nil
}

// Create inserts a route with its metrics in one statement.
func (r *PostgresRepository) Create(ctx context.Context, route *Route) error {
	breakdown, encoded, err := encodeMetrics(route.StateBreakdown, route.Polyline)
	if err != nil {
		return err
	}
	oLat, oLng := splitCoordinate(route.Origin)
	dLat, dLng := splitCoordinate(route.Destination)

	query := `
		INSERT INTO routes (
			name, origin_address, destination_address,
			origin_lat, origin_lng, destination_lat, destination_lng,
			origin_geocode, destination_geocode,
			legacy_distance_km, total_miles, estimated_duration_minutes,
			state_breakdown, polyline, calculated_at,
			status, driver_id, shipment_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id
	`

	return r.pool.QueryRow(ctx, query,
		route.Name,
		route.OriginAddress,
		route.DestinationAddress,
		oLat, oLng, dLat, dLng,
		string(route.OriginGeocode),
		string(route.DestinationGeocode),
		route.LegacyDistanceKm,
		route.TotalMiles,
		route.EstimatedDurationMinutes,
		breakdown,
		encoded,
		route.CalculatedAt,
		string(route.Status),
		route.DriverID,
		route.ShipmentID,
		route.CreatedAt,
		route.UpdatedAt,
	).Scan(&route.ID)
}

// Update writes the user-editable fields.
func (r *PostgresRepository) Update(ctx context.Context, route *Route) error {
	oLat, oLng := splitCoordinate(route.Origin)
	dLat, dLng := splitCoordinate(route.Destination)

	query := `
		UPDATE routes SET
			name = $2,
			origin_address = $3,
			destination_address = $4,
			origin_lat = $5,
			origin_lng = $6,
			destination_lat = $7,
			destination_lng = $8,
			origin_geocode = $9,
			destination_geocode = $10,
			status = $11,
			driver_id = $12,
			shipment_id = $13,
			updated_at = $14
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		route.ID,
		route.Name,
		route.OriginAddress,
		route.DestinationAddress,
		oLat, oLng, dLat, dLng,
		string(route.OriginGeocode),
		string(route.DestinationGeocode),
		string(route.Status),
		route.DriverID,
		route.ShipmentID,
		route.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRouteNotFound
	}
	return nil
}

// UpdateWithMetrics writes the user-editable and calculated fields in a single statement.
func (r *PostgresRepository) UpdateWithMetrics(ctx context.Context, route *Route, m Metrics) error {
	breakdown, encoded, err := encodeMetrics(m.Breakdown, m.Polyline)
	if err != nil {
		return err
	}
	oLat, oLng := splitCoordinate(route.Origin)
	dLat, dLng := splitCoordinate(route.Destination)

	query := `
		UPDATE routes SET
			name = $2,
			origin_address = $3,
			destination_address = $4,
			origin_lat = $5,
			origin_lng = $6,
			destination_lat = $7,
			destination_lng = $8,
			origin_geocode = $9,
			destination_geocode = $10,
			status = $11,
			driver_id = $12,
			shipment_id = $13,
			updated_at = $14,
			total_miles = $15,
			estimated_duration_minutes = $16,
			state_breakdown = $17,
			polyline = $18,
			calculated_at = $19,
			metrics_failed_at = NULL
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		route.ID,
		route.Name,
		route.OriginAddress,
		route.DestinationAddress,
		oLat, oLng, dLat, dLng,
		string(route.OriginGeocode),
		string(route.DestinationGeocode),
		string(route.Status),
		route.DriverID,
		route.ShipmentID,
		route.UpdatedAt,
		m.TotalMiles,
		m.DurationMinutes,
		breakdown,
		encoded,
		m.CalculatedAt,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRouteNotFound
	}
	return nil
}

// UpdateMetrics writes the calculated fields in a single statement.
func (r *PostgresRepository) UpdateMetrics(ctx context.Context, id int64, m Metrics) error {
	breakdown, encoded, err := encodeMetrics(m.Breakdown, m.Polyline)
	if err != nil {
		return err
	}

	query := `
		UPDATE routes SET
			total_miles = $2,
			estimated_duration_minutes = $3,
			state_breakdown = $4,
			polyline = $5,
			calculated_at = $6,
			updated_at = $6,
			metrics_failed_at = NULL
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, m.TotalMiles, m.DurationMinutes, breakdown, encoded, m.CalculatedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRouteNotFound
	}
	return nil
}

// Delete deletes a route by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM routes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRouteNotFound
	}
	return nil
}

// MarkMetricsFailed stamps the last failed calculation so ListMissingMetrics rotates past it.
func (r *PostgresRepository) MarkMetricsFailed(ctx context.Context, id int64, at time.Time) error {
	result, err := r.pool.Exec(ctx, `UPDATE routes SET metrics_failed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRouteNotFound
	}
	return nil
}

// DeleteByDriverAndID deletes a route by ID only if it belongs to driverID.
func (r *PostgresRepository) DeleteByDriverAndID(ctx context.Context, driverID string, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM routes WHERE id = $1 AND driver_id = $2`, id, driverID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRouteNotFound
	}
	return nil
}

// ListMissingMetrics returns routes that can be calculated but have no total miles. Routes
// that never failed come first, so a few permanently failing routes cannot fill every batch.
func (r *PostgresRepository) ListMissingMetrics(ctx context.Context, limit int) ([]*Route, error) {
	query := `SELECT ` + routeColumns + `
		FROM routes
		WHERE total_miles IS NULL
		  AND origin_lat IS NOT NULL AND destination_lat IS NOT NULL
		ORDER BY metrics_failed_at ASC NULLS FIRST, id ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []*Route
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

// scanRoute scans one row selected with routeColumns.
func scanRoute(row pgx.Row) (*Route, error) {
	var (
		route                     Route
		oLat, oLng, dLat, dLng    *float64
		originGeo, destinationGeo string
		status                    string
		breakdown                 []byte
		encoded                   *string
		calculatedAt              *time.Time
	)

	err := row.Scan(
		&route.ID,
		&route.Name,
		&route.OriginAddress,
		&route.DestinationAddress,
		&oLat, &oLng, &dLat, &dLng,
		&originGeo,
		&destinationGeo,
		&route.LegacyDistanceKm,
		&route.TotalMiles,
		&route.EstimatedDurationMinutes,
		&breakdown,
		&encoded,
		&calculatedAt,
		&status,
		&route.DriverID,
		&route.ShipmentID,
		&route.CreatedAt,
		&route.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	route.Origin = joinCoordinate(oLat, oLng)
	route.Destination = joinCoordinate(dLat, dLng)
	route.OriginGeocode = geocoding.Kind(originGeo)
	route.DestinationGeocode = geocoding.Kind(destinationGeo)
	route.Status = Status(status)
	route.CalculatedAt = calculatedAt

	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &route.StateBreakdown); err != nil {
			return nil, fmt.Errorf("decoding state_breakdown of route %d: %w", route.ID, err)
		}
	}
	if encoded != nil && *encoded != "" {
		pts, err := polyline.Decode(*encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding polyline of route %d: %w", route.ID, err)
		}
		route.Polyline = pts
	}

	return &route, nil
}

func encodeMetrics(breakdown []routing.JurisdictionMiles, pts []polyline.Point) ([]byte, *string, error) {
	var raw []byte
	if breakdown != nil {
		b, err := json.Marshal(breakdown)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding state_breakdown: %w", err)
		}
		raw = b
	}
	var encoded *string
	if len(pts) > 0 {
		s := polyline.Encode(pts)
		encoded = &s
	}
	return raw, encoded, nil
}

func splitCoordinate(c *routing.Coordinate) (*float64, *float64) {
	if c == nil {
		return nil, nil
	}
	lat, lng := c.Lat, c.Lng
	return &lat, &lng
}

func joinCoordinate(lat, lng *float64) *routing.Coordinate {
	if lat == nil || lng == nil {
		return nil
	}
	return &routing.Coordinate{Lat: *lat, Lng: *lng}
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
