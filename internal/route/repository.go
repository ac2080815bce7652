package route

import (
	"context"
	"time"
)

// ListOptions contains filters and pagination for listing routes.
type ListOptions struct {
	DriverID string
	Status   Status
	Limit    int
	// Cursor is the ID of the last route on the previous page (0 for the first page).
	Cursor int64
}

// ListResult contains the results of listing routes.
type ListResult struct {
	Items      []*Route
	NextCursor int64
}

// Repository defines the interface for route persistence.
type Repository interface {
	// Get retrieves a route by ID.
	Get(ctx context.Context, id int64) (*Route, error)

	// GetByDriverAndID retrieves a route by ID only if it belongs to driverID.
	GetByDriverAndID(ctx context.Context, driverID string, id int64) (*Route, error)

	// List retrieves routes newest first.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Create inserts a route including any metrics already set, assigning ID and timestamps.
	Create(ctx context.Context, route *Route) error

	// Update writes the user-editable fields of an existing route.
	Update(ctx context.Context, route *Route) error

	// UpdateWithMetrics writes the user-editable fields and the calculated fields together.
	// Either both are stored or neither is.
	UpdateWithMetrics(ctx context.Context, route *Route, metrics Metrics) error

	// UpdateMetrics writes only the calculated fields.
	UpdateMetrics(ctx context.Context, id int64, metrics Metrics) error

	// Delete deletes a route by ID.
	Delete(ctx context.Context, id int64) error

	// DeleteByDriverAndID deletes a route by ID only if it belongs to driverID.
	DeleteByDriverAndID(ctx context.Context, driverID string, id int64) error

	// ListMissingMetrics returns routes with coordinates but no total miles. Routes never
	// attempted come first, then those whose last failed attempt is oldest; ties go by ID.
	ListMissingMetrics(ctx context.Context, limit int) ([]*Route, error)

	// MarkMetricsFailed records a failed metrics calculation so the route moves to the back
	// of the backfill queue.
	MarkMetricsFailed(ctx context.Context, id int64, at time.Time) error
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)
