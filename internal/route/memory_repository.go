package route

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	routes map[int64]*Route
	nextID int64
	failed map[int64]time.Time

	// FailMetrics makes every metrics write fail with this error (tests).
	FailMetrics error
}

// NewInMemoryRepository creates a new in-memory route repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		routes: make(map[int64]*Route),
		nextID: 1,
		failed: make(map[int64]time.Time),
	}
}

// Get retrieves a route by ID.
func (r *InMemoryRepository) Get(_ context.Context, id int64) (*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[id]
	if !ok {
		return nil, ErrRouteNotFound
	}
	return clone(route), nil
}

// GetByDriverAndID retrieves a route by ID only if it belongs to driverID.
func (r *InMemoryRepository) GetByDriverAndID(_ context.Context, driverID string, id int64) (*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[id]
	if !ok || !ownedBy(route, driverID) {
		return nil, ErrRouteNotFound
	}
	return clone(route), nil
}

// List retrieves routes newest first.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var routes []*Route
	for _, route := range r.routes {
		if opts.DriverID != "" && !ownedBy(route, opts.DriverID) {
			continue
		}
		if opts.Status != "" && route.Status != opts.Status {
			continue
		}
		if opts.Cursor != 0 && route.ID >= opts.Cursor {
			continue
		}
		routes = append(routes, clone(route))
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID > routes[j].ID })

	return page(routes, clampLimit(opts.Limit)), nil
}

// Create stores a copy of route and assigns its ID.
func (r *InMemoryRepository) Create(_ context.Context, route *Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	route.ID = r.nextID
	r.nextID++
	r.routes[route.ID] = clone(route)
	return nil
}

// Update writes the user-editable fields.
func (r *InMemoryRepository) Update(_ context.Context, route *Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.routes[route.ID]
	if !ok {
		return ErrRouteNotFound
	}

	updated := clone(route)
	updated.LegacyDistanceKm = existing.LegacyDistanceKm
	updated.TotalMiles = existing.TotalMiles
	updated.EstimatedDurationMinutes = existing.EstimatedDurationMinutes
	updated.StateBreakdown = existing.StateBreakdown
	updated.Polyline = existing.Polyline
	updated.CalculatedAt = existing.CalculatedAt
	updated.CreatedAt = existing.CreatedAt
	r.routes[route.ID] = updated
	return nil
}

// UpdateWithMetrics writes the user-editable and calculated fields under one lock.
func (r *InMemoryRepository) UpdateWithMetrics(_ context.Context, route *Route, m Metrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailMetrics != nil {
		return r.FailMetrics
	}

	existing, ok := r.routes[route.ID]
	if !ok {
		return ErrRouteNotFound
	}

	updated := clone(route)
	updated.LegacyDistanceKm = existing.LegacyDistanceKm
	updated.CreatedAt = existing.CreatedAt
	updated.ApplyMetrics(m)
	r.routes[route.ID] = updated
	delete(r.failed, route.ID)
	return nil
}

// UpdateMetrics writes only the calculated fields.
func (r *InMemoryRepository) UpdateMetrics(_ context.Context, id int64, m Metrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailMetrics != nil {
		return r.FailMetrics
	}

	existing, ok := r.routes[id]
	if !ok {
		return ErrRouteNotFound
	}
	existing.ApplyMetrics(m)
	existing.UpdatedAt = m.CalculatedAt
	delete(r.failed, id)
	return nil
}

// MarkMetricsFailed records when the last calculation for id failed.
func (r *InMemoryRepository) MarkMetricsFailed(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[id]; !ok {
		return ErrRouteNotFound
	}
	r.failed[id] = at
	return nil
}

// Delete deletes a route by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[id]; !ok {
		return ErrRouteNotFound
	}
	delete(r.routes, id)
	delete(r.failed, id)
	return nil
}

// DeleteByDriverAndID deletes a route by ID only if it belongs to driverID.
func (r *InMemoryRepository) DeleteByDriverAndID(_ context.Context, driverID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	route, ok := r.routes[id]
	if !ok || !ownedBy(route, driverID) {
		return ErrRouteNotFound
	}
	delete(r.routes, id)
	delete(r.failed, id)
	return nil
}

// ListMissingMetrics returns calculable routes without total miles. Never-failed routes come
// first, then the least recently failed.
func (r *InMemoryRepository) ListMissingMetrics(_ context.Context, limit int) ([]*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var routes []*Route
	for _, route := range r.routes {
		if route.TotalMiles == nil && route.HasCoordinates() {
			routes = append(routes, clone(route))
		}
	}
	sort.Slice(routes, func(i, j int) bool {
		fi, iFailed := r.failed[routes[i].ID]
		fj, jFailed := r.failed[routes[j].ID]
		switch {
		case iFailed != jFailed:
			return !iFailed
		case iFailed && !fi.Equal(fj):
			return fi.Before(fj)
		default:
			return routes[i].ID < routes[j].ID
		}
	})

	if limit = clampLimit(limit); len(routes) > limit {
		routes = routes[:limit]
	}
	return routes, nil
}

// Len returns the number of stored routes.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

func clone(src *Route) *Route {
	cpy := *src
	if src.Origin != nil {
		o := *src.Origin
		cpy.Origin = &o
	}
	if src.Destination != nil {
		d := *src.Destination
		cpy.Destination = &d
	}
	if src.CalculatedAt != nil {
		at := *src.CalculatedAt
		cpy.CalculatedAt = &at
	}
	cpy.StateBreakdown = append(cpy.StateBreakdown[:0:0], src.StateBreakdown...)
	cpy.Polyline = append(cpy.Polyline[:0:0], src.Polyline...)
	return &cpy
}

func page(routes []*Route, limit int) *ListResult {
	result := &ListResult{Items: routes}
	if len(routes) > limit {
		result.Items = routes[:limit]
		result.NextCursor = routes[limit-1].ID
	}
	return result
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

var _ Repository = (*InMemoryRepository)(nil)

func ownedBy(route *Route, driverID string) bool {
	return route.DriverID != nil && *route.DriverID == driverID
}
