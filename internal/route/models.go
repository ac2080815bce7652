// Package route stores planned truck routes and their calculated metrics.
package route

import (
	"errors"
	"time"

	"github.com/haulplan/haulplan/internal/geocoding"
	"github.com/haulplan/haulplan/internal/routing"
	"github.com/haulplan/haulplan/pkg/polyline"
)

// Repository errors.
var (
	ErrRouteNotFound = errors.New("route not found")
	// ErrMetricsNotSaved means calculated metrics could not be written. The stored route keeps
	// its previous values.
	ErrMetricsNotSaved = errors.New("route saved but metrics unavailable")
)

// Status is the lifecycle state of a route.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPlanned, StatusActive, StatusCompleted}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// Route is a planned trip between two addresses.
type Route struct {
	ID                 int64
	Name               string
	OriginAddress      string
	DestinationAddress string

	// Origin and Destination are nil only for rows imported before coordinates were stored.
	Origin      *routing.Coordinate
	Destination *routing.Coordinate

	OriginGeocode      geocoding.Kind
	DestinationGeocode geocoding.Kind

	// LegacyDistanceKm is the kilometer distance carried by historical records. It is never
	// written for new routes and never added to miles without conversion.
	LegacyDistanceKm *float64

	TotalMiles               *float64
	EstimatedDurationMinutes *int
	StateBreakdown           []routing.JurisdictionMiles
	Polyline                 []polyline.Point
	CalculatedAt             *time.Time

	Status     Status
	DriverID   *string
	ShipmentID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCoordinates reports whether both endpoints are known.
func (r *Route) HasCoordinates() bool {
	return r.Origin != nil && r.Destination != nil
}

// HasMetrics reports whether the route carries calculated metrics.
func (r *Route) HasMetrics() bool {
	return r.TotalMiles != nil
}

// ApplyMetrics copies calculated fields onto r.
func (r *Route) ApplyMetrics(m Metrics) {
	miles := m.TotalMiles
	minutes := m.DurationMinutes
	at := m.CalculatedAt
	r.TotalMiles = &miles
	r.EstimatedDurationMinutes = &minutes
	r.StateBreakdown = m.Breakdown
	r.Polyline = m.Polyline
	r.CalculatedAt = &at
}

// Metrics are the calculated fields of a route, written together.
type Metrics struct {
	TotalMiles      float64
	DurationMinutes int
	Breakdown       []routing.JurisdictionMiles
	Polyline        []polyline.Point
	CalculatedAt    time.Time
}

// MetricsFromCalculation converts a calculator result.
func MetricsFromCalculation(c *routing.Calculation) Metrics {
	return Metrics{
		TotalMiles:      c.TotalMiles,
		DurationMinutes: c.DurationMinutes,
		Breakdown:       c.Breakdown,
		Polyline:        c.Points,
		CalculatedAt:    c.CalculatedAt,
	}
}
