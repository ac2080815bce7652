// Package routing calculates truck routes and their per-jurisdiction mileage.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/haulplan/haulplan/pkg/polyline"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates the provider returned no route between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrNotConfigured indicates no API key is configured for the provider.
	ErrNotConfigured = errors.New("routing provider not configured")
)

// MultipleStates is the jurisdiction reported when the provider returns no per-region sections.
const MultipleStates = "Multiple States"

// Provider is a truck routing backend.
type Provider interface {
	// CalculateTruckRoute returns the routes between two points for the given vehicle.
	CalculateTruckRoute(ctx context.Context, req TruckRouteRequest) (*TruckRouteResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Coordinate is a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Vehicle holds the metric truck parameters sent to the provider.
type Vehicle struct {
	MaxSpeedKPH  int
	WeightKg     int
	AxleWeightKg int
	LengthM      float64
	WidthM       float64
	HeightM      float64
	Commercial   bool
	LoadTypes    []string
}

// TruckRouteRequest is a provider routing request.
type TruckRouteRequest struct {
	Origin      Coordinate
	Destination Coordinate
	Vehicle     Vehicle
	TravelMode  string
	RouteType   string
	Traffic     bool
}

// TruckRouteResponse is the provider's answer.
type TruckRouteResponse struct {
	Routes    []TruckRoute
	Provider  string
	FetchedAt time.Time
}

// TruckRoute is one route returned by the provider.
type TruckRoute struct {
	LengthMeters      int
	TravelTimeSeconds int
	// Points is the path of the first leg.
	Points   []polyline.Point
	Sections []Section
}

// Section is a stretch of route attributed to a jurisdiction (state or province).
// Jurisdiction is empty when the provider did not tag the section.
type Section struct {
	Jurisdiction string
	LengthMeters float64
}

// JurisdictionMiles is the distance driven within one jurisdiction.
type JurisdictionMiles struct {
	Jurisdiction string  `json:"jurisdiction"`
	Miles        float64 `json:"miles"`
}

// Calculation is the derived metrics of a calculated route.
type Calculation struct {
	TotalMiles      float64
	DurationMinutes int
	Breakdown       []JurisdictionMiles
	Points          []polyline.Point
	Provider        string
	CalculatedAt    time.Time
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried later.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
