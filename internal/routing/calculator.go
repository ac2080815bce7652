package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/haulplan/haulplan/pkg/units"
)

const (
	travelModeTruck = "truck"
	routeTypeEco    = "eco"
)

// CalculatorConfig holds configuration for the route calculator.
type CalculatorConfig struct {
	// Provider is the truck routing backend.
	Provider Provider

	// Truck is the vehicle every route is calculated for.
	Truck TruckSpec

	// Logger for calculator operations.
	Logger zerolog.Logger

	// Now is used for CalculatedAt (tests). Defaults to time.Now.
	Now func() time.Time
}

// Calculator turns two coordinates into route metrics for the configured truck.
type Calculator struct {
	provider Provider
	truck    TruckSpec
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCalculator creates a calculator.
func NewCalculator(cfg CalculatorConfig) *Calculator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Calculator{
		provider: cfg.Provider,
		truck:    cfg.Truck,
		logger:   cfg.Logger,
		now:      now,
	}
}

// Truck returns the vehicle the calculator routes for.
func (c *Calculator) Truck() TruckSpec {
	return c.truck
}

// Calculate requests a truck route and derives total miles, duration, the jurisdiction
// breakdown and the path of the first route.
func (c *Calculator) Calculate(ctx context.Context, origin, destination Coordinate) (*Calculation, error) {
	if err := ValidateCoordinate(origin); err != nil {
		return nil, &Error{
			Provider: c.provider.Name(),
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if err := ValidateCoordinate(destination); err != nil {
		return nil, &Error{
			Provider: c.provider.Name(),
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}

	req := TruckRouteRequest{
		Origin:      origin,
		Destination: destination,
		Vehicle:     c.truck.Vehicle(),
		TravelMode:  travelModeTruck,
		RouteType:   routeTypeEco,
		Traffic:     true,
	}

	c.logger.Debug().
		Float64("origin_lat", origin.Lat).
		Float64("origin_lng", origin.Lng).
		Float64("dest_lat", destination.Lat).
		Float64("dest_lng", destination.Lng).
		Str("provider", c.provider.Name()).
		Msg("calculating truck route")

	resp, err := c.provider.CalculateTruckRoute(ctx, req)
	if err != nil {
		c.logger.Error().Err(err).
			Str("provider", c.provider.Name()).
			Msg("truck route calculation failed")
		return nil, err
	}

	if resp == nil || len(resp.Routes) == 0 {
		return nil, &Error{
			Provider: c.provider.Name(),
			Code:     "NO_ROUTE",
			Message:  "provider returned no routes",
			Err:      ErrNoRouteFound,
		}
	}

	first := &resp.Routes[0]
	totalMiles := units.MetersToMiles(float64(first.LengthMeters))

	calc := &Calculation{
		TotalMiles:      totalMiles,
		DurationMinutes: units.SecondsToMinutes(float64(first.TravelTimeSeconds)),
		Breakdown:       Breakdown(first.Sections, totalMiles),
		Points:          first.Points,
		Provider:        c.provider.Name(),
		CalculatedAt:    c.now().UTC(),
	}

	c.logger.Info().
		Float64("total_miles", calc.TotalMiles).
		Int("duration_minutes", calc.DurationMinutes).
		Int("jurisdictions", len(calc.Breakdown)).
		Msg("truck route calculated")

	return calc, nil
}

// Breakdown sums section lengths per jurisdiction in first-seen order, rounding to one
// decimal after every addition. Sections without a jurisdiction or with a non-positive length
// are skipped. When nothing is left the result is a single MultipleStates entry carrying
// totalMiles, so a successful calculation never has an empty breakdown.
func Breakdown(sections []Section, totalMiles float64) []JurisdictionMiles {
	out := make([]JurisdictionMiles, 0, len(sections))
	index := make(map[string]int, len(sections))

	for _, s := range sections {
		if s.Jurisdiction == "" || !(s.LengthMeters > 0) {
			continue
		}
		miles := units.MetersToMiles(s.LengthMeters)
		if i, ok := index[s.Jurisdiction]; ok {
			out[i].Miles = units.Round(out[i].Miles+miles, 1)
			continue
		}
		index[s.Jurisdiction] = len(out)
		out = append(out, JurisdictionMiles{Jurisdiction: s.Jurisdiction, Miles: miles})
	}

	if len(out) == 0 {
		return []JurisdictionMiles{{Jurisdiction: MultipleStates, Miles: totalMiles}}
	}
	return out
}

// ValidateCoordinate checks that c is finite and within WGS84 ranges.
func ValidateCoordinate(c Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return errors.New("coordinate is not finite")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Lng)
	}
	return nil
}
