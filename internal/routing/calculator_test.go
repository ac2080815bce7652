package routing_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulplan/haulplan/internal/routing"
	"github.com/haulplan/haulplan/pkg/polyline"
)

type fakeProvider struct {
	resp  *routing.TruckRouteResponse
	err   error
	calls int
	last  routing.TruckRouteRequest
}

func (f *fakeProvider) CalculateTruckRoute(_ context.Context, req routing.TruckRouteRequest) (*routing.TruckRouteResponse, error) {
	f.calls++
	f.last = req
	return f.resp, f.err
}

func (f *fakeProvider) Name() string { return "fake" }

var (
	miami   = routing.Coordinate{Lat: 25.7617, Lng: -80.1918}
	atlanta = routing.Coordinate{Lat: 33.7490, Lng: -84.3880}
)

func newCalculator(p routing.Provider) *routing.Calculator {
	return routing.NewCalculator(routing.CalculatorConfig{
		Provider: p,
		Truck:    routing.DefaultTruckSpec(),
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func TestCalculator_Calculate(t *testing.T) {
	provider := &fakeProvider{resp: &routing.TruckRouteResponse{
		Routes: []routing.TruckRoute{{
			LengthMeters:      1062000,
			TravelTimeSeconds: 36030,
			Points: []polyline.Point{
				{Lng: -80.1918, Lat: 25.7617},
				{Lng: -84.3880, Lat: 33.7490},
			},
			Sections: []routing.Section{
				{Jurisdiction: "Florida", LengthMeters: 750000},
				{Jurisdiction: "Georgia", LengthMeters: 312000},
			},
		}},
	}}

	calc, err := newCalculator(provider).Calculate(context.Background(), miami, atlanta)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls)
	assert.InDelta(t, 659.9, calc.TotalMiles, 0.001)
	assert.Equal(t, 601, calc.DurationMinutes)
	assert.Equal(t, []routing.JurisdictionMiles{
		{Jurisdiction: "Florida", Miles: 466.0},
		{Jurisdiction: "Georgia", Miles: 193.9},
	}, calc.Breakdown)
	assert.Len(t, calc.Points, 2)
	assert.Equal(t, "fake", calc.Provider)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), calc.CalculatedAt)
}

func TestCalculator_RequestUsesMetricTruck(t *testing.T) {
	provider := &fakeProvider{resp: &routing.TruckRouteResponse{
		Routes: []routing.TruckRoute{{LengthMeters: 1000, TravelTimeSeconds: 60}},
	}}

	_, err := newCalculator(provider).Calculate(context.Background(), miami, atlanta)
	require.NoError(t, err)

	req := provider.last
	assert.Equal(t, "truck", req.TravelMode)
	assert.Equal(t, "eco", req.RouteType)
	assert.True(t, req.Traffic)
	assert.Equal(t, 105, req.Vehicle.MaxSpeedKPH)
	assert.Equal(t, 36287, req.Vehicle.WeightKg)
	assert.Equal(t, 15422, req.Vehicle.AxleWeightKg)
	assert.InDelta(t, 19.8, req.Vehicle.LengthM, 0.0001)
	assert.InDelta(t, 2.6, req.Vehicle.WidthM, 0.0001)
	assert.InDelta(t, 4.1, req.Vehicle.HeightM, 0.0001)
	assert.True(t, req.Vehicle.Commercial)
}

func TestCalculator_NoRoutes(t *testing.T) {
	provider := &fakeProvider{resp: &routing.TruckRouteResponse{}}

	calc, err := newCalculator(provider).Calculate(context.Background(), miami, atlanta)

	assert.Nil(t, calc)
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
	var rerr *routing.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "NO_ROUTE", rerr.Code)
}

func TestCalculator_ProviderError(t *testing.T) {
	provider := &fakeProvider{err: &routing.Error{
		Provider: "fake",
		Code:     "SERVER_503",
		Message:  "routing provider is temporarily unavailable",
		Err:      routing.ErrProviderUnavailable,
	}}

	_, err := newCalculator(provider).Calculate(context.Background(), miami, atlanta)

	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)
}

func TestCalculator_InvalidCoordinatesSkipProvider(t *testing.T) {
	tests := []struct {
		name        string
		origin      routing.Coordinate
		destination routing.Coordinate
	}{
		{"latitude out of range", routing.Coordinate{Lat: 91, Lng: 0}, atlanta},
		{"longitude out of range", miami, routing.Coordinate{Lat: 0, Lng: -181}},
		{"NaN", routing.Coordinate{Lat: math.NaN(), Lng: 0}, atlanta},
		{"infinite", miami, routing.Coordinate{Lat: 0, Lng: math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{}
			_, err := newCalculator(provider).Calculate(context.Background(), tt.origin, tt.destination)

			assert.ErrorIs(t, err, routing.ErrInvalidCoordinates)
			assert.Zero(t, provider.calls)
		})
	}
}

func TestBreakdown(t *testing.T) {
	tests := []struct {
		name     string
		sections []routing.Section
		total    float64
		want     []routing.JurisdictionMiles
	}{
		{
			name:     "single 100 mile section",
			sections: []routing.Section{{Jurisdiction: "Texas", LengthMeters: 160934}},
			total:    100,
			want:     []routing.JurisdictionMiles{{Jurisdiction: "Texas", Miles: 100.0}},
		},
		{
			name: "repeated jurisdiction accumulates in first-seen order",
			sections: []routing.Section{
				{Jurisdiction: "Georgia", LengthMeters: 16093.4},
				{Jurisdiction: "Florida", LengthMeters: 8046.7},
				{Jurisdiction: "Georgia", LengthMeters: 16093.4},
			},
			total: 25,
			want: []routing.JurisdictionMiles{
				{Jurisdiction: "Georgia", Miles: 20.0},
				{Jurisdiction: "Florida", Miles: 5.0},
			},
		},
		{
			name: "untagged and empty sections are skipped",
			sections: []routing.Section{
				{Jurisdiction: "", LengthMeters: 5000},
				{Jurisdiction: "Alabama", LengthMeters: 0},
				{Jurisdiction: "Ohio", LengthMeters: 1609.34},
			},
			total: 4.1,
			want:  []routing.JurisdictionMiles{{Jurisdiction: "Ohio", Miles: 1.0}},
		},
		{
			name:     "no jurisdiction data",
			sections: nil,
			total:    412.7,
			want:     []routing.JurisdictionMiles{{Jurisdiction: routing.MultipleStates, Miles: 412.7}},
		},
		{
			name:     "only untagged sections",
			sections: []routing.Section{{LengthMeters: 1000}},
			total:    0.6,
			want:     []routing.JurisdictionMiles{{Jurisdiction: "Multiple States", Miles: 0.6}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, routing.Breakdown(tt.sections, tt.total))
		})
	}
}

func TestError(t *testing.T) {
	err := &routing.Error{Provider: "tomtom", Code: "RATE_LIMIT", Message: "quota", Err: routing.ErrRateLimitExceeded}

	assert.Equal(t, "quota: rate limit exceeded", err.Error())
	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, routing.ErrRateLimitExceeded)

	noRoute := &routing.Error{Message: "none", Err: routing.ErrNoRouteFound}
	assert.False(t, noRoute.IsRetryable())

	bare := &routing.Error{Message: "bare"}
	assert.Equal(t, "bare", bare.Error())
}
