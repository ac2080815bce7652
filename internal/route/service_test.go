package route_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulplan/haulplan/internal/geocoding"
	"github.com/haulplan/haulplan/internal/route"
	"github.com/haulplan/haulplan/internal/routing"
	"github.com/haulplan/haulplan/pkg/polyline"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func newService(repo route.Repository) *route.Service {
	return route.NewService(route.ServiceConfig{
		Repo:   repo,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return fixedNow },
	})
}

func strPtr(s string) *string { return &s }

func sampleRoute() *route.Route {
	return &route.Route{
		Name:               "Miami to Atlanta",
		OriginAddress:      "Miami, FL",
		DestinationAddress: "Atlanta, GA",
		Origin:             &routing.Coordinate{Lat: 25.7617, Lng: -80.1918},
		Destination:        &routing.Coordinate{Lat: 33.749, Lng: -84.388},
		OriginGeocode:      geocoding.KindResolved,
		DestinationGeocode: geocoding.KindResolved,
		DriverID:           strPtr("drv_1"),
	}
}

func sampleMetrics() route.Metrics {
	return route.Metrics{
		TotalMiles:      659.9,
		DurationMinutes: 601,
		Breakdown: []routing.JurisdictionMiles{
			{Jurisdiction: "Florida", Miles: 466.0},
			{Jurisdiction: "Georgia", Miles: 193.9},
		},
		Polyline:     []polyline.Point{{Lng: -80.1918, Lat: 25.7617}, {Lng: -84.388, Lat: 33.749}},
		CalculatedAt: fixedNow,
	}
}

func TestCreateInput_Validate(t *testing.T) {
	in := route.CreateInput{Name: "  ", OriginAddress: "Miami, FL", DestinationAddress: ""}
	in.Normalize()

	err := in.Validate()

	var verr *route.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 2)
	assert.Equal(t, "name", verr.Errors[0].Field)
	assert.Equal(t, "REQUIRED", verr.Errors[0].Code)
	assert.Equal(t, "destinationAddress", verr.Errors[1].Field)
}

func TestCreateInput_ValidateLengths(t *testing.T) {
	in := route.CreateInput{
		Name:               strings.Repeat("n", route.MaxNameLength+1),
		OriginAddress:      "a",
		DestinationAddress: "b",
		ShipmentID:         strPtr(strings.Repeat("s", route.MaxRefLength+1)),
	}

	var verr *route.ValidationError
	require.True(t, errors.As(in.Validate(), &verr))
	require.Len(t, verr.Errors, 2)
	assert.Equal(t, "TOO_LONG", verr.Errors[0].Code)
	assert.Equal(t, "shipmentId", verr.Errors[1].Field)
}

func TestCreateInput_NormalizeDropsBlankRefs(t *testing.T) {
	in := route.CreateInput{Name: " Run ", DriverID: strPtr("  "), ShipmentID: strPtr(" shp_9 ")}
	in.Normalize()

	assert.Equal(t, "Run", in.Name)
	assert.Nil(t, in.DriverID)
	require.NotNil(t, in.ShipmentID)
	assert.Equal(t, "shp_9", *in.ShipmentID)
}

func TestService_CreateWithMetrics(t *testing.T) {
	repo := route.NewInMemoryRepository()
	svc := newService(repo)

	r := sampleRoute()
	r.ApplyMetrics(sampleMetrics())
	require.NoError(t, svc.Create(context.Background(), r))

	assert.Equal(t, int64(1), r.ID)
	assert.Equal(t, route.StatusPlanned, r.Status)
	assert.Equal(t, fixedNow, r.CreatedAt)

	stored, err := svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TotalMiles)
	assert.Equal(t, 659.9, *stored.TotalMiles)
	assert.Equal(t, 601, *stored.EstimatedDurationMinutes)
	assert.Len(t, stored.StateBreakdown, 2)
	assert.Len(t, stored.Polyline, 2)
}

func TestService_CreateRequiresCoordinates(t *testing.T) {
	repo := route.NewInMemoryRepository()
	r := sampleRoute()
	r.Origin = nil

	err := newService(repo).Create(context.Background(), r)

	var verr *route.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Zero(t, repo.Len())
}

func TestService_Update(t *testing.T) {
	repo := route.NewInMemoryRepository()
	svc := newService(repo)
	r := sampleRoute()
	r.ApplyMetrics(sampleMetrics())
	require.NoError(t, svc.Create(context.Background(), r))

	active := route.StatusActive
	updated, err := svc.Update(context.Background(), r.ID, route.UpdateInput{
		Name:       strPtr("  Miami run  "),
		Status:     &active,
		DriverID:   strPtr(""),
		ShipmentID: strPtr("shp_42"),
		Destination: &route.Endpoint{
			Address:    "Savannah, GA",
			Coordinate: routing.Coordinate{Lat: 32.0809, Lng: -81.0912},
			Geocode:    geocoding.KindResolved,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Miami run", updated.Name)
	assert.Equal(t, route.StatusActive, updated.Status)
	assert.Nil(t, updated.DriverID)
	assert.Equal(t, "shp_42", *updated.ShipmentID)
	assert.Equal(t, "Savannah, GA", updated.DestinationAddress)
	assert.InDelta(t, 32.0809, updated.Destination.Lat, 1e-9)

	stored, err := svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, 659.9, *stored.TotalMiles, "user edits keep stored metrics")
}

func TestService_UpdateValidation(t *testing.T) {
	repo := route.NewInMemoryRepository()
	svc := newService(repo)

	bogus := route.Status("archived")
	_, err := svc.Update(context.Background(), 1, route.UpdateInput{Name: strPtr(""), Status: &bogus})

	var verr *route.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors, 2)
}

func TestService_UpdateNotFound(t *testing.T) {
	_, err := newService(route.NewInMemoryRepository()).Update(context.Background(), 99, route.UpdateInput{Name: strPtr("x")})
	assert.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestService_SaveMetrics(t *testing.T) {
	repo := route.NewInMemoryRepository()
	svc := newService(repo)
	r := sampleRoute()
	require.NoError(t, svc.Create(context.Background(), r))

	require.NoError(t, svc.SaveMetrics(context.Background(), r.ID, sampleMetrics()))

	stored, err := svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasMetrics())
	assert.Equal(t, fixedNow, *stored.CalculatedAt)
}

func TestService_SaveMetricsFailureKeepsPrevious(t *testing.T) {
	repo := route.NewInMemoryRepository()
	svc := newService(repo)
	r := sampleRoute()
	r.ApplyMetrics(sampleMetrics())
	require.NoError(t, svc.Create(context.Background(), r))

	repo.FailMetrics = errors.New("connection reset")
	m := sampleMetrics()
	m.TotalMiles = 1.0
	err := svc.SaveMetrics(context.Background(), r.ID, m)

	assert.ErrorIs(t, err, route.ErrMetricsNotSaved)
	stored, getErr := svc.Get(context.Background(), r.ID)
	require.NoError(t, getErr)
	assert.Equal(t, 659.9, *stored.TotalMiles)
}

func TestService_SaveMetricsMissingRoute(t *testing.T) {
	err := newService(route.NewInMemoryRepository()).SaveMetrics(context.Background(), 7, sampleMetrics())
	assert.ErrorIs(t, err, route.ErrRouteNotFound)
	assert.NotErrorIs(t, err, route.ErrMetricsNotSaved)
}

func TestService_ListFiltersAndPages(t *testing.T) {
	repo := route.NewInMemoryRepository()
	svc := newService(repo)
	for i := 0; i < 5; i++ {
		r := sampleRoute()
		if i%2 == 1 {
			r.DriverID = strPtr("drv_2")
		}
		require.NoError(t, svc.Create(context.Background(), r))
	}

	first, err := svc.List(context.Background(), route.ListOptions{DriverID: "drv_1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, int64(5), first.Items[0].ID)
	assert.Equal(t, int64(3), first.Items[1].ID)
	assert.Equal(t, int64(3), first.NextCursor)

	second, err := svc.List(context.Background(), route.ListOptions{DriverID: "drv_1", Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, int64(1), second.Items[0].ID)
	assert.Zero(t, second.NextCursor)
}

func TestService_ListValidation(t *testing.T) {
	svc := newService(route.NewInMemoryRepository())

	_, err := svc.List(context.Background(), route.ListOptions{Status: "lost"})
	var verr *route.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = svc.List(context.Background(), route.ListOptions{Limit: 500})
	assert.True(t, errors.As(err, &verr))
}

func TestService_Delete(t *testing.T) {
	svc := newService(route.NewInMemoryRepository())
	r := sampleRoute()
	require.NoError(t, svc.Create(context.Background(), r))

	require.NoError(t, svc.Delete(context.Background(), r.ID))
	assert.ErrorIs(t, svc.Delete(context.Background(), r.ID), route.ErrRouteNotFound)
	_, err := svc.Get(context.Background(), r.ID)
	assert.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestService_MissingMetrics(t *testing.T) {
	repo := route.NewInMemoryRepository()
	svc := newService(repo)

	calculated := sampleRoute()
	calculated.ApplyMetrics(sampleMetrics())
	require.NoError(t, svc.Create(context.Background(), calculated))

	pending := sampleRoute()
	require.NoError(t, svc.Create(context.Background(), pending))

	legacy := sampleRoute()
	km := 1062.0
	legacy.LegacyDistanceKm = &km
	require.NoError(t, svc.Create(context.Background(), legacy))

	routes, err := svc.MissingMetrics(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, pending.ID, routes[0].ID)
	assert.Equal(t, legacy.ID, routes[1].ID)
}

func TestService_MissingMetricsRotatesFailedRoutes(t *testing.T) {
	repo := route.NewInMemoryRepository()
	tick := fixedNow
	svc := route.NewService(route.ServiceConfig{
		Repo:   repo,
		Logger: zerolog.Nop(),
		Now: func() time.Time {
			tick = tick.Add(time.Minute)
			return tick
		},
	})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Create(ctx, sampleRoute()))
	}

	ids := func() []int64 {
		routes, err := svc.MissingMetrics(ctx, 2)
		require.NoError(t, err)
		out := make([]int64, 0, len(routes))
		for _, r := range routes {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Equal(t, []int64{1, 2}, ids())
	require.NoError(t, svc.MarkMetricsFailed(ctx, 1))
	require.NoError(t, svc.MarkMetricsFailed(ctx, 2))
	assert.Equal(t, []int64{3, 4}, ids())

	require.NoError(t, svc.MarkMetricsFailed(ctx, 3))
	require.NoError(t, svc.MarkMetricsFailed(ctx, 4))
	assert.Equal(t, []int64{5, 1}, ids())

	require.NoError(t, svc.SaveMetrics(ctx, 1, sampleMetrics()))
	require.NoError(t, svc.MarkMetricsFailed(ctx, 5))
	assert.Equal(t, []int64{2, 3}, ids())

	assert.ErrorIs(t, svc.MarkMetricsFailed(ctx, 99), route.ErrRouteNotFound)
}

func TestService_ApplyWithMetrics(t *testing.T) {
	repo := route.NewInMemoryRepository()
	svc := newService(repo)
	r := sampleRoute()
	r.ApplyMetrics(sampleMetrics())
	require.NoError(t, svc.Create(context.Background(), r))

	m := sampleMetrics()
	m.TotalMiles = 488.5
	dest := &route.Endpoint{
		Address:    "Savannah, GA",
		Coordinate: routing.Coordinate{Lat: 32.0809, Lng: -81.0912},
		Geocode:    geocoding.KindResolved,
	}
	updated, err := svc.Apply(context.Background(), r, route.UpdateInput{Destination: dest}, &m)
	require.NoError(t, err)
	assert.Equal(t, 488.5, *updated.TotalMiles)

	stored, err := svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Savannah, GA", stored.DestinationAddress)
	assert.Equal(t, 488.5, *stored.TotalMiles)
	assert.Equal(t, "Atlanta, GA", r.DestinationAddress, "caller's route is not modified")
}

func TestService_ApplyWithMetricsFailureWritesNothing(t *testing.T) {
	repo := route.NewInMemoryRepository()
	svc := newService(repo)
	r := sampleRoute()
	r.ApplyMetrics(sampleMetrics())
	require.NoError(t, svc.Create(context.Background(), r))

	repo.FailMetrics = errors.New("connection reset")
	m := sampleMetrics()
	m.TotalMiles = 488.5
	dest := &route.Endpoint{
		Address:    "Savannah, GA",
		Coordinate: routing.Coordinate{Lat: 32.0809, Lng: -81.0912},
		Geocode:    geocoding.KindResolved,
	}
	updated, err := svc.Apply(context.Background(), r, route.UpdateInput{Destination: dest}, &m)

	assert.Nil(t, updated)
	assert.ErrorIs(t, err, route.ErrMetricsNotSaved)
	stored, getErr := svc.Get(context.Background(), r.ID)
	require.NoError(t, getErr)
	assert.Equal(t, "Atlanta, GA", stored.DestinationAddress)
	assert.Equal(t, 33.749, stored.Destination.Lat)
	assert.Equal(t, 659.9, *stored.TotalMiles)
}

func TestService_DriverScopedAccess(t *testing.T) {
	svc := newService(route.NewInMemoryRepository())
	ctx := context.Background()
	r := sampleRoute()
	require.NoError(t, svc.Create(ctx, r))

	got, err := svc.GetForDriver(ctx, "drv_1", r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = svc.GetForDriver(ctx, "drv_2", r.ID)
	assert.ErrorIs(t, err, route.ErrRouteNotFound)

	_, err = svc.GetForDriver(ctx, "", r.ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteForDriver(ctx, "drv_2", r.ID), route.ErrRouteNotFound)
	require.NoError(t, svc.DeleteForDriver(ctx, "drv_1", r.ID))
	_, err = svc.Get(ctx, r.ID)
	assert.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range route.Statuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, route.Status("").Valid())
	assert.False(t, route.Status("archived").Valid())
}
