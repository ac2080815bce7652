package planner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulplan/haulplan/internal/geocoding"
	"github.com/haulplan/haulplan/internal/mapview"
	"github.com/haulplan/haulplan/internal/planner"
	"github.com/haulplan/haulplan/internal/route"
	"github.com/haulplan/haulplan/internal/routing"
	"github.com/haulplan/haulplan/pkg/polyline"
)

var fixedNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type fakeGeocoder struct {
	mu      sync.Mutex
	calls   []string
	results map[string]geocoding.Result
}

func (g *fakeGeocoder) Geocode(_ context.Context, address string) geocoding.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, address)
	if res, ok := g.results[address]; ok {
		return res
	}
	return geocoding.Result{Kind: geocoding.KindFallback, Coordinate: geocoding.FallbackCoordinate, Reason: geocoding.ReasonNoResults}
}

func (g *fakeGeocoder) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeCalculator struct {
	calls   atomic.Int32
	err     error
	miles   float64
	entered chan struct{}
	release chan struct{}
}

func (c *fakeCalculator) Calculate(_ context.Context, origin, destination routing.Coordinate) (*routing.Calculation, error) {
	c.calls.Add(1)
	if c.entered != nil {
		c.entered <- struct{}{}
		<-c.release
	}
	if c.err != nil {
		return nil, c.err
	}
	miles := c.miles
	if miles == 0 {
		miles = 659.9
	}
	return &routing.Calculation{
		TotalMiles:      miles,
		DurationMinutes: 601,
		Breakdown:       []routing.JurisdictionMiles{{Jurisdiction: routing.MultipleStates, Miles: miles}},
		Points: []polyline.Point{
			{Lng: origin.Lng, Lat: origin.Lat},
			{Lng: destination.Lng, Lat: destination.Lat},
		},
		Provider:     "fake",
		CalculatedAt: fixedNow,
	}, nil
}

type scenes struct{ ready bool }

func (s scenes) NewScene() *mapview.Scene { return mapview.NewScene(s.ready) }

type fixture struct {
	geocoder   *fakeGeocoder
	calculator *fakeCalculator
	repo       *route.InMemoryRepository
	planner    *planner.Planner
}

func newFixture(t *testing.T, mapReady bool) *fixture {
	t.Helper()
	f := &fixture{
		geocoder: &fakeGeocoder{results: map[string]geocoding.Result{
			"Miami, FL":    {Kind: geocoding.KindResolved, Coordinate: geocoding.Coordinate{Lat: 25.7617, Lng: -80.1918}},
			"Atlanta, GA":  {Kind: geocoding.KindResolved, Coordinate: geocoding.Coordinate{Lat: 33.749, Lng: -84.388}},
			"Savannah, GA": {Kind: geocoding.KindResolved, Coordinate: geocoding.Coordinate{Lat: 32.0809, Lng: -81.0912}},
		}},
		calculator: &fakeCalculator{},
		repo:       route.NewInMemoryRepository(),
	}
	f.planner = planner.New(planner.Config{
		Geocoder:   f.geocoder,
		Calculator: f.calculator,
		Routes: route.NewService(route.ServiceConfig{
			Repo:   f.repo,
			Logger: zerolog.Nop(),
			Now:    func() time.Time { return fixedNow },
		}),
		Renderer: mapview.NewRenderer(zerolog.Nop()),
		Scenes:   scenes{ready: mapReady},
		Logger:   zerolog.Nop(),
	})
	return f
}

func strPtr(s string) *string { return &s }

func validInput() route.CreateInput {
	return route.CreateInput{
		Name:               "Miami to Atlanta",
		OriginAddress:      "Miami, FL",
		DestinationAddress: "Atlanta, GA",
		DriverID:           strPtr("drv_1"),
	}
}

func TestPlanner_Create(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.False(t, res.Shared)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, f.geocoder.callCount())
	assert.Equal(t, int32(1), f.calculator.calls.Load())

	stored, err := f.planner.Get(context.Background(), planner.AnyDriver, res.Route.ID)
	require.NoError(t, err)
	assert.Equal(t, route.StatusPlanned, stored.Status)
	assert.Equal(t, 659.9, *stored.TotalMiles)
	assert.Equal(t, 601, *stored.EstimatedDurationMinutes)
	assert.Equal(t, geocoding.KindResolved, stored.OriginGeocode)
	assert.Equal(t, fixedNow, *stored.CalculatedAt)
	assert.Len(t, stored.Polyline, 2)
}

func TestPlanner_CreateEmptyNameMakesNoProviderCalls(t *testing.T) {
	f := newFixture(t, true)
	in := validInput()
	in.Name = "   "

	res, err := f.planner.Create(context.Background(), in)

	assert.Nil(t, res)
	var verr *route.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Errors[0].Field)
	assert.Zero(t, f.geocoder.callCount())
	assert.Zero(t, f.calculator.calls.Load())
	assert.Zero(t, f.repo.Len())
}

func TestPlanner_CreateWithFallbackWarns(t *testing.T) {
	f := newFixture(t, true)
	in := validInput()
	in.DestinationAddress = "Nowhere Junction"

	res, err := f.planner.Create(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "destinationAddress", res.Warnings[0].Field)
	assert.Equal(t, "geocode_no_results", res.Warnings[0].Code)
	assert.Equal(t, geocoding.KindFallback, res.Route.DestinationGeocode)
	assert.Equal(t, routing.Coordinate{Lat: 25.7617, Lng: -80.1918}, *res.Route.Destination)
}

func TestPlanner_CreateCalculationFailureStoresNothing(t *testing.T) {
	f := newFixture(t, true)
	f.calculator.err = &routing.Error{Provider: "fake", Code: "NO_ROUTE", Message: "none", Err: routing.ErrNoRouteFound}

	_, err := f.planner.Create(context.Background(), validInput())

	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
	assert.Zero(t, f.repo.Len())
}

func TestPlanner_CreateCollapsesDuplicateSubmissions(t *testing.T) {
	f := newFixture(t, true)
	f.calculator.entered = make(chan struct{}, 2)
	f.calculator.release = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]*planner.CreateResult, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = f.planner.Create(context.Background(), validInput())
	}()
	<-f.calculator.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		in := validInput()
		in.Name = "  Miami to Atlanta "
		results[1], errs[1] = f.planner.Create(context.Background(), in)
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.calculator.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), f.calculator.calls.Load())
	assert.Equal(t, 1, f.repo.Len())
	assert.Equal(t, results[0].Route.ID, results[1].Route.ID)
	assert.True(t, results[0].Shared || results[1].Shared)
}

func TestPlanner_ListDisplay(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.planner.Create(ctx, validInput())
	require.NoError(t, err)

	km := 1062.0
	legacy := &route.Route{
		Name: "Old run", OriginAddress: "A", DestinationAddress: "B",
		Origin: &routing.Coordinate{}, Destination: &routing.Coordinate{},
		LegacyDistanceKm: &km, Status: route.StatusCompleted,
	}
	require.NoError(t, f.repo.Create(ctx, legacy))

	bare := &route.Route{Name: "Draft", OriginAddress: "C", DestinationAddress: "D", Status: route.StatusPlanned}
	require.NoError(t, f.repo.Create(ctx, bare))

	page, err := f.planner.List(ctx, route.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	byName := map[string]planner.Display{}
	for _, item := range page.Items {
		byName[item.Route.Name] = item.Display
	}

	assert.Equal(t, planner.SourceCalculated, byName["Miami to Atlanta"].Source)
	assert.Equal(t, 659.9, *byName["Miami to Atlanta"].Miles)
	assert.Equal(t, planner.SourceLegacy, byName["Old run"].Source)
	assert.Equal(t, 659.9, *byName["Old run"].Miles)
	assert.Equal(t, planner.SourceNone, byName["Draft"].Source)
	assert.Nil(t, byName["Draft"].Miles)
}

func TestDisplayFor_PrefersCalculatedOverLegacy(t *testing.T) {
	miles, km := 10.0, 500.0
	d := planner.DisplayFor(&route.Route{TotalMiles: &miles, LegacyDistanceKm: &km})

	assert.Equal(t, planner.SourceCalculated, d.Source)
	assert.Equal(t, 10.0, *d.Miles)
}

func TestPlanner_MapViewIsReadOnly(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)
	before, err := f.planner.Get(context.Background(), planner.AnyDriver, res.Route.ID)
	require.NoError(t, err)

	scene, r, err := f.planner.MapView(context.Background(), planner.AnyDriver, res.Route.ID)
	require.NoError(t, err)

	assert.Equal(t, res.Route.ID, r.ID)
	assert.Len(t, scene.Markers(), 2)
	assert.Equal(t, int32(1), f.calculator.calls.Load())

	after, err := f.planner.Get(context.Background(), planner.AnyDriver, res.Route.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPlanner_MapViewErrors(t *testing.T) {
	f := newFixture(t, false)
	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, _, err = f.planner.MapView(context.Background(), planner.AnyDriver, res.Route.ID)
	assert.ErrorIs(t, err, mapview.ErrMapNotReady)

	bare := &route.Route{Name: "Draft", OriginAddress: "C", DestinationAddress: "D"}
	require.NoError(t, f.repo.Create(context.Background(), bare))
	_, _, err = f.planner.MapView(context.Background(), planner.AnyDriver, bare.ID)
	assert.ErrorIs(t, err, mapview.ErrMissingCoordinates)

	_, _, err = f.planner.MapView(context.Background(), planner.AnyDriver, 999)
	assert.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestPlanner_Recalculate(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)

	f.calculator.miles = 700.2
	r, err := f.planner.Recalculate(context.Background(), planner.AnyDriver, res.Route.ID)
	require.NoError(t, err)

	assert.Equal(t, 700.2, *r.TotalMiles)
	stored, err := f.planner.Get(context.Background(), planner.AnyDriver, res.Route.ID)
	require.NoError(t, err)
	assert.Equal(t, 700.2, *stored.TotalMiles)
}

func TestPlanner_RecalculateMetricsWriteFails(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)

	f.repo.FailMetrics = errors.New("disk full")
	f.calculator.miles = 700.2
	r, err := f.planner.Recalculate(context.Background(), planner.AnyDriver, res.Route.ID)

	assert.ErrorIs(t, err, route.ErrMetricsNotSaved)
	require.NotNil(t, r)
	assert.Equal(t, 659.9, *r.TotalMiles)
}

func TestPlanner_RecalculateWithoutCoordinates(t *testing.T) {
	f := newFixture(t, true)
	bare := &route.Route{Name: "Draft", OriginAddress: "C", DestinationAddress: "D"}
	require.NoError(t, f.repo.Create(context.Background(), bare))

	_, err := f.planner.Recalculate(context.Background(), planner.AnyDriver, bare.ID)

	assert.ErrorIs(t, err, planner.ErrMissingCoordinates)
	assert.Zero(t, f.calculator.calls.Load())
}

func TestPlanner_UpdateNameOnly(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)

	out, err := f.planner.Update(context.Background(), planner.AnyDriver, res.Route.ID, planner.UpdateInput{
		Name:          strPtr("Renamed"),
		OriginAddress: strPtr("Miami, FL"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", out.Route.Name)
	assert.Equal(t, 2, f.geocoder.callCount())
	assert.Equal(t, int32(1), f.calculator.calls.Load())
}

func TestPlanner_UpdateAddressRecalculates(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)

	f.calculator.miles = 488.5
	out, err := f.planner.Update(context.Background(), planner.AnyDriver, res.Route.ID, planner.UpdateInput{
		DestinationAddress: strPtr("Savannah, GA"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, f.geocoder.callCount())
	assert.Equal(t, int32(2), f.calculator.calls.Load())
	assert.Equal(t, "Savannah, GA", out.Route.DestinationAddress)
	assert.InDelta(t, 32.0809, out.Route.Destination.Lat, 1e-9)
	assert.Equal(t, 488.5, *out.Route.TotalMiles)
	assert.Empty(t, out.Warnings)

	stored, err := f.planner.Get(context.Background(), planner.AnyDriver, res.Route.ID)
	require.NoError(t, err)
	assert.Equal(t, 488.5, *stored.TotalMiles)
	assert.InDelta(t, 25.7617, stored.Origin.Lat, 1e-9)
}

func TestPlanner_UpdateCalculationFailureWritesNothing(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)

	f.calculator.err = &routing.Error{Message: "down", Err: routing.ErrProviderUnavailable}
	_, err = f.planner.Update(context.Background(), planner.AnyDriver, res.Route.ID, planner.UpdateInput{
		Name:               strPtr("Renamed"),
		DestinationAddress: strPtr("Savannah, GA"),
	})
	assert.ErrorIs(t, err, routing.ErrProviderUnavailable)

	stored, err := f.planner.Get(context.Background(), planner.AnyDriver, res.Route.ID)
	require.NoError(t, err)
	assert.Equal(t, "Miami to Atlanta", stored.Name)
	assert.Equal(t, "Atlanta, GA", stored.DestinationAddress)
}

func TestPlanner_UpdateMetricsWriteFailsWritesNothing(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, 659.9, *res.Route.TotalMiles)

	f.repo.FailMetrics = errors.New("connection reset")
	f.calculator.miles = 488.5
	out, err := f.planner.Update(context.Background(), planner.AnyDriver, res.Route.ID, planner.UpdateInput{
		DestinationAddress: strPtr("Savannah, GA"),
	})

	assert.ErrorIs(t, err, route.ErrMetricsNotSaved)
	assert.Nil(t, out)

	stored, err := f.planner.Get(context.Background(), planner.AnyDriver, res.Route.ID)
	require.NoError(t, err)
	assert.Equal(t, "Atlanta, GA", stored.DestinationAddress)
	assert.InDelta(t, 33.749, stored.Destination.Lat, 1e-9)
	assert.Equal(t, 659.9, *stored.TotalMiles)

	// The stored row is consistent, so it is not a backfill candidate.
	missing, err := f.repo.ListMissingMetrics(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestPlanner_OtherDriverSeesNotFound(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)
	ctx := context.Background()
	id := res.Route.ID

	_, err = f.planner.Get(ctx, "drv_2", id)
	assert.ErrorIs(t, err, route.ErrRouteNotFound)

	_, _, err = f.planner.MapView(ctx, "drv_2", id)
	assert.ErrorIs(t, err, route.ErrRouteNotFound)

	_, err = f.planner.Recalculate(ctx, "drv_2", id)
	assert.ErrorIs(t, err, route.ErrRouteNotFound)

	_, err = f.planner.Update(ctx, "drv_2", id, planner.UpdateInput{Name: strPtr("Taken")})
	assert.ErrorIs(t, err, route.ErrRouteNotFound)

	assert.ErrorIs(t, f.planner.Delete(ctx, "drv_2", id), route.ErrRouteNotFound)
	assert.Equal(t, int32(1), f.calculator.calls.Load())

	stored, err := f.planner.Get(ctx, "drv_1", id)
	require.NoError(t, err)
	assert.Equal(t, "Miami to Atlanta", stored.Name)
}

func TestPlanner_Delete(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.planner.Create(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, f.planner.Delete(context.Background(), planner.AnyDriver, res.Route.ID))
	assert.Zero(t, f.repo.Len())
}
