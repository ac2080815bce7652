// Package planner runs the route planning workflow: geocode both addresses, calculate the
// truck route, store it with its metrics, and build map scenes for stored routes.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/haulplan/haulplan/internal/geocoding"
	"github.com/haulplan/haulplan/internal/mapview"
	"github.com/haulplan/haulplan/internal/route"
	"github.com/haulplan/haulplan/internal/routing"
)

// ErrMissingCoordinates is returned when recalculating a route that has no stored endpoints.
var ErrMissingCoordinates = errors.New("route has no stored coordinates")

// Geocoder resolves an address. It always returns a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, address string) geocoding.Result
}

// Calculator computes route metrics between two coordinates.
type Calculator interface {
	Calculate(ctx context.Context, origin, destination routing.Coordinate) (*routing.Calculation, error)
}

// SceneFactory hands out map scenes carrying the current map readiness.
type SceneFactory interface {
	NewScene() *mapview.Scene
}

// Config holds the planner's collaborators.
type Config struct {
	Geocoder   Geocoder
	Calculator Calculator
	Routes     *route.Service
	Renderer   *mapview.Renderer
	Scenes     SceneFactory
	Logger     zerolog.Logger
}

// Planner orchestrates route creation, listing, recalculation and map views.
type Planner struct {
	geocoder   Geocoder
	calculator Calculator
	routes     *route.Service
	renderer   *mapview.Renderer
	scenes     SceneFactory
	logger     zerolog.Logger

	inflight singleflight.Group
}

// New creates a planner.
func New(cfg Config) *Planner {
	return &Planner{
		geocoder:   cfg.Geocoder,
		calculator: cfg.Calculator,
		routes:     cfg.Routes,
		renderer:   cfg.Renderer,
		scenes:     cfg.Scenes,
		logger:     cfg.Logger,
	}
}

// Warning describes a non-fatal problem with a created or updated route.
type Warning struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateResult is the outcome of Create.
type CreateResult struct {
	Route    *route.Route
	Warnings []Warning
	// Shared is true when the result came from an identical submission already in flight.
	Shared bool
}

// Create validates in, geocodes both addresses, calculates the route and inserts it with its
// metrics in one write. Validation failures return before any provider call. When the
// calculation fails nothing is stored. Identical submissions running at the same time share
// a single provider chain and a single record.
func (p *Planner) Create(ctx context.Context, in route.CreateInput) (*CreateResult, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	// The chain keeps running if the first caller goes away so that joined callers still get
	// their result.
	work := context.WithoutCancel(ctx)
	v, err, shared := p.inflight.Do(submissionKey(in), func() (interface{}, error) {
		return p.create(work, in)
	})
	if err != nil {
		return nil, err
	}

	res := *v.(*CreateResult)
	res.Shared = shared
	if shared {
		p.logger.Info().Int64("route_id", res.Route.ID).Msg("duplicate route submission joined in-flight request")
	}
	return &res, nil
}

func (p *Planner) create(ctx context.Context, in route.CreateInput) (*CreateResult, error) {
	origin := p.geocoder.Geocode(ctx, in.OriginAddress)
	destination := p.geocoder.Geocode(ctx, in.DestinationAddress)

	originCoord := routing.Coordinate(origin.Coordinate)
	destinationCoord := routing.Coordinate(destination.Coordinate)

	calc, err := p.calculator.Calculate(ctx, originCoord, destinationCoord)
	if err != nil {
		return nil, fmt.Errorf("calculating route: %w", err)
	}

	r := &route.Route{
		Name:               in.Name,
		OriginAddress:      in.OriginAddress,
		DestinationAddress: in.DestinationAddress,
		Origin:             &originCoord,
		Destination:        &destinationCoord,
		OriginGeocode:      origin.Kind,
		DestinationGeocode: destination.Kind,
		Status:             route.StatusPlanned,
		DriverID:           in.DriverID,
		ShipmentID:         in.ShipmentID,
	}
	r.ApplyMetrics(route.MetricsFromCalculation(calc))

	if err := p.routes.Create(ctx, r); err != nil {
		return nil, err
	}

	return &CreateResult{
		Route:    r,
		Warnings: append(geocodeWarnings("originAddress", origin), geocodeWarnings("destinationAddress", destination)...),
	}, nil
}

// AnyDriver scopes an operation to every route. Internal callers such as the backfill job
// use it; requests from an authenticated driver pass that driver's ID instead.
const AnyDriver = ""

// Get returns a stored route owned by driverID.
func (p *Planner) Get(ctx context.Context, driverID string, id int64) (*route.Route, error) {
	return p.routes.GetForDriver(ctx, driverID, id)
}

// ListItem is a route with its display distance.
type ListItem struct {
	Route   *route.Route
	Display Display
}

// ListPage is one page of routes.
type ListPage struct {
	Items      []ListItem
	NextCursor int64
}

// List returns routes with a display distance resolved for each.
func (p *Planner) List(ctx context.Context, opts route.ListOptions) (*ListPage, error) {
	result, err := p.routes.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	page := &ListPage{
		Items:      make([]ListItem, 0, len(result.Items)),
		NextCursor: result.NextCursor,
	}
	for _, r := range result.Items {
		page.Items = append(page.Items, ListItem{Route: r, Display: DisplayFor(r)})
	}
	return page, nil
}

// MapView renders a stored route into a new scene. It never writes.
func (p *Planner) MapView(ctx context.Context, driverID string, id int64) (*mapview.Scene, *route.Route, error) {
	r, err := p.routes.GetForDriver(ctx, driverID, id)
	if err != nil {
		return nil, nil, err
	}

	scene := p.scenes.NewScene()
	if err := p.renderer.Render(scene, r); err != nil {
		return nil, r, err
	}
	return scene, r, nil
}

// Recalculate recomputes a stored route from its coordinates and writes the new metrics.
// On ErrMetricsNotSaved the returned route still carries its previous metrics.
func (p *Planner) Recalculate(ctx context.Context, driverID string, id int64) (*route.Route, error) {
	r, err := p.routes.GetForDriver(ctx, driverID, id)
	if err != nil {
		return nil, err
	}
	if !r.HasCoordinates() {
		return r, ErrMissingCoordinates
	}

	calc, err := p.calculator.Calculate(ctx, *r.Origin, *r.Destination)
	if err != nil {
		return r, fmt.Errorf("calculating route: %w", err)
	}

	m := route.MetricsFromCalculation(calc)
	if err := p.routes.SaveMetrics(ctx, id, m); err != nil {
		return r, err
	}

	r.ApplyMetrics(m)
	r.UpdatedAt = m.CalculatedAt

	p.logger.Info().
		Int64("route_id", id).
		Float64("total_miles", m.TotalMiles).
		Msg("route recalculated")
	return r, nil
}

// UpdateInput is a partial edit of a route. Changed addresses are geocoded and the route is
// recalculated before anything is written.
type UpdateInput struct {
	Name               *string
	OriginAddress      *string
	DestinationAddress *string
	Status             *route.Status
	DriverID           *string
	ShipmentID         *string
}

// UpdateResult is the outcome of Update.
type UpdateResult struct {
	Route    *route.Route
	Warnings []Warning
}

// Update applies in to a route owned by driverID. When an address changes, the new endpoint
// is geocoded and the route is recalculated first; the edited fields and the new metrics are
// then written together, and if either step fails nothing is written.
func (p *Planner) Update(ctx context.Context, driverID string, id int64, in UpdateInput) (*UpdateResult, error) {
	change := route.UpdateInput{
		Name:       in.Name,
		Status:     in.Status,
		DriverID:   in.DriverID,
		ShipmentID: in.ShipmentID,
	}
	if in.OriginAddress != nil {
		change.Origin = &route.Endpoint{Address: strings.TrimSpace(*in.OriginAddress)}
	}
	if in.DestinationAddress != nil {
		change.Destination = &route.Endpoint{Address: strings.TrimSpace(*in.DestinationAddress)}
	}
	if err := change.Validate(); err != nil {
		return nil, err
	}

	current, err := p.routes.GetForDriver(ctx, driverID, id)
	if err != nil {
		return nil, err
	}

	var (
		warnings []Warning
		metrics  *route.Metrics
	)
	if endpointsChanged(current, change) {
		warnings = p.resolveEndpoints(ctx, current, &change)

		calc, err := p.calculator.Calculate(ctx, change.Origin.Coordinate, change.Destination.Coordinate)
		if err != nil {
			return nil, fmt.Errorf("calculating route: %w", err)
		}
		m := route.MetricsFromCalculation(calc)
		metrics = &m
	} else {
		change.Origin, change.Destination = nil, nil
	}

	updated, err := p.routes.Apply(ctx, current, change, metrics)
	if err != nil {
		return nil, err
	}

	return &UpdateResult{Route: updated, Warnings: warnings}, nil
}

// Delete removes a route owned by driverID.
func (p *Planner) Delete(ctx context.Context, driverID string, id int64) error {
	return p.routes.DeleteForDriver(ctx, driverID, id)
}

// endpointsChanged reports whether change moves an endpoint or the stored route lacks one.
func endpointsChanged(current *route.Route, change route.UpdateInput) bool {
	if change.Origin != nil && change.Origin.Address != current.OriginAddress {
		return true
	}
	if change.Destination != nil && change.Destination.Address != current.DestinationAddress {
		return true
	}
	return (change.Origin != nil || change.Destination != nil) && !current.HasCoordinates()
}

// resolveEndpoints fills both endpoints of change. Addresses that differ from the stored ones
// (or have no stored coordinate) are geocoded; the rest keep their stored coordinate.
func (p *Planner) resolveEndpoints(ctx context.Context, current *route.Route, change *route.UpdateInput) []Warning {
	var warnings []Warning

	resolve := func(field string, ep *route.Endpoint, storedAddress string, stored *routing.Coordinate, kind geocoding.Kind) *route.Endpoint {
		address := storedAddress
		if ep != nil {
			address = ep.Address
		}
		if stored != nil && address == storedAddress {
			return &route.Endpoint{Address: address, Coordinate: *stored, Geocode: kind}
		}
		res := p.geocoder.Geocode(ctx, address)
		warnings = append(warnings, geocodeWarnings(field, res)...)
		return &route.Endpoint{Address: address, Coordinate: routing.Coordinate(res.Coordinate), Geocode: res.Kind}
	}

	change.Origin = resolve("originAddress", change.Origin, current.OriginAddress, current.Origin, current.OriginGeocode)
	change.Destination = resolve("destinationAddress", change.Destination, current.DestinationAddress, current.Destination, current.DestinationGeocode)
	return warnings
}

func geocodeWarnings(field string, res geocoding.Result) []Warning {
	if !res.IsFallback() {
		return nil
	}
	return []Warning{{
		Field:   field,
		Code:    "geocode_" + string(res.Reason),
		Message: "address could not be located; a default location was used",
	}}
}

// submissionKey identifies duplicate submissions: same driver, name and addresses.
func submissionKey(in route.CreateInput) string {
	driver := ""
	if in.DriverID != nil {
		driver = *in.DriverID
	}
	return strings.Join([]string{
		driver,
		strings.ToLower(in.Name),
		strings.ToLower(geocoding.Normalize(in.OriginAddress)),
		strings.ToLower(geocoding.Normalize(in.DestinationAddress)),
	}, "\x1f")
}
