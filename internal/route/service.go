package route

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/haulplan/haulplan/internal/api/models"
	"github.com/haulplan/haulplan/internal/geocoding"
	"github.com/haulplan/haulplan/internal/routing"
)

// Validation constants.
const (
	MaxNameLength    = 120
	MaxAddressLength = 300
	MaxRefLength     = 64
)

// ServiceConfig holds configuration for the route service.
type ServiceConfig struct {
	Repo   Repository
	Logger zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service provides validated route persistence.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new route service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: cfg.Repo, logger: cfg.Logger, now: now}
}

// CreateInput is what a driver submits to plan a route.
type CreateInput struct {
	Name               string
	OriginAddress      string
	DestinationAddress string
	DriverID           *string
	ShipmentID         *string
}

// Normalize trims surrounding whitespace from the text fields.
func (in *CreateInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.OriginAddress = strings.TrimSpace(in.OriginAddress)
	in.DestinationAddress = strings.TrimSpace(in.DestinationAddress)
	in.DriverID = emptyToNil(trimOptional(in.DriverID))
	in.ShipmentID = emptyToNil(trimOptional(in.ShipmentID))
}

// Validate returns a *ValidationError when a required field is blank or a field is too long.
func (in *CreateInput) Validate() error {
	var errs []models.FieldError
	errs = append(errs, validateText("name", in.Name, MaxNameLength)...)
	errs = append(errs, validateText("originAddress", in.OriginAddress, MaxAddressLength)...)
	errs = append(errs, validateText("destinationAddress", in.DestinationAddress, MaxAddressLength)...)
	errs = append(errs, validateRef("driverId", in.DriverID)...)
	errs = append(errs, validateRef("shipmentId", in.ShipmentID)...)
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Endpoint is a geocoded address.
type Endpoint struct {
	Address    string
	Coordinate routing.Coordinate
	Geocode    geocoding.Kind
}

// UpdateInput holds the user-editable fields; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string
	Origin      *Endpoint
	Destination *Endpoint
	Status      *Status
	DriverID    *string
	ShipmentID  *string
}

// Validate checks the fields that are set.
func (in *UpdateInput) Validate() error {
	var errs []models.FieldError
	if in.Name != nil {
		errs = append(errs, validateText("name", strings.TrimSpace(*in.Name), MaxNameLength)...)
	}
	if in.Origin != nil {
		errs = append(errs, validateText("originAddress", in.Origin.Address, MaxAddressLength)...)
	}
	if in.Destination != nil {
		errs = append(errs, validateText("destinationAddress", in.Destination.Address, MaxAddressLength)...)
	}
	if in.Status != nil && !in.Status.Valid() {
		errs = append(errs, models.FieldError{Field: "status", Message: "must be one of planned, active, completed", Code: "INVALID_ENUM"})
	}
	errs = append(errs, validateRef("driverId", in.DriverID)...)
	errs = append(errs, validateRef("shipmentId", in.ShipmentID)...)
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// GetForDriver retrieves a route owned by driverID. Routes of other drivers are reported as
// ErrRouteNotFound. An empty driverID reads any route.
func (s *Service) GetForDriver(ctx context.Context, driverID string, id int64) (*Route, error) {
	if driverID == "" {
		return s.repo.Get(ctx, id)
	}
	return s.repo.GetByDriverAndID(ctx, driverID, id)
}

// Get retrieves a route by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Route, error) {
	return s.repo.Get(ctx, id)
}

// List retrieves routes matching opts.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: "status", Message: "must be one of planned, active, completed", Code: "INVALID_ENUM"},
		}}
	}
	if opts.Limit < 0 || opts.Limit > maxListLimit {
		return nil, &ValidationError{Errors: []models.FieldError{
			{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxListLimit), Code: "OUT_OF_RANGE"},
		}}
	}
	return s.repo.List(ctx, opts)
}

// Create stores a new route. Both endpoints must be set; metrics, when present, are written
// in the same insert.
func (s *Service) Create(ctx context.Context, route *Route) error {
	if !route.HasCoordinates() {
		return &ValidationError{Errors: []models.FieldError{
			{Field: "origin", Message: "coordinates are required", Code: "REQUIRED"},
		}}
	}
	if route.Status == "" {
		route.Status = StatusPlanned
	}
	now := s.now().UTC()
	route.CreatedAt = now
	route.UpdatedAt = now

	if err := s.repo.Create(ctx, route); err != nil {
		return fmt.Errorf("creating route: %w", err)
	}

	s.logger.Info().
		Int64("route_id", route.ID).
		Bool("has_metrics", route.HasMetrics()).
		Msg("route created")
	return nil
}

// Update applies in to the route and returns the updated route.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*Route, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, current, in, nil)
}

// Apply writes in on top of current, which the caller has already loaded. When metrics is
// set it is stored in the same write as the edited fields; a failure then leaves the stored
// route untouched and is reported as ErrMetricsNotSaved.
func (s *Service) Apply(ctx context.Context, current *Route, in UpdateInput, metrics *Metrics) (*Route, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	route := clone(current)
	if in.Name != nil {
		route.Name = strings.TrimSpace(*in.Name)
	}
	if in.Origin != nil {
		c := in.Origin.Coordinate
		route.OriginAddress = in.Origin.Address
		route.Origin = &c
		route.OriginGeocode = in.Origin.Geocode
	}
	if in.Destination != nil {
		c := in.Destination.Coordinate
		route.DestinationAddress = in.Destination.Address
		route.Destination = &c
		route.DestinationGeocode = in.Destination.Geocode
	}
	if in.Status != nil {
		route.Status = *in.Status
	}
	if in.DriverID != nil {
		route.DriverID = emptyToNil(trimOptional(in.DriverID))
	}
	if in.ShipmentID != nil {
		route.ShipmentID = emptyToNil(trimOptional(in.ShipmentID))
	}
	route.UpdatedAt = s.now().UTC()

	if metrics == nil {
		if err := s.repo.Update(ctx, route); err != nil {
			return nil, err
		}
		return route, nil
	}

	if err := s.repo.UpdateWithMetrics(ctx, route, *metrics); err != nil {
		if errors.Is(err, ErrRouteNotFound) {
			return nil, err
		}
		s.logger.Error().Err(err).Int64("route_id", route.ID).Msg("failed to save route update with metrics")
		return nil, fmt.Errorf("%w: %w", ErrMetricsNotSaved, err)
	}
	route.ApplyMetrics(*metrics)
	return route, nil
}

// SaveMetrics writes calculated fields. Failures other than a missing route are reported as
// ErrMetricsNotSaved; the previous metrics stay in place.
func (s *Service) SaveMetrics(ctx context.Context, id int64, m Metrics) error {
	err := s.repo.UpdateMetrics(ctx, id, m)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRouteNotFound) {
		return err
	}
	s.logger.Error().Err(err).Int64("route_id", id).Msg("failed to save route metrics")
	return fmt.Errorf("%w: %w", ErrMetricsNotSaved, err)
}

// Delete deletes a route by ID.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// DeleteForDriver deletes a route owned by driverID. An empty driverID deletes any route.
func (s *Service) DeleteForDriver(ctx context.Context, driverID string, id int64) error {
	if driverID == "" {
		return s.repo.Delete(ctx, id)
	}
	return s.repo.DeleteByDriverAndID(ctx, driverID, id)
}

// MissingMetrics lists routes the backfill job should calculate.
func (s *Service) MissingMetrics(ctx context.Context, limit int) ([]*Route, error) {
	return s.repo.ListMissingMetrics(ctx, limit)
}

// MarkMetricsFailed moves a route that could not be calculated to the back of the backfill queue.
func (s *Service) MarkMetricsFailed(ctx context.Context, id int64) error {
	return s.repo.MarkMetricsFailed(ctx, id, s.now().UTC())
}

func validateText(field, value string, maxLen int) []models.FieldError {
	if strings.TrimSpace(value) == "" {
		return []models.FieldError{{Field: field, Message: "is required", Code: "REQUIRED"}}
	}
	if len(value) > maxLen {
		return []models.FieldError{{Field: field, Message: fmt.Sprintf("must be at most %d characters", maxLen), Code: "TOO_LONG"}}
	}
	return nil
}

func validateRef(field string, value *string) []models.FieldError {
	if value != nil && len(*value) > MaxRefLength {
		return []models.FieldError{{Field: field, Message: fmt.Sprintf("must be at most %d characters", MaxRefLength), Code: "TOO_LONG"}}
	}
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
