package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/haulplan/haulplan/internal/api/middleware"
	"github.com/haulplan/haulplan/internal/api/models"
	"github.com/haulplan/haulplan/internal/api/response"
	"github.com/haulplan/haulplan/internal/mapview"
	"github.com/haulplan/haulplan/internal/planner"
	"github.com/haulplan/haulplan/internal/route"
	"github.com/haulplan/haulplan/internal/routing"
	"github.com/haulplan/haulplan/pkg/polyline"
)

// providerRetryAfter is the Retry-After sent when the routing provider rate limits us.
const providerRetryAfter = 60

// RoutePlanner is the planning workflow behind the route endpoints.
type RoutePlanner interface {
	Create(ctx context.Context, in route.CreateInput) (*planner.CreateResult, error)
	Get(ctx context.Context, driverID string, id int64) (*route.Route, error)
	List(ctx context.Context, opts route.ListOptions) (*planner.ListPage, error)
	MapView(ctx context.Context, driverID string, id int64) (*mapview.Scene, *route.Route, error)
	Recalculate(ctx context.Context, driverID string, id int64) (*route.Route, error)
	Update(ctx context.Context, driverID string, id int64, in planner.UpdateInput) (*planner.UpdateResult, error)
	Delete(ctx context.Context, driverID string, id int64) error
}

// RouteHandler handles route endpoints.
type RouteHandler struct {
	planner RoutePlanner
	logger  zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(p RoutePlanner, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{planner: p, logger: logger}
}

// CreateRoute handles POST /v1/routes. The route is geocoded and calculated before it is
// stored; geocode fallbacks come back as warnings.
func (h *RouteHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var input models.RouteCreateRequest
	if err := response.Decode(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	in := route.CreateInput{
		Name:               input.Name,
		OriginAddress:      input.OriginAddress,
		DestinationAddress: input.DestinationAddress,
		DriverID:           input.DriverID,
		ShipmentID:         input.ShipmentID,
	}
	if in.DriverID == nil {
		if driverID := GetDriverID(r.Context()); driverID != "" {
			in.DriverID = &driverID
		}
	}

	result, err := h.planner.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body := models.RouteResult{
		Route:    toRouteModel(result.Route),
		Warnings: toWarnings(result.Warnings),
	}
	if result.Shared {
		response.JSON(w, r, http.StatusOK, body)
		return
	}
	response.Created(w, r, fmt.Sprintf("/v1/routes/%d", result.Route.ID), body)
}

// ListRoutes handles GET /v1/routes?driverId=&status=&limit=&cursor=. An authenticated
// driver only ever lists their own routes; driverId is ignored for them.
func (h *RouteHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := route.ListOptions{
		DriverID: q.Get("driverId"),
		Status:   route.Status(q.Get("status")),
	}
	if driverID := GetDriverID(r.Context()); driverID != "" {
		opts.DriverID = driverID
	}

	var fieldErrors []models.FieldError
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "limit", Message: "must be an integer", Code: "INVALID_FORMAT"})
		}
		opts.Limit = limit
	}
	if v := q.Get("cursor"); v != "" {
		cursor, err := strconv.ParseInt(v, 10, 64)
		if err != nil || cursor < 0 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "cursor", Message: "must be a route id", Code: "INVALID_FORMAT"})
		}
		opts.Cursor = cursor
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return
	}

	page, err := h.planner.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := models.PagedRoutes{
		Items: make([]models.Route, 0, len(page.Items)),
		Meta:  models.PagedResponseMeta{Limit: len(page.Items)},
	}
	if opts.Limit > 0 {
		out.Meta.Limit = opts.Limit
	}
	for _, item := range page.Items {
		out.Items = append(out.Items, toRouteModel(item.Route))
	}
	if page.NextCursor > 0 {
		next := strconv.FormatInt(page.NextCursor, 10)
		out.Meta.NextCursor = &next
	}
	response.JSON(w, r, http.StatusOK, out)
}

// GetRoute handles GET /v1/routes/{id}.
func (h *RouteHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(r)
	if !ok {
		response.NotFound(w, r, "route not found")
		return
	}

	rt, err := h.planner.Get(r.Context(), GetDriverID(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toRouteModel(rt))
}

// UpdateRoute handles PATCH /v1/routes/{id}. Address changes are recalculated first and the
// new metrics are stored in the same write as the edit.
func (h *RouteHandler) UpdateRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(r)
	if !ok {
		response.NotFound(w, r, "route not found")
		return
	}

	var input models.RouteUpdateRequest
	if err := response.Decode(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	in := planner.UpdateInput{
		Name:               input.Name,
		OriginAddress:      input.OriginAddress,
		DestinationAddress: input.DestinationAddress,
		DriverID:           input.DriverID,
		ShipmentID:         input.ShipmentID,
	}
	if input.Status != nil {
		status := route.Status(*input.Status)
		in.Status = &status
	}

	result, err := h.planner.Update(r.Context(), GetDriverID(r.Context()), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.RouteResult{
		Route:    toRouteModel(result.Route),
		Warnings: toWarnings(result.Warnings),
	})
}

// DeleteRoute handles DELETE /v1/routes/{id}.
func (h *RouteHandler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(r)
	if !ok {
		response.NotFound(w, r, "route not found")
		return
	}

	if err := h.planner.Delete(r.Context(), GetDriverID(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// GetRouteMap handles GET /v1/routes/{id}/map. It only reads.
func (h *RouteHandler) GetRouteMap(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(r)
	if !ok {
		response.NotFound(w, r, "route not found")
		return
	}

	scene, rt, err := h.planner.MapView(r.Context(), GetDriverID(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.RouteMap{RouteID: rt.ID, Name: rt.Name, Map: scene})
}

// RecalculateRoute handles POST /v1/routes/{id}:recalculate.
func (h *RouteHandler) RecalculateRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(r)
	if !ok {
		response.NotFound(w, r, "route not found")
		return
	}

	rt, err := h.planner.Recalculate(r.Context(), GetDriverID(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toRouteModel(rt))
}

// writeError maps planning errors onto problem responses.
func (h *RouteHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *route.ValidationError
	var providerErr *routing.Error

	switch {
	case errors.As(err, &validationErr):
		response.BadRequest(w, r, "request validation failed", validationErr.Errors)
	case errors.Is(err, route.ErrRouteNotFound):
		response.NotFound(w, r, "route not found")
	case errors.Is(err, routing.ErrNoRouteFound):
		response.NoRoute(w, r, "no truck route found between origin and destination")
	case errors.Is(err, routing.ErrInvalidCoordinates):
		response.Unprocessable(w, r, "origin or destination coordinates were rejected by the routing provider")
	case errors.Is(err, planner.ErrMissingCoordinates), errors.Is(err, mapview.ErrMissingCoordinates):
		response.Unprocessable(w, r, "route has no stored coordinates")
	case errors.Is(err, mapview.ErrMapNotReady):
		response.MapNotReady(w, r)
	case errors.Is(err, routing.ErrRateLimitExceeded):
		response.TooManyRequests(w, r, "routing provider rate limit exceeded", providerRetryAfter)
	case errors.Is(err, routing.ErrNotConfigured):
		response.ServiceUnavailable(w, r, "routing provider is not configured")
	case errors.Is(err, routing.ErrProviderUnavailable), errors.As(err, &providerErr):
		h.logger.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("routing provider failure")
		response.ServiceUnavailable(w, r, "routing provider unavailable")
	case errors.Is(err, route.ErrMetricsNotSaved):
		h.logger.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("route metrics not saved")
		response.ServiceUnavailable(w, r, "route metrics could not be saved; the stored route is unchanged")
	default:
		h.logger.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("route request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func toRouteModel(r *route.Route) models.Route {
	display := planner.DisplayFor(r)
	out := models.Route{
		ID:                       r.ID,
		Name:                     r.Name,
		OriginAddress:            r.OriginAddress,
		DestinationAddress:       r.DestinationAddress,
		OriginGeocode:            string(r.OriginGeocode),
		DestinationGeocode:       string(r.DestinationGeocode),
		TotalMiles:               r.TotalMiles,
		EstimatedDurationMinutes: r.EstimatedDurationMinutes,
		CalculatedAt:             models.TimestampPtr(r.CalculatedAt),
		LegacyDistanceKm:         r.LegacyDistanceKm,
		Status:                   string(r.Status),
		DriverID:                 r.DriverID,
		ShipmentID:               r.ShipmentID,
		Display:                  models.RouteDisplay{Miles: display.Miles, MetricsSource: string(display.Source)},
		CreatedAt:                models.Timestamp(r.CreatedAt),
		UpdatedAt:                models.Timestamp(r.UpdatedAt),
	}
	if r.Origin != nil {
		out.Origin = &models.Coordinate{Lat: r.Origin.Lat, Lng: r.Origin.Lng}
	}
	if r.Destination != nil {
		out.Destination = &models.Coordinate{Lat: r.Destination.Lat, Lng: r.Destination.Lng}
	}
	for _, b := range r.StateBreakdown {
		out.StateBreakdown = append(out.StateBreakdown, models.JurisdictionMiles{Jurisdiction: b.Jurisdiction, Miles: b.Miles})
	}
	if len(r.Polyline) > 0 {
		encoded := polyline.Encode(r.Polyline)
		out.Polyline = &encoded
	}
	return out
}

func toWarnings(in []planner.Warning) []models.Warning {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Warning, 0, len(in))
	for _, w := range in {
		out = append(out, models.Warning{Field: w.Field, Code: w.Code, Message: w.Message})
	}
	return out
}
