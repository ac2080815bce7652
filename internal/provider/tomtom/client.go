// Package tomtom is the TomTom Search and Routing client. It is the only transport for both
// geocoding and truck routing.
package tomtom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haulplan/haulplan/internal/geocoding"
	"github.com/haulplan/haulplan/internal/provider/resilience"
	"github.com/haulplan/haulplan/internal/routing"
	"github.com/haulplan/haulplan/internal/telemetry"
	"github.com/haulplan/haulplan/pkg/polyline"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "tomtom"

	// DefaultBaseURL is the TomTom API base URL.
	DefaultBaseURL = "https://api.tomtom.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// probeQuery is searched by Probe to check the key and reachability.
	probeQuery = "Miami, FL"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the TomTom client.
type ClientConfig struct {
	// APIKey is the TomTom API key. Placeholder values put the client in degraded mode.
	APIKey string

	// BaseURL is the API base URL (optional, defaults to api.tomtom.com).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a single-attempt resilient client.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Metrics records call counts and latency (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a TomTom API client.
type Client struct {
	apiKey     string
	configured bool
	baseURL    string
	httpClient HTTPDoer
	metrics    *telemetry.ProviderMetrics
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// NewClient creates a new TomTom client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		configured: !IsPlaceholderKey(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		tracer:     telemetry.Tracer("haulplan/provider/tomtom"),
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Configured reports whether a real API key is set.
func (c *Client) Configured() bool {
	return c.configured
}

// Search runs a fuzzy address search and returns at most one candidate.
func (c *Client) Search(ctx context.Context, query, countrySet string) (_ []geocoding.Candidate, err error) {
	if !c.configured {
		return nil, geocoding.ErrNotConfigured
	}

	ctx, done := c.observe(ctx, "search")
	defer func() { done(err) }()

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("limit", "1")
	if countrySet != "" {
		q.Set("countrySet", countrySet)
	}
	endpoint := fmt.Sprintf("%s/search/2/search/%s.json?%s", c.baseURL, url.PathEscape(query), q.Encode())

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("tomtom search: %w", c.handleErrorResponse(status, body))
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	candidates := make([]geocoding.Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		candidates = append(candidates, geocoding.Candidate{
			Coordinate: geocoding.Coordinate{Lat: r.Position.Lat, Lng: r.Position.Lon},
			Address:    r.Address.FreeformAddress,
			Score:      r.Score,
		})
	}

	c.logger.Debug().
		Str("query", query).
		Int("results", len(candidates)).
		Msg("received search results from TomTom")

	return candidates, nil
}

// CalculateTruckRoute requests a truck route with jurisdiction sections.
func (c *Client) CalculateTruckRoute(ctx context.Context, req routing.TruckRouteRequest) (_ *routing.TruckRouteResponse, err error) {
	if !c.configured {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NOT_CONFIGURED",
			Message:  "TomTom API key is not configured",
			Err:      routing.ErrNotConfigured,
		}
	}

	ctx, done := c.observe(ctx, "route")
	defer func() { done(err) }()

	locations := fmt.Sprintf("%s,%s:%s,%s",
		formatCoord(req.Origin.Lat), formatCoord(req.Origin.Lng),
		formatCoord(req.Destination.Lat), formatCoord(req.Destination.Lng))
	endpoint := fmt.Sprintf("%s/routing/1/calculateRoute/%s/json?%s", c.baseURL, locations, routeQuery(c.apiKey, req).Encode())

	c.logger.Debug().
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lng", req.Origin.Lng).
		Float64("dest_lat", req.Destination.Lat).
		Float64("dest_lng", req.Destination.Lng).
		Int("weight_kg", req.Vehicle.WeightKg).
		Msg("requesting truck route from TomTom")

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.handleErrorResponse(status, body)
	}

	var resp routeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding route response: %w", err)
	}

	return toTruckRouteResponse(&resp), nil
}

// Probe checks that the key is set and the search API answers.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Search(ctx, probeQuery, geocoding.DefaultCountrySet)
	return err
}

func routeQuery(apiKey string, req routing.TruckRouteRequest) url.Values {
	v := req.Vehicle
	q := url.Values{}
	q.Set("key", apiKey)
	q.Set("travelMode", req.TravelMode)
	q.Set("routeType", req.RouteType)
	q.Set("traffic", strconv.FormatBool(req.Traffic))
	q.Set("sectionType", "country")
	q.Set("vehicleMaxSpeed", strconv.Itoa(v.MaxSpeedKPH))
	q.Set("vehicleWeight", strconv.Itoa(v.WeightKg))
	q.Set("vehicleAxleWeight", strconv.Itoa(v.AxleWeightKg))
	q.Set("vehicleLength", strconv.FormatFloat(v.LengthM, 'f', -1, 64))
	q.Set("vehicleWidth", strconv.FormatFloat(v.WidthM, 'f', -1, 64))
	q.Set("vehicleHeight", strconv.FormatFloat(v.HeightM, 'f', -1, 64))
	q.Set("vehicleCommercial", strconv.FormatBool(v.Commercial))
	if len(v.LoadTypes) > 0 {
		q.Set("vehicleLoadType", strings.Join(v.LoadTypes, ","))
	}
	return q
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, 0, &routing.Error{
				Provider: ProviderName,
				Code:     "CIRCUIT_OPEN",
				Message:  "TomTom calls are suspended after repeated failures",
				Err:      routing.ErrProviderUnavailable,
			}
		}
		return nil, 0, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach TomTom",
			Err:      routing.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// handleErrorResponse maps TomTom error responses to routing errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var ttErr errorResponse
	_ = json.Unmarshal(body, &ttErr) //nolint:errcheck // body may not be JSON
	msg := ttErr.message()

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "API access denied - check TOMTOM_API_KEY",
			Err:      routing.ErrProviderUnavailable,
		}
	case ttErr.DetailedError.Code == detailedNoRouteFound || ttErr.DetailedError.Code == detailedMapMatching:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  msg,
			Err:      routing.ErrNoRouteFound,
		}
	case ttErr.DetailedError.Code == detailedComputeTimeout:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "COMPUTE_TIMEOUT",
			Message:  msg,
			Err:      routing.ErrProviderUnavailable,
		}
	case statusCode == http.StatusBadRequest || ttErr.DetailedError.Code == detailedBadInput:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  msg,
			Err:      routing.ErrInvalidCoordinates,
		}
	case statusCode >= 500:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "TomTom is temporarily unavailable",
			Err:      routing.ErrProviderUnavailable,
		}
	default:
		if msg == "" {
			msg = fmt.Sprintf("TomTom returned status %d", statusCode)
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  msg,
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

// observe starts a span and returns a func that ends it and records metrics.
func (c *Client) observe(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "tomtom."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider", ProviderName)),
	)
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.metrics.Record(ctx, ProviderName, operation, outcome, time.Since(start))
	}
}

// toTruckRouteResponse converts the TomTom response to the domain model.
func toTruckRouteResponse(resp *routeResponse) *routing.TruckRouteResponse {
	routes := make([]routing.TruckRoute, 0, len(resp.Routes))

	for i := range resp.Routes {
		item := &resp.Routes[i]
		route := routing.TruckRoute{
			LengthMeters:      item.Summary.LengthInMeters,
			TravelTimeSeconds: item.Summary.TravelTimeInSeconds,
		}

		if len(item.Legs) > 0 {
			pts := item.Legs[0].Points
			route.Points = make([]polyline.Point, 0, len(pts))
			for _, p := range pts {
				route.Points = append(route.Points, polyline.Point{Lng: p.Longitude, Lat: p.Latitude})
			}
		}

		for _, s := range item.Sections {
			route.Sections = append(route.Sections, routing.Section{
				Jurisdiction: s.CountrySubdivision,
				LengthMeters: s.LengthInMeters,
			})
		}

		routes = append(routes, route)
	}

	return &routing.TruckRouteResponse{
		Routes:    routes,
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

var (
	_ geocoding.Provider = (*Client)(nil)
	_ routing.Provider   = (*Client)(nil)
)
