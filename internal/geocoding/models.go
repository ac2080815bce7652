// Package geocoding resolves free-text addresses to coordinates, falling back to a fixed
// coordinate when the provider cannot answer.
package geocoding

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by a provider that has no usable API key.
var ErrNotConfigured = errors.New("geocoding provider not configured")

// DefaultCountrySet restricts searches to the United States.
const DefaultCountrySet = "US"

// FallbackCoordinate is returned whenever an address cannot be resolved (Miami, FL).
var FallbackCoordinate = Coordinate{Lat: 25.7617, Lng: -80.1918}

// Coordinate is a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Candidate is one search hit from the provider.
type Candidate struct {
	Coordinate Coordinate
	Address    string
	Score      float64
}

// Provider is a fuzzy address search backend.
type Provider interface {
	// Search returns at most a handful of candidates for query, best first.
	Search(ctx context.Context, query, countrySet string) ([]Candidate, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Kind tells whether a Result came from the provider or is the fallback coordinate.
type Kind string

const (
	KindResolved Kind = "resolved"
	KindFallback Kind = "fallback"
)

// Reason explains a fallback result.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonMissingAPIKey Reason = "missing_api_key"
	ReasonEmptyAddress  Reason = "empty_address"
	ReasonNoResults     Reason = "no_results"
	ReasonProviderError Reason = "provider_error"
)

// Result is the outcome of geocoding one address. It always carries a usable coordinate.
type Result struct {
	Kind       Kind       `json:"kind"`
	Coordinate Coordinate `json:"coordinate"`
	Reason     Reason     `json:"reason,omitempty"`
	// Address is the provider's formatted address for resolved results.
	Address string `json:"address,omitempty"`
}

// IsFallback reports whether the coordinate is the fallback location.
func (r Result) IsFallback() bool {
	return r.Kind == KindFallback
}

func resolved(c Candidate) Result {
	return Result{Kind: KindResolved, Coordinate: c.Coordinate, Address: c.Address}
}

func fallback(reason Reason) Result {
	return Result{Kind: KindFallback, Coordinate: FallbackCoordinate, Reason: reason}
}
