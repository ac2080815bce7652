package geocoding

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the geocoding service.
type ServiceConfig struct {
	// Provider is the address search backend.
	Provider Provider

	// Cache is consulted before the provider (optional).
	Cache Cache

	// CountrySet restricts searches (default: US).
	CountrySet string

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service geocodes addresses with a single provider attempt.
type Service struct {
	provider   Provider
	cache      Cache
	countrySet string
	logger     zerolog.Logger
}

// NewService creates a new geocoding service.
func NewService(cfg ServiceConfig) *Service {
	countrySet := cfg.CountrySet
	if countrySet == "" {
		countrySet = DefaultCountrySet
	}
	return &Service{
		provider:   cfg.Provider,
		cache:      cfg.Cache,
		countrySet: countrySet,
		logger:     cfg.Logger,
	}
}

// Geocode resolves address to a coordinate. It never fails: when the address is blank, the
// provider is not configured, errors or has no match, the fallback coordinate is returned
// tagged with the reason.
func (s *Service) Geocode(ctx context.Context, address string) Result {
	query := Normalize(address)
	if query == "" {
		return s.fallback(address, ReasonEmptyAddress, nil)
	}

	if s.cache != nil {
		if c, ok, err := s.cache.Get(ctx, query); err != nil {
			s.logger.Warn().Err(err).Str("address", query).Msg("geocode cache read failed")
		} else if ok {
			s.logger.Debug().Str("address", query).Msg("geocode cache hit")
			return Result{Kind: KindResolved, Coordinate: c}
		}
	}

	candidates, err := s.provider.Search(ctx, query, s.countrySet)
	switch {
	case errors.Is(err, ErrNotConfigured):
		return s.fallback(query, ReasonMissingAPIKey, nil)
	case err != nil:
		return s.fallback(query, ReasonProviderError, err)
	case len(candidates) == 0:
		return s.fallback(query, ReasonNoResults, nil)
	}

	res := resolved(candidates[0])

	if s.cache != nil {
		if err := s.cache.Set(ctx, query, res.Coordinate); err != nil {
			s.logger.Warn().Err(err).Str("address", query).Msg("geocode cache write failed")
		}
	}

	return res
}

func (s *Service) fallback(address string, reason Reason, err error) Result {
	s.logger.Warn().Err(err).
		Str("address", address).
		Str("reason", string(reason)).
		Float64("lat", FallbackCoordinate.Lat).
		Float64("lng", FallbackCoordinate.Lng).
		Msg("geocoding fell back to default coordinate")
	return fallback(reason)
}

// Normalize collapses whitespace so equivalent addresses share a cache key.
func Normalize(address string) string {
	return strings.Join(strings.Fields(address), " ")
}
