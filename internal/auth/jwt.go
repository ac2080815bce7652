// Package auth validates the bearer tokens that identify drivers. Tokens are issued by the
// fleet's identity service; this package only checks them.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens minted by IssueAccessToken.
const DefaultTokenTTL = 1 * time.Hour

// Predefined JWT errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingDriver      = errors.New("access token has no driver")
)

// Claims are the claims carried by a driver access token.
type Claims struct {
	jwt.RegisteredClaims

	// DriverID identifies the driver. Falls back to the subject when absent.
	DriverID string `json:"did,omitempty"`
}

// Driver returns the driver ID carried by the claims.
func (c *Claims) Driver() string {
	if c.DriverID != "" {
		return c.DriverID
	}
	return c.Subject
}

// Config holds configuration for the JWT service.
type Config struct {
	// SigningKey is the HS256 secret. Authentication is disabled when empty.
	SigningKey string

	// Issuer is the expected issuer claim (e.g., "https://id.haulplan.io").
	Issuer string

	// Audience is the expected audience claim (e.g., "haulplan-api").
	Audience string
}

// ConfigFromEnv reads JWT_SIGNING_KEY, JWT_ISSUER and JWT_AUDIENCE.
func ConfigFromEnv() Config {
	return Config{
		SigningKey: os.Getenv("JWT_SIGNING_KEY"),
		Issuer:     getEnvOrDefault("JWT_ISSUER", "https://id.haulplan.io"),
		Audience:   getEnvOrDefault("JWT_AUDIENCE", "haulplan-api"),
	}
}

// Enabled reports whether tokens are checked.
func (c Config) Enabled() bool {
	return c.SigningKey != ""
}

// JWTService validates driver access tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg Config) *JWTService {
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        time.Now,
	}
}

// ValidateAccessToken validates a token and returns its claims. Tokens without a driver are
// rejected.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.Driver() == "" {
		return nil, ErrMissingDriver
	}

	return claims, nil
}

// IssueAccessToken mints a token for driverID. It is used by tests and local tooling; production
// tokens come from the identity service.
func (s *JWTService) IssueAccessToken(driverID string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   driverID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		DriverID: driverID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
