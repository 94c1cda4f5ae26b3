// Package auth issues and verifies the bearer tokens navigation devices use
// to reach the API.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Device tokens are HS256 JWTs signed with the server key. A token names one
// device (a phone relay or a GPS feeder) and carries no refresh flow: an
// operator mints a new one with the gpsfeed tool when it expires.

const (
	// DefaultTokenExpiry covers a long day of navigation.
	DefaultTokenExpiry = 24 * time.Hour

	DefaultIssuer   = "wayfinder"
	DefaultAudience = "wayfinder-api"
)

// Token errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingDeviceID    = errors.New("device id is required")
)

// Claims are the claims carried by a device token.
type Claims struct {
	jwt.RegisteredClaims

	DeviceID string `json:"did"`
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the secret key used to sign tokens (required).
	SigningKey string

	// Issuer claim (default: "wayfinder").
	Issuer string

	// Audience claim (default: "wayfinder-api").
	Audience string

	// Expiry of issued tokens (default: 24h).
	Expiry time.Duration
}

// JWTService creates and validates device tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	expiry     time.Duration
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	audience := cfg.Audience
	if audience == "" {
		audience = DefaultAudience
	}
	expiry := cfg.Expiry
	if expiry == 0 {
		expiry = DefaultTokenExpiry
	}

	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     issuer,
		audience:   audience,
		expiry:     expiry,
		now:        time.Now,
	}
}

// GenerateAccessToken issues a token for deviceID.
func (s *JWTService) GenerateAccessToken(deviceID string) (string, time.Time, error) {
	if deviceID == "" {
		return "", time.Time{}, ErrMissingDeviceID
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   deviceID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		DeviceID: deviceID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken verifies tokenString and returns its device ID.
func (s *JWTService) ValidateAccessToken(tokenString string) (string, error) {
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
			return "", ErrAccessTokenExpired
		}
		return "", fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.DeviceID == "" {
		return "", ErrInvalidAccessToken
	}

	return claims.DeviceID, nil
}

func generateTokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
