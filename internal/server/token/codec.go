// Package token issues and validates the signed JWT access and refresh
// tokens handed to clients.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iudanet/finauth/internal/rbac"
)

const (
	// DefaultAccessTTL is the lifetime of access tokens.
	DefaultAccessTTL = 30 * time.Minute
	// DefaultRefreshTTL is the lifetime of refresh tokens.
	DefaultRefreshTTL = 7 * 24 * time.Hour
	// DefaultAlgorithm is the signing algorithm.
	DefaultAlgorithm = "HS256"

	// PlaceholderSecret is shipped as the configuration default and must be replaced.
	PlaceholderSecret = "your-secret-key-change-in-production"
	// MinSecretLen is the shortest secret not reported as insecure.
	MinSecretLen = 32
)

// Type distinguishes access tokens from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// ErrInvalidToken is returned for every decode failure. The cause is wrapped
// for logs but must not be shown to clients.
var ErrInvalidToken = errors.New("invalid token")

// Config holds the signing secret, algorithm and token lifetimes.
type Config struct {
	Secret     []byte
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims are the registered JWT claims plus email, role and token type.
type Claims struct {
	Email string    `json:"email,omitempty"`
	Role  rbac.Role `json:"role,omitempty"`
	Type  Type      `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	return id, nil
}

// Subject is what an access token is bound to.
type Subject struct {
	Email  string
	Role   rbac.Role
	UserID int64
}

// Pair is an access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token lifetime, seconds
}

// Codec signs and verifies tokens with a symmetric secret.
type Codec struct {
	method     jwt.SigningMethod
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCodec validates cfg and returns a Codec. Only HMAC algorithms are accepted.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("token secret cannot be empty")
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = DefaultAlgorithm
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q: only HS256, HS384 and HS512 are allowed", alg)
	}

	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}

	return &Codec{
		method:     method,
		secret:     cfg.Secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// IsInsecureSecret reports secrets that must not be used in production.
func IsInsecureSecret(secret string) bool {
	return secret == "" || secret == PlaceholderSecret || len(secret) < MinSecretLen
}

// AccessTTL returns the access token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// RefreshTTL returns the refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// IssueAccess issues an access token carrying the user's email and role.
func (c *Codec) IssueAccess(sub Subject, now time.Time) (string, error) {
	claims := Claims{
		Email:            sub.Email,
		Role:             sub.Role,
		Type:             TypeAccess,
		RegisteredClaims: c.registered(sub.UserID, now, c.accessTTL),
	}
	return c.sign(claims)
}

// IssueRefresh issues a refresh token that carries only the subject.
func (c *Codec) IssueRefresh(userID int64, now time.Time) (string, error) {
	claims := Claims{
		Type:             TypeRefresh,
		RegisteredClaims: c.registered(userID, now, c.refreshTTL),
	}
	return c.sign(claims)
}

// IssuePair issues a fresh access and refresh token for sub.
func (c *Codec) IssuePair(sub Subject, now time.Time) (*Pair, error) {
	access, err := c.IssueAccess(sub, now)
	if err != nil {
		return nil, err
	}

	refresh, err := c.IssueRefresh(sub.UserID, now)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(c.accessTTL.Seconds()),
	}, nil
}

// Decode verifies signature, algorithm and expiry at now.
// A token is expired once now >= exp.
func (c *Codec) Decode(tokenString string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Type != TypeAccess && claims.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, claims.Type)
	}

	if _, err := claims.UserID(); err != nil {
		return nil, err
	}

	return claims, nil
}

// DecodeAccess decodes a token and requires type=access.
func (c *Codec) DecodeAccess(tokenString string, now time.Time) (*Claims, error) {
	return c.decodeType(tokenString, now, TypeAccess)
}

// DecodeRefresh decodes a token and requires type=refresh.
func (c *Codec) DecodeRefresh(tokenString string, now time.Time) (*Claims, error) {
	return c.decodeType(tokenString, now, TypeRefresh)
}

func (c *Codec) decodeType(tokenString string, now time.Time, want Type) (*Claims, error) {
	claims, err := c.Decode(tokenString, now)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: expected %s token, got %s", ErrInvalidToken, want, claims.Type)
	}
	return claims, nil
}

func (c *Codec) registered(userID int64, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *Codec) sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(c.method, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
