package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/finauth/internal/rbac"
)

const testSecret = "test-secret-key-with-enough-length-123"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		Secret:     []byte(testSecret),
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
	})
	require.NoError(t, err)
	return c
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var alice = Subject{UserID: 42, Email: "a@x.com", Role: rbac.RoleViewer}

func TestNewCodec(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		errMsg  string
	}{
		{name: "defaults", cfg: Config{Secret: []byte(testSecret)}},
		{name: "hs512", cfg: Config{Secret: []byte(testSecret), Algorithm: "HS512"}},
		{name: "empty secret", cfg: Config{}, wantErr: true, errMsg: "secret cannot be empty"},
		{name: "rsa rejected", cfg: Config{Secret: []byte(testSecret), Algorithm: "RS256"}, wantErr: true, errMsg: "unsupported signing algorithm"},
		{name: "none rejected", cfg: Config{Secret: []byte(testSecret), Algorithm: "none"}, wantErr: true, errMsg: "unsupported signing algorithm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCodec(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultAccessTTL, c.AccessTTL())
			assert.Equal(t, DefaultRefreshTTL, c.RefreshTTL())
		})
	}
}

func TestIsInsecureSecret(t *testing.T) {
	assert.True(t, IsInsecureSecret(""))
	assert.True(t, IsInsecureSecret(PlaceholderSecret))
	assert.True(t, IsInsecureSecret("short"))
	assert.False(t, IsInsecureSecret(strings.Repeat("k", MinSecretLen)))
}

func TestCodec_IssueAccess_Decode(t *testing.T) {
	c := newTestCodec(t)

	tok, err := c.IssueAccess(alice, t0)
	require.NoError(t, err)

	claims, err := c.DecodeAccess(tok, t0.Add(time.Minute))
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, rbac.RoleViewer, claims.Role)
	assert.Equal(t, TypeAccess, claims.Type)
	assert.True(t, claims.IssuedAt.Time.Equal(t0))
	assert.True(t, claims.ExpiresAt.Time.Equal(t0.Add(DefaultAccessTTL)))
	assert.NotEmpty(t, claims.ID)
}

func TestCodec_AccessExpiry(t *testing.T) {
	c := newTestCodec(t)

	tok, err := c.IssueAccess(alice, t0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		at      time.Time
		wantErr bool
	}{
		{name: "at issue time", at: t0},
		{name: "one second before exp", at: t0.Add(DefaultAccessTTL - time.Second)},
		{name: "exactly at exp", at: t0.Add(DefaultAccessTTL), wantErr: true},
		{name: "after exp", at: t0.Add(DefaultAccessTTL + time.Second), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(tok, tt.at)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidToken)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCodec_RefreshRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	tok, err := c.IssueRefresh(42, t0)
	require.NoError(t, err)

	claims, err := c.DecodeRefresh(tok, t0.Add(DefaultRefreshTTL-time.Second))
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, claims.Type)
	assert.Equal(t, "42", claims.Subject)
	assert.Empty(t, claims.Email)
	assert.Empty(t, claims.Role)

	_, err = c.DecodeRefresh(tok, t0.Add(DefaultRefreshTTL+time.Second))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_TypeMismatch(t *testing.T) {
	c := newTestCodec(t)

	pair, err := c.IssuePair(alice, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultAccessTTL.Seconds()), pair.ExpiresIn)

	_, err = c.DecodeRefresh(pair.AccessToken, t0)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = c.DecodeAccess(pair.RefreshToken, t0)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_PairTokensAreUnique(t *testing.T) {
	c := newTestCodec(t)

	first, err := c.IssuePair(alice, t0)
	require.NoError(t, err)
	second, err := c.IssuePair(alice, t0)
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
}

func TestCodec_Decode_Rejects(t *testing.T) {
	c := newTestCodec(t)

	other, err := NewCodec(Config{Secret: []byte("another-secret-key-that-is-long-enough")})
	require.NoError(t, err)
	foreign, err := other.IssueAccess(alice, t0)
	require.NoError(t, err)

	valid, err := c.IssueAccess(alice, t0)
	require.NoError(t, err)
	parts := strings.Split(valid, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	hs512, err := NewCodec(Config{Secret: []byte(testSecret), Algorithm: "HS512"})
	require.NoError(t, err)
	wrongAlg, err := hs512.IssueAccess(alice, t0)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type:             TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.jwt"},
		{name: "foreign secret", token: foreign},
		{name: "tampered payload", token: tampered},
		{name: "different hmac algorithm", token: wrongAlg},
		{name: "alg none", token: unsigned},
		{name: "unknown type", token: badType},
		{name: "non numeric subject", token: badSubject},
		{name: "missing exp", token: noExp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := c.Decode(tt.token, t0)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}
