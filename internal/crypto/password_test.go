package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt.MinCost keeps the tests fast; cost is embedded in the hash anyway.
func newTestHasher() *Hasher {
	return NewHasher(bcrypt.MinCost)
}

func TestHasher_HashAndVerify(t *testing.T) {
	h := newTestHasher()

	passwords := []string{"Str0ng!Pass", "An0ther#Secret", "Ünïcödé1!aB"}
	for _, p := range passwords {
		t.Run(p, func(t *testing.T) {
			first, err := h.Hash(p)
			require.NoError(t, err)
			second, err := h.Hash(p)
			require.NoError(t, err)

			assert.NotEqual(t, first, second, "salt must differ between hashes")
			assert.NotContains(t, first, p)
			assert.True(t, h.Verify(p, first))
			assert.True(t, h.Verify(p, second))
			assert.False(t, h.Verify(p+"x", first))
		})
	}
}

func TestHasher_Verify_Malformed(t *testing.T) {
	h := newTestHasher()

	tests := []struct {
		name     string
		password string
		hash     string
	}{
		{name: "empty hash", password: "Str0ng!Pass", hash: ""},
		{name: "garbage hash", password: "Str0ng!Pass", hash: "not-a-bcrypt-hash"},
		{name: "empty password", password: "", hash: "$2a$04$abcdefghijklmnopqrstuv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, h.Verify(tt.password, tt.hash))
		})
	}
}

func TestHasher_Hash_Empty(t *testing.T) {
	_, err := newTestHasher().Hash("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password cannot be empty")
}

func TestNewHasher_Cost(t *testing.T) {
	assert.Equal(t, DefaultCost, NewHasher(0).Cost())
	assert.Equal(t, DefaultCost, NewHasher(100).Cost())
	assert.Equal(t, 10, NewHasher(10).Cost())

	hash, err := NewHasher(5).Hash("Str0ng!Pass")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     []string
	}{
		{
			name:     "strong password",
			password: "Str0ng!Pass",
			want:     nil,
		},
		{
			name:     "empty",
			password: "",
			want:     []string{"cannot be empty"},
		},
		{
			name:     "short reports every rule",
			password: "short",
			want:     []string{"at least 8 characters", "uppercase", "digit", "special character"},
		},
		{
			name:     "missing lowercase",
			password: "STRONG1!PASS",
			want:     []string{"lowercase"},
		},
		{
			name:     "missing special",
			password: "Str0ngPass",
			want:     []string{"special character"},
		},
		{
			name:     "space is not special",
			password: "Str0ng Pass",
			want:     []string{"special character"},
		},
		{
			name:     "too long for bcrypt",
			password: "Aa1!" + strings.Repeat("x", 80),
			want:     []string{"must not exceed 72 bytes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidatePasswordStrength(tt.password)
			require.Len(t, got, len(tt.want))
			for i, fragment := range tt.want {
				assert.Contains(t, got[i], fragment)
			}
		})
	}
}

func TestCheckPasswordStrength(t *testing.T) {
	require.NoError(t, CheckPasswordStrength("Str0ng!Pass"))

	err := CheckPasswordStrength("weak")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWeakPassword))

	var strengthErr *StrengthError
	require.ErrorAs(t, err, &strengthErr)
	assert.Len(t, strengthErr.Reasons, 4)
	assert.Contains(t, err.Error(), "; ")
}

func TestGenerateAPIKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		key, err := GenerateAPIKey()
		require.NoError(t, err)
		assert.Len(t, key, APIKeyBytes*2)
		assert.Regexp(t, "^[0-9a-f]+$", key)
		assert.False(t, seen[key])
		seen[key] = true
	}
}
