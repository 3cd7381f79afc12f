package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// APIKeyBytes is the amount of randomness in an API key (256 bits).
const APIKeyBytes = 32

// GenerateAPIKey returns a hex-encoded random API key.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, APIKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
