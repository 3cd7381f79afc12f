// Package revocation stores ids of refresh tokens that were logged out or
// rotated, so they cannot be replayed before they expire.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces denylist keys in a shared Redis.
const DefaultKeyPrefix = "finauth:revoked:"

const connectTimeout = 5 * time.Second

// Connect parses a redis:// URL and checks the connection.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisDenylist keeps revoked token ids as keys that expire together with the token.
type RedisDenylist struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisDenylist stores keys under prefix, DefaultKeyPrefix when empty.
func NewRedisDenylist(client *redis.Client, prefix string) *RedisDenylist {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisDenylist{client: client, prefix: prefix, now: time.Now}
}

// Revoke denylists jti until expiresAt. Already expired tokens are skipped.
func (d *RedisDenylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("token has no id")
	}

	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}

	if err := d.client.Set(ctx, d.prefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// Claim marks jti as used with SET NX and reports whether this call set it.
// Concurrent claims of one jti succeed exactly once. An already expired
// token cannot be claimed.
func (d *RedisDenylist) Claim(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	if jti == "" {
		return false, errors.New("token has no id")
	}

	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return false, nil
	}

	ok, err := d.client.SetNX(ctx, d.prefix+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim token: %w", err)
	}
	return ok, nil
}

// IsRevoked reports whether jti was denylisted.
func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}
	return n > 0, nil
}
