package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/finauth/internal/client/storage"
)

// Клиент хранит ровно одну сессию под фиксированным ключом
var sessionKey = []byte("session")

var errNoAuthBucket = errors.New("auth bucket not found")

func authBucket(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	bucket := tx.Bucket(bucketAuth)
	if bucket == nil {
		return nil, errNoAuthBucket
	}
	return bucket, nil
}

// SaveAuth replaces the stored session.
func (s *Storage) SaveAuth(ctx context.Context, auth *storage.AuthData) error {
	if auth == nil {
		return fmt.Errorf("auth data is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(auth)
	if err != nil {
		return fmt.Errorf("failed to marshal auth data: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := authBucket(tx)
		if err != nil {
			return err
		}
		if err := bucket.Put(sessionKey, data); err != nil {
			return fmt.Errorf("failed to save auth data: %w", err)
		}
		return nil
	})
}

// GetAuth returns the stored session or storage.ErrAuthNotFound.
func (s *Storage) GetAuth(ctx context.Context) (*storage.AuthData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	auth := &storage.AuthData{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := authBucket(tx)
		if err != nil {
			return err
		}

		// Get возвращает слайс, валидный только внутри транзакции
		data := bucket.Get(sessionKey)
		if data == nil {
			return storage.ErrAuthNotFound
		}
		if err := json.Unmarshal(data, auth); err != nil {
			return fmt.Errorf("failed to unmarshal auth data: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return auth, nil
}

// DeleteAuth removes the stored session. Returns storage.ErrAuthNotFound if there is none.
func (s *Storage) DeleteAuth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := authBucket(tx)
		if err != nil {
			return err
		}
		if bucket.Get(sessionKey) == nil {
			return storage.ErrAuthNotFound
		}
		if err := bucket.Delete(sessionKey); err != nil {
			return fmt.Errorf("failed to delete auth data: %w", err)
		}
		return nil
	})
}

// IsAuthenticated reports whether a session with an unexpired access token exists.
func (s *Storage) IsAuthenticated(ctx context.Context) (bool, error) {
	auth, err := s.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return false, nil
		}
		return false, err
	}

	return !auth.Expired(s.now()), nil
}
