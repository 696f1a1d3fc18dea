package repository

import (
	"context"
	"time"
)

// StateStore holds short-lived markers, used to remember which webhook
// deliveries were already accepted.
// Implementations: Redis (multi-instance), in-memory (single instance), none.
type StateStore interface {
	// SetNX stores key only if it is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

type nopStateStore struct{}

// NewNopStateStore accepts every key, disabling de-duplication.
func NewNopStateStore() StateStore {
	return nopStateStore{}
}

func (nopStateStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}
