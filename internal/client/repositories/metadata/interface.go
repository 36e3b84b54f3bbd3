// Package metadata is a small string-keyed value store backed by the local
// SQLite database. It survives process restarts and is the storage layer of
// the credential store.
package metadata

import (
	"context"
)

// Repository is a key/value store. Get returns (nil, nil) for absent keys.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}
