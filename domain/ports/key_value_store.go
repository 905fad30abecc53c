package ports

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by KeyValueStore.Get for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStore is a labelled store a component may declare in key_value_stores.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// KeyValueResolver opens the store registered under a label.
type KeyValueResolver interface {
	Store(label string) (KeyValueStore, bool)
}
