// Package store provides the durable key-addressed byte store that the
// repository layer is built on. Keys are ordered; prefix scans enumerate
// related entities without secondary indexes.
package store

import (
	"context"
	"errors"
)

// ErrExhausted is returned by Put when the store's configured capacity
// would be exceeded. It is fatal for the operation and never retried
// internally; retrying cannot change a resource-exhaustion condition.
var ErrExhausted = errors.New("store: capacity exhausted")

// EntityStore is the byte-oriented persistence boundary. Operations are
// atomic per key. Get reports absence via the bool, not an error.
type EntityStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	// ScanPrefix calls fn for every key with the given prefix in ascending
	// key order. A non-nil error from fn stops the scan and is returned.
	// fn must not mutate the store.
	ScanPrefix(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
}
