// Package store provides the string-keyed persistent store behind the
// ledgers. Values are opaque strings (JSON collections or raw image
// payloads); callers own serialization and must keep individual values small.
package store

import "context"

// Store is a minimal key-value contract. Get reports absence separately from
// failure so callers can treat a missing key as an empty collection.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
