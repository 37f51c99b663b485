// Package cache provides the key/value store behind the conversion pipeline.
//
// Every expensive or non-deterministic stage of a conversion is cached by a
// key derived from the hash of its input and the options that influence it:
//
//   - generation passes (the model call is slow and billed per token)
//   - recovery of near-JSON generator output
//   - conversion of a relations mapping into an IMF document
//   - rendered previews
//
// Three backends are available: [FileCache] for the CLI (one JSON file per
// entry under the user cache directory), [RedisCache] for the server, and
// [NullCache] when caching is disabled. Keys are built by a [Keyer]; wrap it
// in a [ScopedKeyer] to give a deployment its own namespace.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
//
// Get reports a miss with (nil, false, nil). Errors are reserved for backend
// failures; callers treat them like a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Default entry lifetimes.
const (
	TTLGeneration = 30 * 24 * time.Hour
	TTLRecover    = 7 * 24 * time.Hour
	TTLConvert    = 7 * 24 * time.Hour
	TTLRender     = 7 * 24 * time.Hour
)
