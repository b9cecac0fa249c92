package cache

import (
	"context"
	"errors"
)

// ErrCorrupt is returned by Load when the persisted file exists but cannot
// be parsed. The default policy is to fail loudly rather than silently
// discard prior computation; see Config.Lenient.
var ErrCorrupt = errors.New("cache file corrupted")

// Store is the persistent key→result mapping the precompute engine and the
// intercepting wrapper share. Values are opaque encoded bytes; the codec
// lives with the caller.
//
// Implemented by FileStore (durable, human-editable), MemoryStore (dev and
// tests) and RedisStore.
type Store interface {
	// Load populates the store from its backing storage. A missing backing
	// file is an empty store, not an error.
	Load(ctx context.Context) error

	// Get returns the stored value for key, or ok=false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put records a value for key. Idempotent; overwriting an existing key
	// with different bytes is allowed (last write wins) but logged as
	// unusual.
	Put(ctx context.Context, key string, value []byte) error

	// Flush durably persists the current mapping. The precompute path calls
	// it after every successful Put (write-through), so no completed entry
	// is lost if the process dies mid-run.
	Flush(ctx context.Context) error
}
