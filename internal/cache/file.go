package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
	"go.uber.org/zap"

	"github.com/jithinsankar/fastapi-cached/pkg/logging"
)

// FileStore mirrors an in-memory mapping to a single JSON file. The file is
// the human-editable source of truth between runs: users may add, edit or
// remove entries by hand (comments and trailing commas are tolerated), and
// the next Load honors those edits as authoritative.
//
// Flush serializes the whole mapping and replaces the file atomically, so a
// crash mid-write leaves either the old file or the new one, never a torn
// mix. Flush calls are serialized internally; concurrent Puts are safe.
type FileStore struct {
	path    string
	lenient bool

	mu    sync.RWMutex
	items map[string]json.RawMessage

	// separate from mu so readers are not blocked for the duration of a
	// disk write
	flushMu sync.Mutex
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithLenientLoad makes Load treat a corrupt file as empty (with a warning)
// instead of failing. This risks discarding prior computation; the strict
// default exists so that data loss is always an explicit choice.
func WithLenientLoad() FileStoreOption {
	return func(s *FileStore) { s.lenient = true }
}

// NewFileStore creates a store backed by the file at path. Call Load before
// first use.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		path:  path,
		items: make(map[string]json.RawMessage),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the backing file into memory, replacing the current mapping.
// A missing file is an empty store. An unparsable file returns ErrCorrupt,
// or starts empty when the store was built with WithLenientLoad.
func (s *FileStore) Load(ctx context.Context) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.items = make(map[string]json.RawMessage)
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("reading cache file %s: %w", s.path, err)
	}

	items, err := parseCacheFile(data)
	if err != nil {
		if s.lenient {
			logging.L(ctx).Warn("cache file corrupt, starting empty",
				zap.String("path", s.path),
				zap.Error(err),
			)
			s.mu.Lock()
			s.items = make(map[string]json.RawMessage)
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

// parseCacheFile accepts hand-edited JSON: hujson standardizes comments and
// trailing commas away before decoding.
func parseCacheFile(data []byte) (map[string]json.RawMessage, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	items := make(map[string]json.RawMessage)
	if err := json.Unmarshal(standardized, &items); err != nil {
		return nil, fmt.Errorf("invalid cache mapping: %w", err)
	}
	return items, nil
}

// Get returns the stored value for key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	value, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	// copy to decouple from the store's buffer
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Put records a value for key in memory. Call Flush to persist.
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for key %q is not valid JSON", key)
	}

	valueCopy := make(json.RawMessage, len(value))
	copy(valueCopy, value)

	s.mu.Lock()
	prev, existed := s.items[key]
	s.items[key] = valueCopy
	s.mu.Unlock()

	if existed && !bytes.Equal(prev, valueCopy) {
		logging.L(ctx).Warn("cache key overwritten with different result",
			zap.String("path", s.path),
			zap.String("key", key),
		)
	}

	return nil
}

// Flush writes the full current mapping to disk atomically. Single-writer:
// concurrent Flush calls queue up rather than interleave.
func (s *FileStore) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s.items, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding cache mapping: %w", err)
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing cache file %s: %w", s.path, err)
	}

	return nil
}

// Len returns the number of entries currently in memory.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns the keys currently in memory, in no particular order.
func (s *FileStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys
}
