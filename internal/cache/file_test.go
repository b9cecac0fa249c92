package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cache.json")
}

func TestFileStore_AbsentFileIsEmpty(t *testing.T) {
	s := NewFileStore(tempStorePath(t))

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load on absent file failed: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d entries", s.Len())
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := tempStorePath(t)

	s := NewFileStore(path)
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	puts := map[string]string{
		"region=A&id=1": `{"revenue":1000}`,
		"region=A&id=2": `{"revenue":2000}`,
		"region=B&id=1": `{"revenue":1000}`,
		"region=B&id=2": `{"revenue":2000}`,
	}
	for k, v := range puts {
		if err := s.Put(ctx, k, []byte(v)); err != nil {
			t.Fatalf("Put(%q) failed: %v", k, err)
		}
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	reloaded := NewFileStore(path)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	got := make(map[string]string)
	for _, k := range reloaded.Keys() {
		v, ok, err := reloaded.Get(ctx, k)
		if err != nil || !ok {
			t.Fatalf("Get(%q) after reload: ok=%v err=%v", k, ok, err)
		}
		got[k] = string(v)
	}

	if diff := cmp.Diff(puts, got); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore_CorruptFileStrict(t *testing.T) {
	path := tempStorePath(t)
	if err := os.WriteFile(path, []byte("{not json at all"), 0o644); err != nil {
		t.Fatalf("seeding corrupt file: %v", err)
	}

	s := NewFileStore(path)
	err := s.Load(context.Background())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestFileStore_CorruptFileLenient(t *testing.T) {
	path := tempStorePath(t)
	if err := os.WriteFile(path, []byte("{not json at all"), 0o644); err != nil {
		t.Fatalf("seeding corrupt file: %v", err)
	}

	s := NewFileStore(path, WithLenientLoad())
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("lenient Load failed: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store after lenient load, got %d", s.Len())
	}
}

func TestFileStore_HandEditedFileIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	path := tempStorePath(t)

	s := NewFileStore(path)
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.Put(ctx, "region=A&id=1", []byte(`{"revenue":1000}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// A user hand-adds an entry for a value outside the original domain,
	// with a comment and a trailing comma.
	edited := `{
  // added by hand between runs
  "region=A&id=1": {"revenue":1000},
  "region=C&id=9": {"revenue":42},
}`
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatalf("hand-editing file: %v", err)
	}

	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load after hand-edit failed: %v", err)
	}

	v, ok, err := s.Get(ctx, "region=C&id=9")
	if err != nil || !ok {
		t.Fatalf("hand-added entry not retrievable: ok=%v err=%v", ok, err)
	}
	if string(v) != `{"revenue":42}` {
		t.Fatalf("unexpected hand-added value: %s", v)
	}
}

func TestFileStore_OverwriteLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(tempStorePath(t))
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := s.Put(ctx, "k", []byte(`1`)); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	if err := s.Put(ctx, "k", []byte(`2`)); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if string(v) != "2" {
		t.Fatalf("expected last write to win, got %s", v)
	}
}

func TestFileStore_PutRejectsInvalidJSON(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(tempStorePath(t))

	if err := s.Put(ctx, "k", []byte("{broken")); err == nil {
		t.Fatal("expected error for invalid JSON value")
	}
}

func TestFileStore_FlushedFileIsValidJSON(t *testing.T) {
	ctx := context.Background()
	path := tempStorePath(t)

	s := NewFileStore(path)
	if err := s.Put(ctx, "a=1&b=2", []byte(`{"x":true}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading flushed file: %v", err)
	}
	if !json.Valid(data) {
		t.Fatalf("flushed file is not valid JSON:\n%s", data)
	}
}
