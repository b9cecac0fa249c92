package cache

import (
	"context"
	"testing"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "region=A&id=1", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, hit, err := s.Get(ctx, "region=A&id=1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit {
		t.Fatalf("expected hit after Put")
	}
	if string(got) != `{"ok":true}` {
		t.Fatalf("unexpected value: %s", got)
	}

	_, hit, err = s.Get(ctx, "region=B&id=1")
	if err != nil {
		t.Fatalf("Get miss failed: %v", err)
	}
	if hit {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Put(ctx, "k", []byte(`1`))
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}

	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected empty store after Clear, got %d", s.Len())
	}
}
