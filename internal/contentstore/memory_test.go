package contentstore

import (
	"context"
	"errors"
	"testing"

	"lottery/internal/faults"
)

func TestMemory_Put(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	t.Run("Test same bytes yield the same identifier", func(t *testing.T) {
		a, err := store.Put(ctx, []byte("profile picture"))
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		b, err := store.Put(ctx, []byte("profile picture"))
		if err != nil {
			t.Fatalf("Expected no error, but got %v", err)
		}
		if a != b {
			t.Errorf("Expected identical identifiers, but got %s and %s", a, b)
		}
		if err := a.Validate(); err != nil {
			t.Errorf("Expected a decodable CID, but got %v", err)
		}
	})

	t.Run("Test different bytes yield different identifiers", func(t *testing.T) {
		a, _ := store.Put(ctx, []byte("one"))
		b, _ := store.Put(ctx, []byte("two"))
		if a == b {
			t.Errorf("Expected different identifiers, but both were %s", a)
		}
	})

	t.Run("Test unreachable store returns no identifier", func(t *testing.T) {
		store.SetUnreachable(true)
		defer store.SetUnreachable(false)
		id, err := store.Put(ctx, []byte("lost"))
		if !errors.Is(err, faults.ErrStoreUnreachable) {
			t.Fatalf("Expected StoreUnreachable, but got %v", err)
		}
		if id != "" {
			t.Errorf("Expected no identifier, but got %s", id)
		}
	})

	t.Run("Test mount of unknown content fails", func(t *testing.T) {
		if err := store.Mount(ctx, "bafkreidoesnotexist", "/x"); err == nil {
			t.Fatal("Expected an error mounting unknown content, but got nil")
		}
	})
}
