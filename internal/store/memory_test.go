package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Same-millisecond inserts still list in insertion order.
	ids := []string{"z", "y", "x", "w"}
	for _, id := range ids {
		if err := s.PutImage(ctx, &ImageRecord{ID: id, ProjectID: "p"}); err != nil {
			t.Fatalf("PutImage() error = %v", err)
		}
	}
	list, err := s.ListImages(ctx, "p")
	if err != nil {
		t.Fatalf("ListImages() error = %v", err)
	}
	for i, id := range ids {
		if list[i].ID != id {
			t.Errorf("ListImages()[%d] = %s, want %s", i, list[i].ID, id)
		}
	}
}

func TestMemoryStore_CopiesRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := &ImageRecord{ID: "a", ProjectID: "p", Caption: "original"}
	_ = s.PutImage(ctx, rec)

	rec.Caption = "mutated by caller"
	got, _ := s.GetImage(ctx, "p", "a")
	if got.Caption != "original" {
		t.Errorf("stored caption = %q, caller mutation leaked in", got.Caption)
	}

	got.Caption = "mutated after read"
	again, _ := s.GetImage(ctx, "p", "a")
	if again.Caption != "original" {
		t.Errorf("stored caption = %q, reader mutation leaked in", again.Caption)
	}
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	s := NewMemoryStore()
	err := s.SetDigest(context.Background(), "p", "nope", "d")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetDigest(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_PutImageRequiresIDs(t *testing.T) {
	s := NewMemoryStore()
	if err := s.PutImage(context.Background(), &ImageRecord{ID: "a"}); err == nil {
		t.Error("PutImage() without project id succeeded")
	}
}

func TestMemoryStore_Tokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.PutTokens(ctx, "p", []string{"red", "blue", "red"})
	_ = s.PutTokens(ctx, "p", []string{"green"})

	got, _ := s.ListTokens(ctx, "p")
	want := []string{"blue", "green", "red"}
	if len(got) != len(want) {
		t.Fatalf("ListTokens() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListTokens()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	_ = s.DeleteTokens(ctx, "p")
	if got, _ := s.ListTokens(ctx, "p"); len(got) != 0 {
		t.Errorf("ListTokens() = %v after DeleteTokens", got)
	}
}
