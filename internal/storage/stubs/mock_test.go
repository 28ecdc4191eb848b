package stubs

import (
	"context"
	"errors"
	"testing"
)

func TestMockDB_SetGet(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	if _, ok, err := db.Get(ctx, "library_books"); err != nil || ok {
		t.Fatalf("Expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := db.Set(ctx, "library_books", "[]"); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}

	value, ok, err := db.Get(ctx, "library_books")
	if err != nil {
		t.Fatalf("Failed to get value: %v", err)
	}
	if !ok {
		t.Fatal("Expected key to exist")
	}
	if value != "[]" {
		t.Errorf("Expected '[]', got '%s'", value)
	}
	if db.Writes != 1 {
		t.Errorf("Expected 1 write, got %d", db.Writes)
	}
}

func TestMockDB_Overwrite(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	_ = db.Set(ctx, "library_ai_model", "gemini-2.5-flash")
	_ = db.Set(ctx, "library_ai_model", "gemini-3-pro-preview")

	value, _, _ := db.Get(ctx, "library_ai_model")
	if value != "gemini-3-pro-preview" {
		t.Errorf("Expected last written value, got '%s'", value)
	}
	if db.Keys() != 1 {
		t.Errorf("Expected 1 key, got %d", db.Keys())
	}
}

func TestMockDB_Delete(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	_ = db.Set(ctx, "library_logged_in", "true")

	if err := db.Delete(ctx, "library_logged_in"); err != nil {
		t.Fatalf("Failed to delete key: %v", err)
	}
	if _, ok, _ := db.Get(ctx, "library_logged_in"); ok {
		t.Error("Expected key to be deleted")
	}

	// Deleting again is not an error
	if err := db.Delete(ctx, "library_logged_in"); err != nil {
		t.Errorf("Expected no error deleting a missing key, got %v", err)
	}
}

func TestMockDB_FailSet(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()
	boom := errors.New("disk full")
	db.FailSet = boom

	if err := db.Set(ctx, "k", "v"); !errors.Is(err, boom) {
		t.Fatalf("Expected injected error, got %v", err)
	}
	if db.Keys() != 0 {
		t.Error("Expected failed write to store nothing")
	}
}

func TestMockDB_SetManyIsAllOrNothing(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	if err := db.SetMany(ctx, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("Failed to set values: %v", err)
	}
	if db.Keys() != 2 || db.Writes != 2 {
		t.Errorf("Expected 2 keys and 2 writes, got %d and %d", db.Keys(), db.Writes)
	}

	boom := errors.New("disk full")
	db.FailKeys = map[string]error{"b": boom}
	if err := db.SetMany(ctx, map[string]string{"a": "new", "b": "new"}); !errors.Is(err, boom) {
		t.Fatalf("Expected injected error, got %v", err)
	}
	if value, _, _ := db.Get(ctx, "a"); value != "1" {
		t.Errorf("Expected a to keep its old value, got %q", value)
	}

	if err := db.Set(ctx, "a", "only"); err != nil {
		t.Errorf("Expected write to an unaffected key to succeed, got %v", err)
	}
}

func TestMockDB_Close(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if err := db.Set(ctx, "k", "v"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, _, err := db.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
