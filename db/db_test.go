package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *MessageStore {
	t.Helper()
	db := openTestDB(t)
	ctx := context.Background()
	cleanDatabase(t, ctx, db)
	store := NewMessageStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return store
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestAppendListAllPreservesInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inputs := []struct{ content, user string }{
		{"hola", "ana"},
		{"que tal", "luis"},
		{"bien", "ana"},
	}
	var ids []int64
	for _, in := range inputs {
		id, err := store.Append(ctx, in.content, in.user)
		if err != nil {
			t.Fatalf("Append(%q): %v", in.content, err)
		}
		ids = append(ids, id)
	}

	got, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(got) != len(inputs) {
		t.Fatalf("ListAll returned %d rows, want %d", len(got), len(inputs))
	}
	for i, m := range got {
		if m.ID != ids[i] || m.Content != inputs[i].content || m.Username != inputs[i].user {
			t.Errorf("row %d = %+v, want id=%d content=%q user=%q", i, m, ids[i], inputs[i].content, inputs[i].user)
		}
		if i > 0 && m.ID <= got[i-1].ID {
			t.Errorf("ids not ascending: %d after %d", m.ID, got[i-1].ID)
		}
	}
}

func TestAppendEmptyUsernameStoresAnonymous(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Append(ctx, "sin nombre", "")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(got) != 1 || got[0].ID != id {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if got[0].Username != AnonymousUsername {
		t.Errorf("username = %q, want %q", got[0].Username, AnonymousUsername)
	}
}

func TestListAfter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, c := range []string{"a", "b", "c", "d"} {
		id, err := store.Append(ctx, c, "u")
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		ids = append(ids, id)
	}

	got, err := store.ListAfter(ctx, ids[1])
	if err != nil {
		t.Fatalf("ListAfter: %v", err)
	}
	if len(got) != 2 || got[0].Content != "c" || got[1].Content != "d" {
		t.Errorf("ListAfter(%d) = %+v, want [c d]", ids[1], got)
	}

	none, err := store.ListAfter(ctx, ids[3])
	if err != nil {
		t.Fatalf("ListAfter: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListAfter(last) = %+v, want empty", none)
	}
}

func TestStoreErrorsAreStorageErrors(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := store.Append(ctx, "x", "y")
	if err == nil {
		t.Fatal("expected error with expired context")
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not a *StorageError", err)
	}
	if se.Op != "append" {
		t.Errorf("Op = %q, want append", se.Op)
	}
	if !IsStorageError(err) {
		t.Error("IsStorageError returned false")
	}

	if _, err := store.ListAll(ctx); !IsStorageError(err) {
		t.Errorf("ListAll error %v is not a StorageError", err)
	}
}

func TestStorageErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &StorageError{Op: "append", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the wrapped cause")
	}
	if got := err.Error(); got != "storage append: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}
