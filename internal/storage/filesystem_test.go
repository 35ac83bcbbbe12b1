package storage

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	key, err := store.Put(ctx, ObjectKey("job-1", RolePreview), []byte("payload"), "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if key != "job-1/preview.png" {
		t.Fatalf("key = %q", key)
	}

	data, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Fatalf("data = %q", data)
	}

	ok, err := store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}

	rc, err := store.Stream(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	streamed, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(streamed) != "payload" {
		t.Fatalf("streamed = %q", streamed)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := ObjectKey("job-1", RoleGenerated)

	if _, err := store.Put(ctx, key, []byte("first"), "image/png"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(ctx, key, []byte("second"), "image/png"); err != nil {
		t.Fatal(err)
	}
	data, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Fatalf("overwrite lost: %q", data)
	}
}

func TestFileStoreNotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing/key.png"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("get: %v", err)
	}
	if _, err := store.Stream(ctx, "missing/key.png"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("stream: %v", err)
	}
	ok, err := store.Exists(ctx, "missing/key.png")
	if err != nil || ok {
		t.Fatalf("exists = %v, %v", ok, err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, key := range []string{"", "../escape.png", "a/../../escape.png"} {
		if _, err := store.Put(ctx, key, []byte("x"), ""); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleOriginal, "job-9/original.jpg"},
		{RoleGenerated, "job-9/generated.png"},
		{RolePreview, "job-9/preview.png"},
		{RoleFinal, "job-9/final.png"},
	}
	for _, tc := range tests {
		if got := ObjectKey("job-9", tc.role); got != tc.want {
			t.Fatalf("ObjectKey(%q) = %q, want %q", tc.role, got, tc.want)
		}
	}
}
