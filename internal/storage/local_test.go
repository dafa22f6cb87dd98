package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorage_PutGet(t *testing.T) {
	baseDir := t.TempDir()
	storage, err := NewLocalStorage(baseDir)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	objectPath := "exports/2024/snapshot.json"
	content := []byte(`[{"id":"a"}]`)

	if err := storage.Put(ctx, objectPath, content); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	got, err := storage.Get(ctx, objectPath)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	// overwrite
	if err := storage.Put(ctx, objectPath, []byte("[]")); err != nil {
		t.Fatalf("Put overwrite failed: %v", err)
	}
	got, _ = storage.Get(ctx, objectPath)
	if string(got) != "[]" {
		t.Errorf("expected overwritten content, got %q", got)
	}

	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, _ = storage.Exists(ctx, objectPath)
	if exists {
		t.Error("expected object to be deleted")
	}
}

func TestLocalStorage_GetMissing(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = storage.Get(context.Background(), "nope.json")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_DeleteIsIdempotent(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.Delete(context.Background(), "missing.json"); err != nil {
		t.Errorf("expected nil error deleting missing object, got %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	baseDir := t.TempDir()
	storage, err := NewLocalStorage(baseDir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, p := range []string{"exports/b.json", "exports/a.json", "other/c.json"} {
		if err := storage.Put(ctx, p, []byte("[]")); err != nil {
			t.Fatalf("Put %s: %v", p, err)
		}
	}
	// leftover temp files are not objects
	if err := os.WriteFile(filepath.Join(baseDir, "exports", ".upload-123"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	objects, err := storage.ListObjects(ctx, "exports/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(objects) != 2 || objects[0] != "exports/a.json" || objects[1] != "exports/b.json" {
		t.Errorf("unexpected objects: %v", objects)
	}

	none, err := storage.ListObjects(ctx, "missing/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no objects, got %v", none)
	}
}

func TestLocalStorage_StaysUnderBase(t *testing.T) {
	baseDir := t.TempDir()
	storage, err := NewLocalStorage(baseDir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := storage.Put(ctx, "../../escape.json", []byte("[]")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(baseDir, "escape.json")); err != nil {
		t.Errorf("expected object to be written under base: %v", err)
	}
}

func TestOpen_Backends(t *testing.T) {
	s, err := Open(context.Background(), Config{Type: "local", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Open local: %v", err)
	}
	if s.Backend() != "local" {
		t.Errorf("expected local backend, got %s", s.Backend())
	}

	if _, err := Open(context.Background(), Config{Type: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
