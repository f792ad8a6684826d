package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"diagramd/internal/domain"
)

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := NewRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRunStore returned error: %v", err)
	}
	return store
}

func TestNewRunStoreRequiresBasePath(t *testing.T) {
	if _, err := NewRunStore("  "); err == nil {
		t.Fatal("NewRunStore accepted empty base path")
	}
}

func TestCreateRunDir(t *testing.T) {
	store := newTestStore(t)
	dir, err := store.CreateRunDir("job-1")
	if err != nil {
		t.Fatalf("CreateRunDir returned error: %v", err)
	}
	if !strings.HasPrefix(dir, store.BasePath()) {
		t.Fatalf("run dir %q not under base path %q", dir, store.BasePath())
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("run dir not created: %v", err)
	}
}

func TestWriteAndResolveRoundtrip(t *testing.T) {
	store := newTestStore(t)
	dir, err := store.CreateRunDir("job-1")
	if err != nil {
		t.Fatalf("CreateRunDir returned error: %v", err)
	}

	path, err := store.Write(dir, "diagram_iter_1.png", []byte("png"))
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	resolved, err := store.Resolve(dir, "diagram_iter_1.png")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	dir, err := store.CreateRunDir("job-1")
	if err != nil {
		t.Fatalf("CreateRunDir returned error: %v", err)
	}

	// A same-named file outside the run directory must stay unreachable.
	outside := filepath.Join(store.BasePath(), "secret.png")
	if err := os.WriteFile(outside, []byte("secret"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	for _, name := range []string{
		"../secret.png",
		"..\\secret.png",
		"sub/../../secret.png",
		"/etc/passwd",
		"..",
		".",
		"",
	} {
		if _, err := store.Resolve(dir, name); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrNotFound", name, err)
		}
	}
}

func TestResolveMissingFile(t *testing.T) {
	store := newTestStore(t)
	dir, err := store.CreateRunDir("job-1")
	if err != nil {
		t.Fatalf("CreateRunDir returned error: %v", err)
	}
	if _, err := store.Resolve(dir, "nope.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Resolve error = %v, want ErrNotFound", err)
	}
}

func TestWriteRejectsPathElements(t *testing.T) {
	store := newTestStore(t)
	dir, err := store.CreateRunDir("job-1")
	if err != nil {
		t.Fatalf("CreateRunDir returned error: %v", err)
	}
	if _, err := store.Write(dir, "../escape.png", []byte("x")); err == nil {
		t.Fatal("Write accepted traversal name")
	}
	if _, err := store.Write(dir, "a/b.png", []byte("x")); err == nil {
		t.Fatal("Write accepted nested name")
	}
}
