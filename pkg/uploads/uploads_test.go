package uploads

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "uploads"), "http://clinic.test/")
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return store
}

func TestUploadAndPublicURL(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Upload("images", "logo.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasSuffix(stored, "-logo.png") {
		t.Fatalf("expected uuid-prefixed name, got %q", stored)
	}

	data, err := os.ReadFile(filepath.Join(store.Root(), "images", stored))
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected content %q", data)
	}

	url := store.PublicURL("images", stored)
	want := "http://clinic.test/uploads/images/" + stored
	if url != want {
		t.Fatalf("got %q, want %q", url, want)
	}
}

func TestRepeatedUploadsNeverCollide(t *testing.T) {
	store := newTestStore(t)

	a, err := store.Upload("images", "logo.png", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	b, err := store.Upload("images", "logo.png", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct stored names, both %q", a)
	}

	names, err := store.List("images")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 files, got %d", len(names))
	}
}

func TestUploadSanitizesNames(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Upload("images", "../../../etc/passwd", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if strings.Contains(stored, "/") || strings.Contains(stored, "..") {
		t.Fatalf("stored name escaped the bucket: %q", stored)
	}

	if _, err := store.Upload("../outside", "a.txt", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for traversal bucket name")
	}
}

func TestListUnknownBucket(t *testing.T) {
	store := newTestStore(t)

	names, err := store.List("nope")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty list, got %v", names)
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Upload("images", "a.png", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := store.Remove("images", stored); err != nil {
		t.Fatalf("remove: %v", err)
	}
	names, err := store.List("images")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty bucket, got %v", names)
	}

	// Unknown file is a no-op.
	if err := store.Remove("images", "missing.png"); err != nil {
		t.Fatalf("remove unknown: %v", err)
	}
}
