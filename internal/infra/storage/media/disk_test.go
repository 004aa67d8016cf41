package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/botrelay/internal/infra/storage"
)

func TestDiskStore_UploadRemove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewDiskStore(dir, "http://relay.local/")
	if err != nil {
		t.Fatal(err)
	}

	u, err := s.Upload(ctx, []byte("jpeg"), "12345678", "rostro foto.jpg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(u, "http://relay.local/files/") {
		t.Errorf("url = %s", u)
	}
	if !strings.HasSuffix(u, "_12345678_rostro-foto.jpg") {
		t.Errorf("url = %s, want sanitized key and name", u)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("files = %d, want 1", len(entries))
	}
	data, _ := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if string(data) != "jpeg" {
		t.Errorf("content = %q", data)
	}

	if err := s.Remove(ctx, u); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(ctx, u); !errors.Is(err, storage.ErrMediaNotFound) {
		t.Errorf("second Remove: %v, want ErrMediaNotFound", err)
	}
}

func TestDiskStore_UniqueNames(t *testing.T) {
	s, _ := NewDiskStore(t.TempDir(), "http://x")
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		u, err := s.Upload(context.Background(), []byte{byte(i)}, "k", "a.jpg")
		if err != nil {
			t.Fatal(err)
		}
		if seen[u] {
			t.Fatalf("duplicate url %s", u)
		}
		seen[u] = true
	}
}

func TestDiskStore_RemoveRejectsForeignPaths(t *testing.T) {
	s, _ := NewDiskStore(t.TempDir(), "http://x")
	for _, u := range []string{
		"http://x/other/file.jpg",
		"http://x/files/..",
		"http://x/files/",
	} {
		if err := s.Remove(context.Background(), u); !errors.Is(err, storage.ErrMediaNotFound) {
			t.Errorf("Remove(%s) = %v, want ErrMediaNotFound", u, err)
		}
	}
}

func TestDiskStore_Prune(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewDiskStore(dir, "http://x")

	oldURL, _ := s.Upload(ctx, []byte("old"), "", "old.jpg")
	_, _ = s.Upload(ctx, []byte("new"), "", "new.jpg")

	oldName, _ := s.fileName(oldURL)
	past := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(filepath.Join(dir, oldName), past, past); err != nil {
		t.Fatal(err)
	}

	n, err := s.Prune(ctx, time.Now().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), "new.jpg") {
		t.Errorf("remaining = %v", entries)
	}
}

func TestDiskStore_Exists(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir(), "http://relay.local")
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.Upload(ctx, []byte("jpeg"), "12345678", "a.jpg")
	if err != nil {
		t.Fatal(err)
	}

	if ok, err := s.Exists(ctx, u); err != nil || !ok {
		t.Fatalf("Exists after upload = %v, %v", ok, err)
	}
	if ok, _ := s.Exists(ctx, "http://relay.local/etc/passwd"); ok {
		t.Error("foreign path reported as existing")
	}

	if _, err := s.Prune(ctx, time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Exists(ctx, u); err != nil || ok {
		t.Errorf("Exists after prune = %v, %v", ok, err)
	}
}
