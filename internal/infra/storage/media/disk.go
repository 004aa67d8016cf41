// Package media stores attachment files on local disk and serves them by URL.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vietddude/botrelay/internal/infra/storage"
)

// RoutePrefix is the HTTP path files are served under.
const RoutePrefix = "/files/"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DiskStore implements storage.MediaStore on a local directory.
type DiskStore struct {
	dir       string
	publicURL string
	now       func() time.Time
	mu        sync.Mutex
}

// NewDiskStore creates the directory if needed.
func NewDiskStore(dir, publicURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}
	return &DiskStore{
		dir:       dir,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}, nil
}

// Dir returns the directory files are written to.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Upload writes data to a new file. File names start with a ULID so that
// concurrent queries never collide and listings sort by creation time.
func (s *DiskStore) Upload(ctx context.Context, data []byte, key, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(s.now()), ulid.DefaultEntropy())
	s.mu.Unlock()

	parts := []string{id.String()}
	if key = sanitize(key); key != "" {
		parts = append(parts, key)
	}
	if name = sanitize(name); name != "" {
		parts = append(parts, name)
	}
	fileName := strings.Join(parts, "_")

	if err := os.WriteFile(filepath.Join(s.dir, fileName), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write media %s: %w", fileName, err)
	}
	return s.publicURL + RoutePrefix + url.PathEscape(fileName), nil
}

// Remove deletes a file previously returned by Upload.
func (s *DiskStore) Remove(ctx context.Context, rawURL string) error {
	fileName, err := s.fileName(rawURL)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, fileName)); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrMediaNotFound
		}
		return fmt.Errorf("failed to remove media %s: %w", fileName, err)
	}
	return nil
}

// Exists reports whether a URL returned by Upload still has its file on disk.
// URLs the store does not own report false.
func (s *DiskStore) Exists(ctx context.Context, rawURL string) (bool, error) {
	fileName, err := s.fileName(rawURL)
	if err != nil {
		if errors.Is(err, storage.ErrMediaNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := os.Stat(filepath.Join(s.dir, fileName)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat media %s: %w", fileName, err)
	}
	return true, nil
}

// Prune removes files last modified before cutoff and returns how many it removed.
func (s *DiskStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list media dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to prune media file", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *DiskStore) fileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid media url: %w", err)
	}
	if !strings.HasPrefix(u.Path, RoutePrefix) {
		return "", storage.ErrMediaNotFound
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name != sanitize(name) {
		return "", storage.ErrMediaNotFound
	}
	return name, nil
}

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "-")
	return strings.Trim(s, "-.")
}
