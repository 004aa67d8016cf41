package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/botrelay/internal/core/domain"
)

var (
	// ErrMediaNotFound is returned when removing a media URL the store does not own
	ErrMediaNotFound = errors.New("media not found")
)

// ResultCache stores aggregated results of successful queries
type ResultCache interface {
	// Find returns the cached result for the command and correlation key
	Find(ctx context.Context, command, key string) (*domain.AggregatedResult, bool, error)

	// Save caches a result
	Save(ctx context.Context, command, key string, res *domain.AggregatedResult) error
}

// MediaStore stores attachment bytes and hands back a public URL
type MediaStore interface {
	// Upload stores data under a name derived from key and name
	Upload(ctx context.Context, data []byte, key, name string) (string, error)

	// Remove deletes a previously uploaded media by URL
	Remove(ctx context.Context, url string) error
}

// MediaChecker reports whether an uploaded media URL still resolves to a file
type MediaChecker interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// HistoryRepository persists one record per handled query
type HistoryRepository interface {
	// Record saves a dispatch record
	Record(ctx context.Context, rec *domain.DispatchRecord) error

	// List returns records newest first
	List(ctx context.Context, filter HistoryFilter) ([]*domain.DispatchRecord, error)
}

// HistoryFilter narrows History.List results.
type HistoryFilter struct {
	Outcome string    // empty = any
	Since   time.Time // zero = no lower bound
	Limit   int       // 0 = DefaultHistoryLimit
}

// DefaultHistoryLimit caps List results when no limit is given.
const DefaultHistoryLimit = 50

// CacheKey builds the key a result is cached under.
func CacheKey(command, key string) string {
	return command + ":" + key
}
