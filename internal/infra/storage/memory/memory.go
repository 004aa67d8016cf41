package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/infra/storage"
)

// -----------------------------------------------------------------------------
// Result Cache
// -----------------------------------------------------------------------------

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// ResultCache is an in-process storage.ResultCache with per-entry TTL.
type ResultCache struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
	mu      sync.RWMutex
}

// NewResultCache creates a cache. ttl <= 0 keeps entries forever.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *ResultCache) Find(ctx context.Context, command, key string) (*domain.AggregatedResult, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[storage.CacheKey(command, key)]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, storage.CacheKey(command, key))
		c.mu.Unlock()
		return nil, false, nil
	}

	// Stored as JSON so callers never share maps with the cache.
	var res domain.AggregatedResult
	if err := json.Unmarshal(e.data, &res); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	return &res, true, nil
}

func (c *ResultCache) Save(ctx context.Context, command, key string, res *domain.AggregatedResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	e := cacheEntry{data: data}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[storage.CacheKey(command, key)] = e
	return nil
}

// -----------------------------------------------------------------------------
// History Repository
// -----------------------------------------------------------------------------

// HistoryRepo keeps dispatch records in memory, bounded to max entries.
type HistoryRepo struct {
	max     int
	records []*domain.DispatchRecord
	mu      sync.RWMutex
}

// NewHistoryRepo creates a history that keeps at most max records (0 = 1000).
func NewHistoryRepo(max int) *HistoryRepo {
	if max <= 0 {
		max = 1000
	}
	return &HistoryRepo{max: max}
}

func (r *HistoryRepo) Record(ctx context.Context, rec *domain.DispatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	r.records = append(r.records, &cp)
	if over := len(r.records) - r.max; over > 0 {
		r.records = r.records[over:]
	}
	return nil
}

func (r *HistoryRepo) List(ctx context.Context, filter storage.HistoryFilter) ([]*domain.DispatchRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.DispatchRecord, 0, min(limit, len(r.records)))
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := r.records[i]
		if filter.Outcome != "" && rec.Outcome != filter.Outcome {
			continue
		}
		if !filter.Since.IsZero() && rec.CreatedAt.Before(filter.Since) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
