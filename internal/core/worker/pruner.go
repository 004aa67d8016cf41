package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/botrelay/internal/relay/metrics"
)

// Target removes entries older than a cutoff and reports how many it removed.
type Target interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Pruner deletes old data based on retention policy.
type Pruner struct {
	name      string
	retention time.Duration
	target    Target
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(name string, retention time.Duration, target Target) *Pruner {
	return &Pruner{
		name:      name,
		retention: retention,
		target:    target,
		now:       time.Now,
	}
}

// Interval returns how often the pruner runs: a tenth of the retention,
// clamped to [10s, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, 1*time.Hour)
	return max(interval, 10*time.Second)
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs a single pass and returns the number of removed entries.
func (p *Pruner) Prune(ctx context.Context) int {
	n, err := p.target.Prune(ctx, p.now().Add(-p.retention))
	if err != nil {
		slog.Error("Pruner failed", "target", p.name, "error", err)
	}
	if n > 0 {
		metrics.MediaFiles.WithLabelValues("pruned").Add(float64(n))
		slog.Debug("Pruned expired entries", "target", p.name, "count", n)
	}
	return n
}
