// Package engine runs one query end to end: cache lookup, a fresh transport
// session, failover dispatch, and bookkeeping.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/infra/storage"
	"github.com/vietddude/botrelay/internal/infra/transport"
	"github.com/vietddude/botrelay/internal/relay/metrics"
)

// OutcomeInternal is recorded for failures that are not query errors.
const OutcomeInternal = "internal_error"

// Dispatcher is the failover engine the relay drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, t transport.Transport, q domain.Query) (*domain.AggregatedResult, error)
}

// Engine handles queries. Cache and history are optional.
type Engine struct {
	transports transport.Factory
	dispatcher Dispatcher
	cache      storage.ResultCache
	media      storage.MediaChecker
	history    storage.HistoryRepository
	log        *slog.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables the result cache.
func WithCache(c storage.ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMediaCheck makes cache hits verify that their media files still exist.
// A hit with missing media is treated as a miss and dispatched again.
func WithMediaCheck(m storage.MediaChecker) Option {
	return func(e *Engine) { e.media = m }
}

// WithHistory records every handled query.
func WithHistory(h storage.HistoryRepository) Option {
	return func(e *Engine) { e.history = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine.
func New(transports transport.Factory, dispatcher Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		transports: transports,
		dispatcher: dispatcher,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query relays command and returns the aggregated answer or a *domain.Error.
//
// Once a session is open it runs to completion even if ctx is cancelled, so
// that the transport is always disconnected cleanly.
func (e *Engine) Query(ctx context.Context, command string) (*domain.AggregatedResult, error) {
	command = strings.TrimSpace(command)
	if command == "" || !strings.HasPrefix(command, "/") {
		return nil, domain.NewError(domain.KindFormatError, "command must start with '/'", nil)
	}

	q := domain.NewQuery(command)
	start := e.now()

	res, err := e.run(ctx, q)

	e.record(ctx, q, res, err, e.now().Sub(start))
	return res, err
}

func (e *Engine) run(ctx context.Context, q domain.Query) (*domain.AggregatedResult, error) {
	log := e.log.With("query_id", q.ID, "command", q.CommandName())

	if res, ok := e.lookup(ctx, q, log); ok {
		return res, nil
	}

	// Detach: the session must not be abandoned midway by the caller.
	sctx := context.WithoutCancel(ctx)

	t := e.transports()
	defer func() {
		if err := t.Disconnect(); err != nil {
			log.Warn("Failed to disconnect transport", "error", err)
		}
	}()

	if err := t.Connect(sctx); err != nil {
		log.Error("Transport connect failed", "error", err)
		return nil, domain.NewError(domain.KindTransportUnavailable, "failed to connect to chat bridge", err)
	}
	authorized, err := t.IsAuthorized(sctx)
	if err != nil {
		log.Error("Transport authorization check failed", "error", err)
		return nil, domain.NewError(domain.KindTransportUnavailable, "failed to verify session", err)
	}
	if !authorized {
		return nil, domain.NewError(domain.KindTransportUnavailable, "chat session is not authorized", transport.ErrUnauthorized)
	}

	res, err := e.dispatcher.Dispatch(sctx, t, q)
	if err != nil {
		return nil, err
	}

	if e.cache != nil && q.CorrelationKey != "" {
		if err := e.cache.Save(sctx, q.CommandName(), q.CorrelationKey, res); err != nil {
			log.Warn("Failed to cache result", "error", err)
		}
	}
	return res, nil
}

func (e *Engine) lookup(ctx context.Context, q domain.Query, log *slog.Logger) (*domain.AggregatedResult, bool) {
	if e.cache == nil || q.CorrelationKey == "" {
		return nil, false
	}
	res, ok, err := e.cache.Find(ctx, q.CommandName(), q.CorrelationKey)
	if err != nil {
		log.Warn("Result cache lookup failed", "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	if !e.mediaPresent(ctx, res, log) {
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	res.FromCache = true
	log.Debug("Served from cache")
	return res, true
}

func (e *Engine) mediaPresent(ctx context.Context, res *domain.AggregatedResult, log *slog.Logger) bool {
	if e.media == nil {
		return true
	}
	for _, u := range res.MediaURLs() {
		ok, err := e.media.Exists(ctx, u)
		if err != nil {
			log.Warn("Media check failed", "url", u, "error", err)
			return false
		}
		if !ok {
			log.Debug("Cached result references pruned media", "url", u)
			return false
		}
	}
	return true
}

func (e *Engine) record(ctx context.Context, q domain.Query, res *domain.AggregatedResult, err error, took time.Duration) {
	rec := &domain.DispatchRecord{
		ID:             uuid.New().String(),
		QueryID:        q.ID,
		Command:        q.Command,
		CorrelationKey: q.CorrelationKey,
		Kind:           q.Kind,
		Outcome:        domain.OutcomeOK,
		Duration:       took,
		CreatedAt:      e.now(),
	}
	if res != nil {
		rec.Actor = res.SourceActor
		rec.MessageCount = res.MessageCount
		rec.MediaURLs = res.MediaURLs()
		rec.FromCache = res.FromCache
	}
	if err != nil {
		rec.Outcome = outcomeOf(err)
		rec.Error = err.Error()
		var qe *domain.Error
		if errors.As(err, &qe) {
			rec.Actor = qe.Actor
		}
	}

	metrics.QueriesTotal.WithLabelValues(rec.Outcome).Inc()
	e.log.Info("Query handled",
		"query_id", q.ID,
		"command", q.CommandName(),
		"outcome", rec.Outcome,
		"actor", rec.Actor,
		"from_cache", rec.FromCache,
		"duration", took,
	)

	if e.history == nil {
		return
	}
	if err := e.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		e.log.Warn("Failed to record dispatch history", "query_id", q.ID, "error", err)
	}
}

func outcomeOf(err error) string {
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return OutcomeInternal
}
