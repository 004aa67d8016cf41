package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/infra/storage"
)

// HistoryRepo implements storage.HistoryRepository using PostgreSQL.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a new PostgreSQL history repository.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

type historyRow struct {
	ID             string         `db:"id"`
	QueryID        string         `db:"query_id"`
	Command        string         `db:"command"`
	CorrelationKey string         `db:"correlation_key"`
	Kind           string         `db:"kind"`
	Outcome        string         `db:"outcome"`
	Actor          string         `db:"actor"`
	MessageCount   int            `db:"message_count"`
	MediaURLs      pq.StringArray `db:"media_urls"`
	FromCache      bool           `db:"from_cache"`
	ErrorMsg       string         `db:"error_msg"`
	DurationMS     int64          `db:"duration_ms"`
	CreatedAt      time.Time      `db:"created_at"`
}

// Record inserts a dispatch record.
func (r *HistoryRepo) Record(ctx context.Context, rec *domain.DispatchRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO dispatch_history (
			id, query_id, command, correlation_key, kind, outcome, actor,
			message_count, media_urls, from_cache, error_msg, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.QueryID,
		rec.Command,
		rec.CorrelationKey,
		string(rec.Kind),
		rec.Outcome,
		string(rec.Actor),
		rec.MessageCount,
		pq.Array(rec.MediaURLs),
		rec.FromCache,
		rec.Error,
		rec.Duration.Milliseconds(),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	return nil
}

// List returns records newest first.
func (r *HistoryRepo) List(ctx context.Context, filter storage.HistoryFilter) ([]*domain.DispatchRecord, error) {
	query, args := buildListQuery(filter)

	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list dispatch history: %w", err)
	}

	out := make([]*domain.DispatchRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, &domain.DispatchRecord{
			ID:             row.ID,
			QueryID:        row.QueryID,
			Command:        row.Command,
			CorrelationKey: row.CorrelationKey,
			Kind:           domain.EndpointKind(row.Kind),
			Outcome:        row.Outcome,
			Actor:          domain.ActorID(row.Actor),
			MessageCount:   row.MessageCount,
			MediaURLs:      []string(row.MediaURLs),
			FromCache:      row.FromCache,
			Error:          row.ErrorMsg,
			Duration:       time.Duration(row.DurationMS) * time.Millisecond,
			CreatedAt:      row.CreatedAt,
		})
	}
	return out, nil
}

func buildListQuery(filter storage.HistoryFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.Outcome != "" {
		args = append(args, filter.Outcome)
		where = append(where, fmt.Sprintf("outcome = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}
	args = append(args, limit)

	var b strings.Builder
	b.WriteString(`SELECT id, query_id, command, correlation_key, kind, outcome, actor,
		message_count, media_urls, from_cache, error_msg, duration_ms, created_at
		FROM dispatch_history`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d", len(args))
	return b.String(), args
}
