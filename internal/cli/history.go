package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/botrelay/internal/infra/storage"
	"github.com/vietddude/botrelay/internal/infra/storage/postgres"
)

var (
	historyLimit   int
	historyOutcome string
	historySince   time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent dispatch history from the database",
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", storage.DefaultHistoryLimit, "maximum rows to show")
	historyCmd.Flags().StringVar(&historyOutcome, "outcome", "", "only show this outcome (ok, not_found, no_response, ...)")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "only show records newer than this (e.g. 1h)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("History needs database.url; the in-memory history lives only inside a running relay")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	filter := storage.HistoryFilter{Outcome: historyOutcome, Limit: historyLimit}
	if historySince > 0 {
		filter.Since = time.Now().Add(-historySince)
	}

	records, err := postgres.NewHistoryRepo(db).List(ctx, filter)
	if err != nil {
		slog.Error("Failed to query history", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIME\tCOMMAND\tOUTCOME\tACTOR\tMSGS\tCACHE\tDURATION")

	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
			r.CreatedAt.Format(time.RFC3339),
			r.Command,
			r.Outcome,
			r.Actor,
			r.MessageCount,
			r.FromCache,
			r.Duration.Round(time.Millisecond),
		)
	}
	_ = w.Flush()
}
