package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/botrelay/internal/control"
	"github.com/vietddude/botrelay/internal/core/domain"
)

var queryCmd = &cobra.Command{
	Use:   "query <command> [args...]",
	Short: "Relay a single command and print the JSON result",
	Example: `  botrelay query /dni 12345678
  botrelay query "/nm JUAN|PEREZ|LOPEZ"`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.NewRelay(cfg, control.Options{})
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Close()
	}()

	res, err := app.Engine().Query(context.Background(), strings.Join(args, " "))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err != nil {
		var out any = map[string]string{"status": "error", "message": err.Error()}
		var qe *domain.Error
		if errors.As(err, &qe) {
			out = qe
		}
		_ = enc.Encode(out)
		_ = app.Close()
		os.Exit(1)
	}
	_ = enc.Encode(res)
}
