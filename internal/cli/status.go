package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zapdesk/wabridge/internal/core/config"
	"github.com/zapdesk/wabridge/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state of all stored sessions",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
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

	rows, err := db.QueryContext(ctx,
		"SELECT id, name, number, status, retries, reconnect_blocked, block_reason FROM sessions ORDER BY id")
	if err != nil {
		slog.Error("Failed to query sessions", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tNUMBER\tSTATUS\tRETRIES\tBLOCKED")

	for rows.Next() {
		var (
			id          int64
			name        string
			number      string
			status      string
			retries     int
			blocked     bool
			blockReason string
		)
		if err := rows.Scan(&id, &name, &number, &status, &retries, &blocked, &blockReason); err != nil {
			continue
		}
		blockedCol := "-"
		if blocked {
			blockedCol = blockReason
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", id, name, number, status, retries, blockedCol)
	}
	_ = w.Flush()
}
