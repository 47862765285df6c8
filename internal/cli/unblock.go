package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zapdesk/wabridge/internal/core/config"
	"github.com/zapdesk/wabridge/internal/infra/storage/postgres"
)

var unblockCmd = &cobra.Command{
	Use:   "unblock [session_id]",
	Short: "Clear the auto-reconnect block of a session",
	Args:  cobra.ExactArgs(1),
	Run:   runUnblock,
}

func init() {
	rootCmd.AddCommand(unblockCmd)
}

func runUnblock(cmd *cobra.Command, args []string) {
	sessionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid session id: %v\n", err)
		os.Exit(1)
	}

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

	// Direct SQL keeps this usable while the service is down; a running
	// service clears its in-memory block on the next start of the session.
	query := "UPDATE sessions SET reconnect_blocked = FALSE, block_reason = '', blocked_at = NULL, retries = 0, updated_at = now() WHERE id = $1"
	res, err := db.ExecContext(ctx, query, sessionID)
	if err != nil {
		slog.Error("Failed to clear block", "error", err)
		os.Exit(1)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		fmt.Printf("Session %d not found\n", sessionID)
		os.Exit(1)
	}

	fmt.Printf("Cleared auto-reconnect block for session %d\n", sessionID)
}
