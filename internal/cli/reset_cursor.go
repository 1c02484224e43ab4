package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/logwatcher/internal/control"
	"github.com/vietddude/logwatcher/internal/core/config"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [unix_timestamp]",
	Short: "Overwrite the stored cursor with a unix timestamp in seconds",
	Args:  cobra.ExactArgs(1),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	ts, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || ts < 0 {
		fmt.Printf("Invalid timestamp %q: must be a non-negative integer\n", args[0])
		os.Exit(1)
	}

	cfg := loadConfig()
	if cfg.Cursor.Backend == config.BackendMemory {
		fmt.Println("Cursor backend is memory; there is no stored cursor to reset.")
		os.Exit(1)
	}

	ctx := context.Background()
	backends, err := control.OpenBackends(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open cursor backend", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	if err := backends.CursorStore(cfg).Set(ctx, ts); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor %s to %d\n", cfg.Cursor.Key, ts)
}
