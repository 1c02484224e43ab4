package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/logwatcher/internal/control"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single fetch-and-advance cycle and exit",
	Run:   runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	app, err := control.NewWatcher(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize Watcher", "error", err)
		os.Exit(1)
	}
	defer func() { _ = app.Stop(ctx) }()

	res, err := app.RunOnce(ctx)
	if err != nil {
		slog.Error("Cycle failed", "error", err)
		os.Exit(1)
	}
	if res.Skipped {
		fmt.Println("Skipped: another cycle holds the lock")
		return
	}
	fmt.Printf("Window %s: %d logs (clamped=%v)\n", res.Window, res.Records, res.Clamped)
}
