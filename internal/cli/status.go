package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/logwatcher/internal/control"
	"github.com/vietddude/logwatcher/internal/core/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored cursor and how far it trails the clock",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Cursor.Backend == config.BackendMemory {
		fmt.Println("Cursor backend is memory; nothing is persisted between runs.")
		return
	}

	ctx := context.Background()
	backends, err := control.OpenBackends(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open cursor backend", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	pos, err := backends.CursorStore(cfg).Get(ctx)
	if err != nil {
		slog.Error("Failed to read cursor", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NAME\tBACKEND\tCURSOR\tTIME\tLAG")

	if ts, ok := pos.Value(); ok {
		lag := time.Now().Unix() - ts
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%ds\n",
			cfg.Cursor.Key, cfg.Cursor.Backend, ts, time.Unix(ts, 0).UTC().Format(time.RFC3339), lag)
	} else {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t-\t-\n", cfg.Cursor.Key, cfg.Cursor.Backend, pos)
	}
	_ = w.Flush()
}
