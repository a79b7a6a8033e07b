package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/chain-observer/internal/indexing/scanner"
)

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Scan a single window and exit",
	Run:   runOnce,
}

func init() {
	rootCmd.AddCommand(runOnceCmd)
}

func runOnce(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newObserver(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	window, err := app.RunOnce(ctx)
	if errors.Is(err, scanner.ErrRunInProgress) {
		slog.Warn("Another run holds the lock, nothing done")
		return
	}
	if err != nil {
		slog.Error("Run failed", "error", err)
		_ = app.Close()
		os.Exit(1)
	}

	fmt.Printf("Scanned blocks %d..%d (%d blocks)\n", window.From(), window.Max, window.Blocks())
}
