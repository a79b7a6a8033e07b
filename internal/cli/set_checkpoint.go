package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var setCheckpointCmd = &cobra.Command{
	Use:   "set-checkpoint [block_height]",
	Short: "Set the last checked block height",
	Long: `Set the last checked block height. The next run scans from the block
after it. Moving the checkpoint backwards rescans blocks; every effect of a
rescan is idempotent. With redis configured the override waits for the run
lock, so it never interleaves with a run of another instance.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runSetCheckpoint,
}

var lockWait time.Duration

func init() {
	setCheckpointCmd.Flags().DurationVar(&lockWait, "wait", 10*time.Minute, "How long to wait for a run in progress")
	rootCmd.AddCommand(setCheckpointCmd)
}

type checkpointSetter interface {
	SetCheckpoint(ctx context.Context, height int64) (int64, error)
}

func runSetCheckpoint(cmd *cobra.Command, args []string) error {
	height, err := parseHeight(args[0])
	if err != nil {
		return err
	}

	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()

	app := newObserver(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	return setCheckpoint(ctx, os.Stdout, app, cfg.Observer.CheckpointName, height)
}

func parseHeight(arg string) (int64, error) {
	height, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || height < 0 {
		return 0, fmt.Errorf("invalid block height: %s", arg)
	}
	return height, nil
}

func setCheckpoint(ctx context.Context, out io.Writer, app checkpointSetter, name string, height int64) error {
	prev, err := app.SetCheckpoint(ctx, height)
	if err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Checkpoint %s moved from %d to %d\n", name, prev, height)
	return nil
}
