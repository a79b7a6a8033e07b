package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/chain-observer/internal/control"
	"github.com/vietddude/chain-observer/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show the checkpoint, chain lag and purchase ledger",
	SilenceUsage: true,
	RunE:         runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusReader interface {
	Status(ctx context.Context) (*control.StatusReport, error)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	ctx := context.Background()
	app := newObserver(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	return printStatus(ctx, os.Stdout, app)
}

func printStatus(ctx context.Context, out io.Writer, app statusReader) error {
	report, err := app.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHECKPOINT\tHEIGHT\tHEAD\tLAG")
	if report.HeadError != nil {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", report.CheckpointName, report.Checkpoint, "unavailable", "-")
	} else {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", report.CheckpointName, report.Checkpoint, report.ChainHead, report.Lag)
	}
	_ = w.Flush()

	if len(report.Purchases) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo purchases recorded")
		return nil
	}

	statuses := make([]domain.PurchaseStatus, 0, len(report.Purchases))
	for s := range report.Purchases {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PURCHASE STATUS\tCOUNT")
	for _, s := range statuses {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, report.Purchases[s])
	}
	_ = w.Flush()
	return nil
}
