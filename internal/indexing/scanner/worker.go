// Package scanner runs the observer pass: lock the checkpoint, bound the
// window, run the five scans in order and commit only when all succeed.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/chain-observer/internal/core/checkpoint"
	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/indexing/correlate"
	"github.com/vietddude/chain-observer/internal/indexing/metrics"
)

var (
	// ErrRunInProgress is returned by Scan when another run holds the lock.
	ErrRunInProgress = errors.New("another run is in progress")
)

// HeadSource reports the chain head.
type HeadSource interface {
	Height(ctx context.Context) (int64, error)
}

// EventSource produces the classified events of each scan.
type EventSource interface {
	Marketplace(ctx context.Context, w domain.HeightWindow) ([]domain.ClassifiedEvent, error)
	NftModule(ctx context.Context, w domain.HeightWindow) ([]domain.ClassifiedEvent, error)
	FundsReceived(ctx context.Context, w domain.HeightWindow) ([]domain.FundsReceivedEvent, error)
	Refunds(ctx context.Context, w domain.HeightWindow) ([]domain.RefundEvent, error)
	MintSuccesses(ctx context.Context, w domain.HeightWindow) ([]domain.MintSuccessEvent, error)
}

// PurchaseCorrelator applies on-demand mint observations.
type PurchaseCorrelator interface {
	RecordFunds(ctx context.Context, events []domain.FundsReceivedEvent) (int, error)
	RecordRefunds(ctx context.Context, events []domain.RefundEvent) (int, error)
	RecordMints(ctx context.Context, events []domain.MintSuccessEvent) (int, error)
}

// UpdateDispatcher triggers backend refreshes.
type UpdateDispatcher interface {
	Collections(ctx context.Context, module domain.Module, target domain.CollectionTarget, maxHeight int64) error
	Nfts(ctx context.Context, module domain.Module, nfts []domain.NftTarget, maxHeight int64) error
}

// FailureHandler is told about every failed run.
type FailureHandler interface {
	OnFailure(ctx context.Context, err error, fields map[string]string) bool
}

// DistributedLock serializes runs across processes.
type DistributedLock interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// Config tunes the worker.
type Config struct {
	MaxBlocksPerRun int64
	// RunTimeout bounds one pass; zero disables it.
	RunTimeout time.Duration
}

// Deps are the collaborators of a Worker. Lock may be nil.
type Deps struct {
	Checkpoints checkpoint.Manager
	Head        HeadSource
	Events      EventSource
	Correlator  PurchaseCorrelator
	Dispatcher  UpdateDispatcher
	Failures    FailureHandler
	Lock        DistributedLock
}

// Status summarises the recent runs.
type Status struct {
	LastRunAt     time.Time
	LastSuccessAt time.Time
	LastWindow    domain.HeightWindow
	LastError     string
	Running       bool
}

// Worker executes observer runs. Runs never overlap.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex

	statusMu sync.RWMutex
	status   Status
}

// NewWorker creates a worker.
func NewWorker(deps Deps, cfg Config, logger *slog.Logger) *Worker {
	return &Worker{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With("component", "scanner"),
	}
}

// Run executes one pass and hands any failure to the failure handler. A
// pass skipped because another one holds the lock is not a failure.
func (w *Worker) Run(ctx context.Context) {
	runID := uuid.NewString()
	window, err := w.scan(ctx, runID)
	if err == nil || errors.Is(err, ErrRunInProgress) {
		return
	}

	fields := map[string]string{
		"run_id": runID,
		"from":   strconv.FormatInt(window.From(), 10),
		"to":     strconv.FormatInt(window.Max, 10),
	}
	w.deps.Failures.OnFailure(ctx, err, fields)
}

// Scan executes one pass and returns the committed window.
func (w *Worker) Scan(ctx context.Context) (domain.HeightWindow, error) {
	return w.scan(ctx, uuid.NewString())
}

// Status returns a snapshot of the recent runs.
func (w *Worker) Status() Status {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()
	return w.status
}

func (w *Worker) scan(ctx context.Context, runID string) (window domain.HeightWindow, err error) {
	logger := w.logger.With("run_id", runID)

	if !w.mu.TryLock() {
		logger.Warn("Previous run still in progress, skipping")
		metrics.RunsTotal.WithLabelValues("skipped").Inc()
		return window, ErrRunInProgress
	}
	defer w.mu.Unlock()

	if w.deps.Lock != nil {
		unlock, ok, err := w.deps.Lock.TryLock(ctx)
		if err != nil {
			metrics.RunsTotal.WithLabelValues("failure").Inc()
			return window, fmt.Errorf("run lock: %w", err)
		}
		if !ok {
			logger.Info("Run lock held by another instance, skipping")
			metrics.RunsTotal.WithLabelValues("skipped").Inc()
			return window, ErrRunInProgress
		}
		defer unlock()
	}

	if w.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	w.setStatus(func(s *Status) {
		s.Running = true
		s.LastRunAt = start
	})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}

		metrics.RunDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.RunsTotal.WithLabelValues("failure").Inc()
			logger.Error("Run failed", "error", err, "duration", time.Since(start))
		} else {
			metrics.RunsTotal.WithLabelValues("success").Inc()
			metrics.LastSuccessTimestamp.Set(float64(time.Now().Unix()))
		}

		w.setStatus(func(s *Status) {
			s.Running = false
			if err != nil {
				s.LastError = err.Error()
				return
			}
			s.LastError = ""
			s.LastSuccessAt = time.Now()
			s.LastWindow = window
		})
	}()

	window, err = w.pass(ctx, logger)
	return window, err
}

func (w *Worker) pass(ctx context.Context, logger *slog.Logger) (domain.HeightWindow, error) {
	run, err := w.deps.Checkpoints.Begin(ctx)
	if err != nil {
		return domain.HeightWindow{}, err
	}
	defer run.Release()

	head, err := w.deps.Head.Height(ctx)
	if err != nil {
		return domain.HeightWindow{Min: run.Height(), Max: run.Height()}, fmt.Errorf("chain height: %w", err)
	}
	metrics.ChainHeadHeight.Set(float64(head))

	window := domain.NewHeightWindow(run.Height(), head, w.cfg.MaxBlocksPerRun)
	metrics.WindowBlocks.Set(float64(window.Blocks()))
	if head < run.Height() {
		logger.Warn("Chain head below checkpoint", "head", head, "checkpoint", run.Height())
	}

	logger.Info("Scanning window",
		"from", window.From(),
		"to", window.Max,
		"head", head,
		"blocks", window.Blocks(),
	)

	steps := []struct {
		name string
		fn   func(context.Context, domain.HeightWindow) error
	}{
		{"marketplace", w.scanMarketplaceTransactions},
		{"nft module", w.scanNftModuleTransactions},
		{"funds received", w.scanFundsReceivedTransactions},
		{"refund", w.scanRefundTransactions},
		{"mint success", w.scanMintSuccessTransactions},
	}
	for _, step := range steps {
		if err := step.fn(ctx, window); err != nil {
			return window, fmt.Errorf("%s scan: %w", step.name, err)
		}
	}

	if err := run.Commit(ctx, window.Max); err != nil {
		return window, err
	}

	logger.Info("Run committed", "height", window.Max)
	return window, nil
}

func (w *Worker) scanMarketplaceTransactions(ctx context.Context, window domain.HeightWindow) error {
	events, err := w.deps.Events.Marketplace(ctx, window)
	if err != nil {
		return err
	}
	return w.dispatch(ctx, domain.ModuleMarketplace, events, window.Max)
}

func (w *Worker) scanNftModuleTransactions(ctx context.Context, window domain.HeightWindow) error {
	events, err := w.deps.Events.NftModule(ctx, window)
	if err != nil {
		return err
	}
	return w.dispatch(ctx, domain.ModuleNft, events, window.Max)
}

func (w *Worker) dispatch(ctx context.Context, module domain.Module, events []domain.ClassifiedEvent, maxHeight int64) error {
	targets := correlate.Targets(events)
	if err := w.deps.Dispatcher.Collections(ctx, module, targets.Collections(), maxHeight); err != nil {
		return err
	}
	return w.deps.Dispatcher.Nfts(ctx, module, targets.Nfts(), maxHeight)
}

func (w *Worker) scanFundsReceivedTransactions(ctx context.Context, window domain.HeightWindow) error {
	events, err := w.deps.Events.FundsReceived(ctx, window)
	if err != nil {
		return err
	}
	_, err = w.deps.Correlator.RecordFunds(ctx, events)
	return err
}

func (w *Worker) scanRefundTransactions(ctx context.Context, window domain.HeightWindow) error {
	events, err := w.deps.Events.Refunds(ctx, window)
	if err != nil {
		return err
	}
	_, err = w.deps.Correlator.RecordRefunds(ctx, events)
	return err
}

func (w *Worker) scanMintSuccessTransactions(ctx context.Context, window domain.HeightWindow) error {
	events, err := w.deps.Events.MintSuccesses(ctx, window)
	if err != nil {
		return err
	}
	_, err = w.deps.Correlator.RecordMints(ctx, events)
	return err
}

func (w *Worker) setStatus(fn func(*Status)) {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	fn(&w.status)
}
