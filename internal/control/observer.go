// Package control wires the observer together and owns its lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/chain-observer/internal/core/checkpoint"
	"github.com/vietddude/chain-observer/internal/core/config"
	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/indexing/alert"
	"github.com/vietddude/chain-observer/internal/indexing/classify"
	"github.com/vietddude/chain-observer/internal/indexing/correlate"
	"github.com/vietddude/chain-observer/internal/indexing/dispatch"
	"github.com/vietddude/chain-observer/internal/indexing/health"
	"github.com/vietddude/chain-observer/internal/indexing/scanner"
	"github.com/vietddude/chain-observer/internal/infra/backend"
	"github.com/vietddude/chain-observer/internal/infra/chain"
	"github.com/vietddude/chain-observer/internal/infra/chain/cosmos"
	redisclient "github.com/vietddude/chain-observer/internal/infra/redis"
	"github.com/vietddude/chain-observer/internal/infra/rpc"
	"github.com/vietddude/chain-observer/internal/infra/rpc/provider"
	"github.com/vietddude/chain-observer/internal/infra/rpc/routing"
	"github.com/vietddude/chain-observer/internal/infra/storage"
	"github.com/vietddude/chain-observer/internal/infra/storage/memory"
	"github.com/vietddude/chain-observer/internal/infra/storage/postgres"
)

// ErrOverrideNeedsLock is returned by SetCheckpoint when nothing keeps the
// override from racing a run in another process.
var ErrOverrideNeedsLock = errors.New("backend checkpoint store needs redis to override the checkpoint safely")

// Observer is the main application struct that manages the run loop.
type Observer struct {
	cfg *config.AppConfig

	worker      *scanner.Worker
	checkpoints checkpoint.Manager
	// head is cached for health probes and status; runs read the node directly.
	head        scanner.HeadSource
	purchases   storage.PurchaseRepository
	policy      *alert.Policy
	// lock is the cross-process run lock, nil without redis.
	lock        scanner.DistributedLock
	lockRetry   time.Duration

	healthMon    *health.Monitor
	healthServer *health.Server

	rpcClient   *rpc.Client
	grpc        *provider.GRPCProvider
	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// StatusReport is a point-in-time view for operators.
type StatusReport struct {
	CheckpointName string
	Checkpoint     int64
	ChainHead      int64
	Lag            int64
	HeadError      error
	Purchases      map[domain.PurchaseStatus]int
}

// New creates an Observer with all dependencies initialized. Close releases
// them, also when New fails halfway.
func New(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (_ *Observer, err error) {
	o := &Observer{cfg: cfg, log: logger, lockRetry: time.Second}
	defer func() {
		if err != nil {
			_ = o.Close()
		}
	}()

	// 1. Storage
	var checkpointRepo storage.CheckpointRepository
	var store *memory.MemoryStorage

	if cfg.Database.URL != "" {
		o.db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := postgres.Migrate(o.db); err != nil {
			return nil, err
		}
		o.purchases = postgres.NewPurchaseRepo(o.db)
		logger.Info("Using PostgreSQL purchase ledger")
	} else {
		store = memory.NewMemoryStorage()
		o.purchases = memory.NewPurchaseRepo(store)
		logger.Warn("Using in-memory purchase ledger, state is lost on restart")
	}

	// 2. Backend
	backendClient, err := backend.NewClient(backend.Config{
		URL:          cfg.Backend.URL,
		APIKey:       cfg.Backend.APIKey,
		APIKeyHeader: cfg.Backend.APIKeyHeader,
		Timeout:      cfg.Backend.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init backend client: %w", err)
	}

	switch cfg.Checkpoint.Store {
	case config.StorePostgres:
		checkpointRepo = postgres.NewCheckpointRepo(o.db)
	case config.StoreBackend:
		checkpointRepo = backend.NewCheckpointRepo(backendClient)
	default:
		if store == nil {
			store = memory.NewMemoryStorage()
		}
		checkpointRepo = memory.NewCheckpointRepo(store)
	}
	logger.Info("Checkpoint store selected", "store", cfg.Checkpoint.Store, "name", cfg.Observer.CheckpointName)

	o.checkpoints = checkpoint.NewManager(checkpointRepo, cfg.Observer.CheckpointName, cfg.Observer.InitialHeight)

	// 3. Chain RPC
	router := routing.NewRouter()
	for _, p := range cfg.Chain.Providers {
		router.AddProvider(provider.NewHTTPProvider(p.Name, p.URL, cfg.Chain.Timeout, cfg.Chain.RateLimit))
	}
	o.rpcClient = rpc.NewClient(router, routing.DefaultRetryConfig)

	chainClient := cosmos.NewClient(o.rpcClient, cosmos.Options{
		PerPage:      cfg.Chain.PerPage,
		Base64Events: cfg.Chain.Base64Events,
	})
	o.head = chain.NewHeadCache(chainClient, cfg.Observer.ScanInterval)

	if cfg.Chain.GRPCURL != "" {
		o.grpc, err = provider.NewGRPCProvider("grpc", cfg.Chain.GRPCURL)
		if err != nil {
			return nil, err
		}
	}

	// 4. Alerting
	alerters := []alert.Alerter{alert.NewLogAlerter(logger)}
	if cfg.Alert.SlackWebhookURL != "" {
		alerters = append(alerters, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		alerters = append(alerters, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if cfg.Alert.EmailSMTPHost != "" {
		alerters = append(alerters, alert.NewEmailAlerter(alert.EmailConfig{
			Host:     cfg.Alert.EmailSMTPHost,
			Port:     cfg.Alert.EmailSMTPPort,
			Username: cfg.Alert.EmailUsername,
			Password: cfg.Alert.EmailPassword,
			From:     cfg.Alert.EmailFrom,
			To:       cfg.Alert.EmailTo,
		}))
	}
	o.policy = alert.NewPolicy(alert.Config{
		Cooldown:    cfg.Alert.Cooldown,
		SendTimeout: cfg.Alert.SendTimeout,
	}, clock.NewDefaultClock(), alert.NewMultiAlerter(logger, alerters...), logger)

	// 5. Run lock
	deps := scanner.Deps{
		Checkpoints: o.checkpoints,
		Head:        chainClient,
		Failures:    o.policy,
	}
	if cfg.Redis.URL != "" {
		o.redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		o.lock = redisclient.NewRunLock(o.redisClient, cfg.Observer.CheckpointName, cfg.Redis.LockTTL)
		deps.Lock = o.lock
		logger.Info("Distributed run lock enabled")
	} else if cfg.Checkpoint.Store == config.StoreBackend {
		logger.Warn("Backend checkpoint store without redis only serializes runs within this process")
	}

	// 6. Pipeline
	filters := classify.DefaultFilters(cfg.Observer.MinterAddress).WithOverrides(
		cfg.Observer.Filters.Marketplace,
		cfg.Observer.Filters.NftModule,
		cfg.Observer.Filters.FundsReceived,
		cfg.Observer.Filters.Refund,
		cfg.Observer.Filters.MintSuccess,
	)
	types := classify.DefaultAllowLists().WithOverrides(
		cfg.Observer.EventTypes.MarketplaceNft,
		cfg.Observer.EventTypes.MarketplaceCollection,
		cfg.Observer.EventTypes.NftModuleNft,
		cfg.Observer.EventTypes.NftModuleCollection,
	)
	deps.Events = classify.New(chainClient, filters, types, logger)
	deps.Correlator = correlate.NewCorrelator(o.purchases, backendClient, logger)
	deps.Dispatcher = dispatch.New(backendClient, logger)

	o.worker = scanner.NewWorker(deps, scanner.Config{
		MaxBlocksPerRun: cfg.Observer.MaxBlocksPerRun,
		RunTimeout:      cfg.Observer.RunTimeout,
	}, logger)

	// 7. Health
	providers := make([]provider.Provider, 0, len(cfg.Chain.Providers)+1)
	for _, p := range o.rpcClient.Providers() {
		providers = append(providers, p)
	}
	if o.grpc != nil {
		providers = append(providers, o.grpc)
	}
	pingers := map[string]health.Pinger{}
	if o.db != nil {
		pingers["postgres"] = o.db
	}
	if o.redisClient != nil {
		pingers["redis"] = o.redisClient
	}

	thresholds := health.DefaultThresholds
	thresholds.StaleAfter = 6 * cfg.Observer.RunTimeout
	o.healthMon = health.NewMonitor(o.checkpoints, o.head, o.worker, providers, pingers, thresholds)
	o.healthServer = health.NewServer(o.healthMon, cfg.Server.Port)

	return o, nil
}

// Run serves health endpoints and runs the observer every scan interval
// until ctx is cancelled. The first run starts immediately.
func (o *Observer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.log.Info("Health server listening", "port", o.cfg.Server.Port)
		return o.healthServer.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return o.healthServer.Stop(shutdownCtx)
	})

	if o.db != nil {
		o.db.StartMetricsCollector(ctx)
	}

	g.Go(func() error {
		o.schedule(ctx)
		return nil
	})

	err := g.Wait()
	o.policy.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// schedule runs the worker on every tick. Runs are sequential, so a tick
// that fires during a slow run is dropped by the ticker.
func (o *Observer) schedule(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Observer.ScanInterval)
	defer ticker.Stop()

	o.log.Info("Observer started",
		"interval", o.cfg.Observer.ScanInterval,
		"max_blocks_per_run", o.cfg.Observer.MaxBlocksPerRun,
	)

	for {
		o.worker.Run(ctx)

		select {
		case <-ctx.Done():
			o.log.Info("Observer stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single pass and waits for any alert it triggered.
func (o *Observer) RunOnce(ctx context.Context) (domain.HeightWindow, error) {
	window, err := o.worker.Scan(ctx)
	if err != nil && !errors.Is(err, scanner.ErrRunInProgress) {
		o.policy.OnFailure(ctx, err, map[string]string{"mode": "run-once"})
		o.policy.Wait()
	}
	return window, err
}

// Status reports the checkpoint, chain head and purchase ledger.
func (o *Observer) Status(ctx context.Context) (*StatusReport, error) {
	cp, err := o.checkpoints.Get(ctx)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		CheckpointName: o.cfg.Observer.CheckpointName,
		Checkpoint:     cp,
	}

	head, err := o.head.Height(ctx)
	if err != nil {
		report.HeadError = err
	} else {
		report.ChainHead = head
		if report.Lag, err = o.checkpoints.Lag(ctx, head); err != nil {
			return nil, err
		}
	}

	if report.Purchases, err = o.purchases.CountByStatus(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

// SetCheckpoint overrides the last checked height and returns the previous
// one. With a run lock configured it waits until no run holds it.
func (o *Observer) SetCheckpoint(ctx context.Context, height int64) (int64, error) {
	if o.lock == nil && o.cfg.Checkpoint.Store == config.StoreBackend {
		return 0, ErrOverrideNeedsLock
	}
	if o.lock != nil {
		unlock, err := o.waitForRunLock(ctx)
		if err != nil {
			return 0, err
		}
		defer unlock()
	}

	prev, err := o.checkpoints.Override(ctx, height)
	if err != nil {
		return 0, err
	}
	o.log.Warn("Checkpoint overridden", "name", o.cfg.Observer.CheckpointName, "from", prev, "to", height)
	return prev, nil
}

func (o *Observer) waitForRunLock(ctx context.Context) (func(), error) {
	ticker := time.NewTicker(o.lockRetry)
	defer ticker.Stop()

	for {
		unlock, ok, err := o.lock.TryLock(ctx)
		if err != nil {
			return nil, fmt.Errorf("run lock: %w", err)
		}
		if ok {
			return unlock, nil
		}
		o.log.Info("Run in progress, waiting for the run lock")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for run lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases every connection.
func (o *Observer) Close() error {
	var errs []error
	if o.rpcClient != nil {
		errs = append(errs, o.rpcClient.Close())
	}
	if o.grpc != nil {
		errs = append(errs, o.grpc.Close())
	}
	if o.redisClient != nil {
		errs = append(errs, o.redisClient.Close())
	}
	if o.db != nil {
		errs = append(errs, o.db.Close())
	}
	return errors.Join(errs...)
}
