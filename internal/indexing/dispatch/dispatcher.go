// Package dispatch asks the backend to refresh collections and NFTs once its
// indexer has caught up with the observed height.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/indexing/metrics"
)

// Backend is the part of the backend API the dispatcher calls.
type Backend interface {
	LastIndexedHeight(ctx context.Context) (int64, error)
	TriggerCollectionUpdate(ctx context.Context, module domain.Module, denomIDs, collectionIDs []string, height int64) error
	TriggerNftUpdate(ctx context.Context, module domain.Module, nfts []domain.NftTarget, height int64) error
}

// Dispatcher sends update triggers behind the consistency gate: nothing is
// dispatched while the backend's indexer is below maxHeight, since the
// backend would re-derive state from stale data.
type Dispatcher struct {
	backend Backend
	logger  *slog.Logger
}

// New creates a dispatcher.
func New(backend Backend, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{backend: backend, logger: logger.With("component", "dispatcher")}
}

// Collections triggers a refresh of the target's collections.
func (d *Dispatcher) Collections(ctx context.Context, module domain.Module, target domain.CollectionTarget, maxHeight int64) error {
	if target.Empty() {
		return nil
	}
	if err := d.gate(ctx, module, maxHeight); err != nil {
		return err
	}

	if err := d.backend.TriggerCollectionUpdate(ctx, module, target.DenomIDs, target.CollectionIDs, maxHeight); err != nil {
		metrics.DispatchTotal.WithLabelValues(string(module), "collection", "error").Inc()
		return fmt.Errorf("trigger %s collection update: %w", module, err)
	}
	metrics.DispatchTotal.WithLabelValues(string(module), "collection", "ok").Inc()

	d.logger.Info("Triggered collection update",
		"module", module,
		"denoms", len(target.DenomIDs),
		"collections", len(target.CollectionIDs),
		"height", maxHeight,
	)
	return nil
}

// Nfts triggers a refresh of the NFTs.
func (d *Dispatcher) Nfts(ctx context.Context, module domain.Module, nfts []domain.NftTarget, maxHeight int64) error {
	if len(nfts) == 0 {
		return nil
	}
	if err := d.gate(ctx, module, maxHeight); err != nil {
		return err
	}

	if err := d.backend.TriggerNftUpdate(ctx, module, nfts, maxHeight); err != nil {
		metrics.DispatchTotal.WithLabelValues(string(module), "nft", "error").Inc()
		return fmt.Errorf("trigger %s nft update: %w", module, err)
	}
	metrics.DispatchTotal.WithLabelValues(string(module), "nft", "ok").Inc()

	d.logger.Info("Triggered nft update", "module", module, "nfts", len(nfts), "height", maxHeight)
	return nil
}

func (d *Dispatcher) gate(ctx context.Context, module domain.Module, maxHeight int64) error {
	indexed, err := d.backend.LastIndexedHeight(ctx)
	if err != nil {
		return fmt.Errorf("last indexed height: %w", err)
	}
	if indexed < maxHeight {
		metrics.DispatchTotal.WithLabelValues(string(module), "gate", "behind").Inc()
		return fmt.Errorf("%w: indexed %d, observed %d", domain.ErrIndexerBehind, indexed, maxHeight)
	}
	return nil
}
