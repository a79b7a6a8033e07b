package correlate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/indexing/metrics"
	"github.com/vietddude/chain-observer/internal/infra/storage"
)

// PurchaseSink receives purchase status changes. The backend implements it.
type PurchaseSink interface {
	RecordPurchaseTransactions(ctx context.Context, purchases []domain.PurchaseTransaction) error
}

// Correlator applies funds, refund and mint observations to the purchase
// ledger. A refund or mint references the funds transaction by hash in its
// memo.
type Correlator struct {
	repo   storage.PurchaseRepository
	sink   PurchaseSink
	logger *slog.Logger
}

// NewCorrelator creates a correlator.
func NewCorrelator(repo storage.PurchaseRepository, sink PurchaseSink, logger *slog.Logger) *Correlator {
	return &Correlator{
		repo:   repo,
		sink:   sink,
		logger: logger.With("component", "correlator"),
	}
}

type observation struct {
	txHash    string
	status    domain.PurchaseStatus
	timestamp int64
}

// RecordFunds creates pending purchases. It returns the number of purchases
// that changed.
func (c *Correlator) RecordFunds(ctx context.Context, events []domain.FundsReceivedEvent) (int, error) {
	obs := make([]observation, 0, len(events))
	for _, e := range events {
		obs = append(obs, observation{txHash: e.TxHash, status: domain.PurchaseStatusPending, timestamp: e.Timestamp})
	}
	return c.apply(ctx, obs)
}

// RecordRefunds moves the referenced purchases to refunded.
func (c *Correlator) RecordRefunds(ctx context.Context, events []domain.RefundEvent) (int, error) {
	obs := make([]observation, 0, len(events))
	for _, e := range events {
		obs = append(obs, observation{txHash: e.RefTxHash, status: domain.PurchaseStatusRefunded})
	}
	return c.apply(ctx, obs)
}

// RecordMints moves the referenced purchases to success.
func (c *Correlator) RecordMints(ctx context.Context, events []domain.MintSuccessEvent) (int, error) {
	obs := make([]observation, 0, len(events))
	for _, e := range events {
		obs = append(obs, observation{txHash: e.RefTxHash, status: domain.PurchaseStatusSuccess})
	}
	return c.apply(ctx, obs)
}

func (c *Correlator) apply(ctx context.Context, obs []observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	hashes := make([]string, 0, len(obs))
	seen := make(map[string]struct{}, len(obs))
	for _, o := range obs {
		if _, ok := seen[o.txHash]; ok {
			continue
		}
		seen[o.txHash] = struct{}{}
		hashes = append(hashes, o.txHash)
	}

	existing, err := c.repo.GetByHashes(ctx, hashes)
	if err != nil {
		return 0, fmt.Errorf("load purchases: %w", err)
	}

	rows := make(map[string]*domain.PurchaseTransaction, len(hashes))
	for _, h := range hashes {
		row := domain.PurchaseTransaction{TxHash: h}
		if p, ok := existing[h]; ok {
			row = p
		}
		rows[h] = &row
	}

	// A refund or mint whose funds tx was never observed creates the row
	// directly in its terminal status.
	changed := make(map[string]struct{})
	for _, o := range obs {
		if rows[o.txHash].Apply(o.status, o.timestamp) {
			changed[o.txHash] = struct{}{}
		} else {
			c.logger.Debug("Purchase unchanged", "tx", o.txHash, "status", rows[o.txHash].Status, "observed", o.status)
		}
	}
	if len(changed) == 0 {
		return 0, nil
	}

	updates := make([]domain.PurchaseTransaction, 0, len(changed))
	for _, h := range hashes {
		if _, ok := changed[h]; ok {
			updates = append(updates, *rows[h])
		}
	}

	if err := c.sink.RecordPurchaseTransactions(ctx, updates); err != nil {
		return 0, fmt.Errorf("push purchases: %w", err)
	}
	if err := c.repo.SaveBatch(ctx, updates); err != nil {
		return 0, fmt.Errorf("save purchases: %w", err)
	}

	for _, p := range updates {
		metrics.PurchaseUpdates.WithLabelValues(string(p.Status)).Inc()
		c.logger.Info("Purchase updated", "tx", p.TxHash, "status", p.Status)
	}
	return len(updates), nil
}
