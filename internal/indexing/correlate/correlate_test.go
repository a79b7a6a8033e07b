package correlate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/infra/storage/memory"
)

func TestTargets_Dedup(t *testing.T) {
	meta := domain.EventMeta{Type: "buy_nft", TxHash: "T1", Height: 10}
	events := []domain.ClassifiedEvent{
		domain.MarketplaceNftEvent{EventMeta: meta, DenomID: "d1", TokenID: "7"},
		domain.MarketplaceNftEvent{EventMeta: meta, DenomID: "d1", TokenID: "7"},
		domain.MarketplaceNftEvent{EventMeta: meta, DenomID: "d1", TokenID: "7"},
		domain.MarketplaceNftEvent{EventMeta: meta, DenomID: "d1", TokenID: "8"},
	}

	s := Targets(events)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []domain.NftTarget{{DenomID: "d1", TokenID: "7"}, {DenomID: "d1", TokenID: "8"}}, s.Nfts())
	assert.True(t, s.Collections().Empty())
}

func TestTargets_Collections(t *testing.T) {
	meta := domain.EventMeta{TxHash: "T1", Height: 10}
	events := []domain.ClassifiedEvent{
		domain.MarketplaceCollectionEvent{EventMeta: meta, DenomID: "d2"},
		domain.MarketplaceCollectionEvent{EventMeta: meta, CollectionID: "5"},
		domain.MarketplaceCollectionEvent{EventMeta: meta, DenomID: "d1", CollectionID: "5"},
		domain.NftModuleCollectionEvent{EventMeta: meta, DenomID: "d2"},
		domain.NftModuleNftEvent{EventMeta: meta, DenomID: "d2", TokenID: "1"},
	}

	s := Targets(events)
	assert.Equal(t, domain.CollectionTarget{DenomIDs: []string{"d1", "d2"}, CollectionIDs: []string{"5"}}, s.Collections())
	assert.Len(t, s.Nfts(), 1)
	assert.Equal(t, 4, s.Len())
}

// =============================================================================
// Correlator
// =============================================================================

type fakeSink struct {
	pushed [][]domain.PurchaseTransaction
	err    error
}

func (f *fakeSink) RecordPurchaseTransactions(ctx context.Context, purchases []domain.PurchaseTransaction) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, purchases)
	return nil
}

func newCorrelator() (*Correlator, *memory.PurchaseRepo, *fakeSink) {
	repo := memory.NewPurchaseRepo(memory.NewMemoryStorage())
	sink := &fakeSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCorrelator(repo, sink, logger), repo, sink
}

func status(t *testing.T, repo *memory.PurchaseRepo, hash string) domain.PurchaseTransaction {
	t.Helper()
	rows, err := repo.GetByHashes(context.Background(), []string{hash})
	require.NoError(t, err)
	return rows[hash]
}

func TestCorrelator_PurchaseLifecycle(t *testing.T) {
	c, repo, sink := newCorrelator()
	ctx := context.Background()

	n, err := c.RecordFunds(ctx, []domain.FundsReceivedEvent{{EventMeta: domain.EventMeta{TxHash: "h1"}, Timestamp: 1000}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.PurchaseTransaction{TxHash: "h1", Status: domain.PurchaseStatusPending, Timestamp: 1000}, status(t, repo, "h1"))

	n, err = c.RecordRefunds(ctx, []domain.RefundEvent{{RefTxHash: "h1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.PurchaseStatusRefunded, status(t, repo, "h1").Status)

	n, err = c.RecordMints(ctx, []domain.MintSuccessEvent{{RefTxHash: "h1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, domain.PurchaseStatusRefunded, status(t, repo, "h1").Status)
	assert.Equal(t, int64(1000), status(t, repo, "h1").Timestamp)

	assert.Len(t, sink.pushed, 2, "the no-op mint is not pushed")
}

func TestCorrelator_RestartKeepsTerminalState(t *testing.T) {
	c1, repo, sink := newCorrelator()
	ctx := context.Background()

	_, err := c1.RecordFunds(ctx, []domain.FundsReceivedEvent{{EventMeta: domain.EventMeta{TxHash: "h1"}, Timestamp: 1000}})
	require.NoError(t, err)
	_, err = c1.RecordRefunds(ctx, []domain.RefundEvent{{RefTxHash: "h1"}})
	require.NoError(t, err)
	require.Len(t, sink.pushed, 2)

	// A new process over the same ledger
	c2 := NewCorrelator(repo, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n, err := c2.RecordMints(ctx, []domain.MintSuccessEvent{{RefTxHash: "h1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, sink.pushed, 2)
	for _, batch := range sink.pushed {
		for _, p := range batch {
			assert.NotEqual(t, domain.PurchaseStatusSuccess, p.Status)
		}
	}
	assert.Equal(t, domain.PurchaseStatusRefunded, status(t, repo, "h1").Status)
}

func TestCorrelator_Redelivery(t *testing.T) {
	c, _, sink := newCorrelator()
	ctx := context.Background()
	funds := []domain.FundsReceivedEvent{{EventMeta: domain.EventMeta{TxHash: "h1"}, Timestamp: 1000}}

	_, err := c.RecordFunds(ctx, funds)
	require.NoError(t, err)
	n, err := c.RecordFunds(ctx, funds)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, sink.pushed, 1)
}

func TestCorrelator_TerminalWithoutFunds(t *testing.T) {
	c, repo, sink := newCorrelator()

	n, err := c.RecordMints(context.Background(), []domain.MintSuccessEvent{
		{RefTxHash: "h2"},
		{RefTxHash: "h2"},
		{RefTxHash: "h3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sink.pushed, 1)
	assert.Equal(t, []domain.PurchaseTransaction{
		{TxHash: "h2", Status: domain.PurchaseStatusSuccess},
		{TxHash: "h3", Status: domain.PurchaseStatusSuccess},
	}, sink.pushed[0])
	assert.Equal(t, domain.PurchaseStatusSuccess, status(t, repo, "h3").Status)
}

func TestCorrelator_PushFailureLeavesLedger(t *testing.T) {
	c, repo, sink := newCorrelator()
	sink.err = errors.New("backend down")

	_, err := c.RecordFunds(context.Background(), []domain.FundsReceivedEvent{{EventMeta: domain.EventMeta{TxHash: "h1"}, Timestamp: 1}})
	require.Error(t, err)

	rows, err := repo.GetByHashes(context.Background(), []string{"h1"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
