package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/chain-observer/internal/core/domain"
)

type fakeBackend struct {
	indexed     int64
	indexedErr  error
	heightCalls int
	collections []domain.CollectionTarget
	nfts        [][]domain.NftTarget
	modules     []domain.Module
}

func (f *fakeBackend) LastIndexedHeight(ctx context.Context) (int64, error) {
	f.heightCalls++
	return f.indexed, f.indexedErr
}

func (f *fakeBackend) TriggerCollectionUpdate(ctx context.Context, module domain.Module, denomIDs, collectionIDs []string, height int64) error {
	f.modules = append(f.modules, module)
	f.collections = append(f.collections, domain.CollectionTarget{DenomIDs: denomIDs, CollectionIDs: collectionIDs})
	return nil
}

func (f *fakeBackend) TriggerNftUpdate(ctx context.Context, module domain.Module, nfts []domain.NftTarget, height int64) error {
	f.modules = append(f.modules, module)
	f.nfts = append(f.nfts, nfts)
	return nil
}

func newDispatcher(b *fakeBackend) *Dispatcher {
	return New(b, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatcher_GateBlocksWhenIndexerBehind(t *testing.T) {
	b := &fakeBackend{indexed: 500}
	d := newDispatcher(b)

	err := d.Nfts(context.Background(), domain.ModuleMarketplace, []domain.NftTarget{{DenomID: "d1", TokenID: "7"}}, 600)
	assert.ErrorIs(t, err, domain.ErrIndexerBehind)
	assert.Empty(t, b.nfts)

	err = d.Collections(context.Background(), domain.ModuleNft, domain.CollectionTarget{DenomIDs: []string{"d1"}}, 600)
	assert.ErrorIs(t, err, domain.ErrIndexerBehind)
	assert.Empty(t, b.collections)
}

func TestDispatcher_DispatchesWhenCaughtUp(t *testing.T) {
	for _, indexed := range []int64{600, 650} {
		b := &fakeBackend{indexed: indexed}
		d := newDispatcher(b)

		require.NoError(t, d.Nfts(context.Background(), domain.ModuleNft, []domain.NftTarget{{DenomID: "d1", TokenID: "7"}}, 600))
		require.NoError(t, d.Collections(context.Background(), domain.ModuleMarketplace, domain.CollectionTarget{CollectionIDs: []string{"3"}}, 600))

		assert.Len(t, b.nfts, 1)
		assert.Len(t, b.collections, 1)
		assert.Equal(t, []domain.Module{domain.ModuleNft, domain.ModuleMarketplace}, b.modules)
	}
}

func TestDispatcher_EmptyTargetsSkipGate(t *testing.T) {
	b := &fakeBackend{indexed: 0}
	d := newDispatcher(b)

	require.NoError(t, d.Nfts(context.Background(), domain.ModuleNft, nil, 600))
	require.NoError(t, d.Collections(context.Background(), domain.ModuleNft, domain.CollectionTarget{}, 600))
	assert.Equal(t, 0, b.heightCalls)
}

func TestDispatcher_HeightErrorIsNotIndexerBehind(t *testing.T) {
	b := &fakeBackend{indexedErr: errors.New("connection refused")}
	d := newDispatcher(b)

	err := d.Nfts(context.Background(), domain.ModuleNft, []domain.NftTarget{{DenomID: "d1", TokenID: "7"}}, 600)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrIndexerBehind)
}
