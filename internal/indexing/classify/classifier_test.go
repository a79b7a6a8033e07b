package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/infra/chain"
)

const minter = "cudos1minter"

var window = domain.HeightWindow{Min: 100, Max: 600}

// =============================================================================
// Fake chain
// =============================================================================

type fakeChain struct {
	byQuery    map[string][]chain.RawTransaction
	byHash     map[string]chain.RawTransaction
	blockTimes map[int64]time.Time
	blockCalls int
	txErr      error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		byQuery:    make(map[string][]chain.RawTransaction),
		byHash:     make(map[string]chain.RawTransaction),
		blockTimes: make(map[int64]time.Time),
	}
}

func (f *fakeChain) Height(ctx context.Context) (int64, error) { return 600, nil }

func (f *fakeChain) SearchTxs(ctx context.Context, query string, w domain.HeightWindow) ([]chain.RawTransaction, error) {
	return append([]chain.RawTransaction(nil), f.byQuery[query]...), nil
}

func (f *fakeChain) BlockTime(ctx context.Context, height int64) (time.Time, error) {
	f.blockCalls++
	t, ok := f.blockTimes[height]
	if !ok {
		return time.Time{}, errors.New("no such block")
	}
	return t, nil
}

func (f *fakeChain) Tx(ctx context.Context, hash string) (*chain.RawTransaction, error) {
	if f.txErr != nil {
		return nil, f.txErr
	}
	tx, ok := f.byHash[hash]
	if !ok {
		return nil, chain.ErrTxNotFound
	}
	return &tx, nil
}

func encodeTx(memo string) []byte {
	var body []byte
	body = protowire.AppendTag(body, 2, protowire.BytesType)
	body = protowire.AppendString(body, memo)

	var raw []byte
	raw = protowire.AppendTag(raw, 1, protowire.BytesType)
	raw = protowire.AppendBytes(raw, body)
	return raw
}

func hash(c string) string {
	return strings.Repeat(c, 64)
}

func event(typ string, kv ...string) domain.RawEvent {
	ev := domain.RawEvent{Type: typ}
	for i := 0; i+1 < len(kv); i += 2 {
		ev.Attributes = append(ev.Attributes, domain.Attribute{Key: kv[i], Value: kv[i+1]})
	}
	return ev
}

func newClassifier(f *fakeChain) *Classifier {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(f, DefaultFilters(minter), DefaultAllowLists(), logger)
}

// =============================================================================
// Tests
// =============================================================================

func TestClassifier_Marketplace(t *testing.T) {
	f := newFakeChain()
	f.byQuery["message.module='marketplace'"] = []chain.RawTransaction{
		{Hash: "T1", Height: 150, ResultEvents: []domain.RawEvent{
			event("message", "module", "marketplace"),
			event("buy_nft", "token_id", "7", "denom_id", "d1"),
			event("verify_collection", "collection_id", "3"),
		}},
		{Hash: "T2", Height: 151, Code: 5, ResultEvents: []domain.RawEvent{
			event("buy_nft", "token_id", "9", "denom_id", "d9"),
		}},
	}

	events, err := newClassifier(f).Marketplace(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, events, 2)

	nft, ok := events[0].(domain.MarketplaceNftEvent)
	require.True(t, ok)
	assert.Equal(t, "d1", nft.DenomID)
	assert.Equal(t, "7", nft.TokenID)
	assert.Equal(t, "T1", nft.EventTxHash())

	coll, ok := events[1].(domain.MarketplaceCollectionEvent)
	require.True(t, ok)
	assert.Equal(t, "3", coll.CollectionID)
	assert.Empty(t, coll.DenomID)
}

func TestClassifier_MissingAttributeIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		query string
		event domain.RawEvent
		run   func(*Classifier) error
	}{
		{
			name:  "marketplace nft without token id",
			query: "message.module='marketplace'",
			event: event("buy_nft", "denom_id", "d1"),
			run: func(c *Classifier) error {
				_, err := c.Marketplace(context.Background(), window)
				return err
			},
		},
		{
			name:  "marketplace collection without ids",
			query: "message.module='marketplace'",
			event: event("create_collection", "creator", "x"),
			run: func(c *Classifier) error {
				_, err := c.Marketplace(context.Background(), window)
				return err
			},
		},
		{
			name:  "nft module denom without denom id",
			query: "message.module='nft'",
			event: event("issue_denom", "denom_id", ""),
			run: func(c *Classifier) error {
				_, err := c.NftModule(context.Background(), window)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeChain()
			f.byQuery[tt.query] = []chain.RawTransaction{{Hash: "T1", Height: 200, ResultEvents: []domain.RawEvent{tt.event}}}
			err := tt.run(newClassifier(f))
			assert.ErrorIs(t, err, domain.ErrMissingAttribute)
		})
	}
}

func TestClassifier_NftModule(t *testing.T) {
	f := newFakeChain()
	f.byQuery["message.module='nft'"] = []chain.RawTransaction{
		{Hash: "T1", Height: 300, RawLog: `[{"msg_index":0,"events":[` +
			`{"type":"mint_nft","attributes":[{"key":"token_id","value":"1"},{"key":"denom_id","value":"d1"}]},` +
			`{"type":"issue_denom","attributes":[{"key":"denom_id","value":"d2"}]},` +
			`{"type":"approve_nft","attributes":[{"key":"token_id","value":"1"}]}]}]`},
	}

	events, err := newClassifier(f).NftModule(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.NftModuleNftEvent{EventMeta: domain.EventMeta{Type: "mint_nft", TxHash: "T1", Height: 300}, DenomID: "d1", TokenID: "1"}, events[0])
	assert.Equal(t, domain.NftModuleCollectionEvent{EventMeta: domain.EventMeta{Type: "issue_denom", TxHash: "T1", Height: 300}, DenomID: "d2"}, events[1])
}

func TestClassifier_FundsReceived(t *testing.T) {
	f := newFakeChain()
	blockTime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	f.blockTimes[200] = blockTime
	f.byQuery["transfer.recipient='cudos1minter'"] = []chain.RawTransaction{
		{Hash: "F1", Height: 200, Tx: encodeTx(`{"recipientAddress":"cudos1buyer","uuid":"u-1","ethTxhash":""}`)},
		{Hash: "F2", Height: 200, Tx: encodeTx(`{"recipientAddress":"cudos1buyer","uuid":"u-2","ethTxhash":"0xabc"}`)},
		{Hash: "F3", Height: 201, Tx: encodeTx(`{"recipientAddress":"","uuid":"u-3"}`)},
		{Hash: "F4", Height: 202, Tx: encodeTx(`{"recipientAddress":"cudos1buyer","uuid":"presale"}`)},
		{Hash: "F5", Height: 203, Tx: encodeTx("thanks for the coffee")},
	}

	events, err := newClassifier(f).FundsReceived(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "F1", events[0].TxHash)
	assert.Equal(t, blockTime.UnixMilli(), events[0].Timestamp)
	assert.Equal(t, "0xabc", events[1].EthTxHash)
	assert.Equal(t, 1, f.blockCalls, "block time is cached per height")
}

func TestClassifier_Refunds(t *testing.T) {
	f := newFakeChain()
	f.byHash[hash("A")] = chain.RawTransaction{Hash: hash("A"), Tx: encodeTx(`{"recipientAddress":"r","uuid":"u","ethTxhash":""}`)}
	f.byHash[hash("B")] = chain.RawTransaction{Hash: hash("B"), Tx: encodeTx(`{"recipientAddress":"r","uuid":"u","ethTxhash":"0x1"}`)}
	f.byQuery["message.sender='cudos1minter' AND message.action='/cosmos.bank.v1beta1.MsgSend'"] = []chain.RawTransaction{
		{Hash: "R1", Height: 400, Tx: encodeTx(strings.ToLower(hash("A")))},
		{Hash: "R2", Height: 401, Tx: encodeTx(hash("B"))},
		{Hash: "R3", Height: 402, Tx: encodeTx(hash("C"))},
		{Hash: "R4", Height: 403, Tx: encodeTx("")},
		{Hash: "R5", Height: 404, Tx: encodeTx("refund for order 12")},
	}

	events, err := newClassifier(f).Refunds(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, hash("A"), events[0].RefTxHash)
	assert.Equal(t, "R1", events[0].TxHash)
}

func TestClassifier_RefundLookupFailureIsFatal(t *testing.T) {
	f := newFakeChain()
	f.txErr = errors.New("connection refused")
	f.byQuery["message.sender='cudos1minter' AND message.action='/cosmos.bank.v1beta1.MsgSend'"] = []chain.RawTransaction{
		{Hash: "R1", Height: 400, Tx: encodeTx(hash("A"))},
	}

	_, err := newClassifier(f).Refunds(context.Background(), window)
	require.Error(t, err)
	assert.NotErrorIs(t, err, chain.ErrTxNotFound)
}

func TestClassifier_MintSuccesses(t *testing.T) {
	f := newFakeChain()
	f.byQuery["message.sender='cudos1minter' AND message.module='marketplace'"] = []chain.RawTransaction{
		{Hash: "M1", Height: 500, Tx: encodeTx(hash("a"))},
		{Hash: "M2", Height: 501, Tx: encodeTx(`{"note":"not a hash"}`)},
	}

	events, err := newClassifier(f).MintSuccesses(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, hash("A"), events[0].RefTxHash)
}

func TestClassifier_EmptyWindowSkipsChain(t *testing.T) {
	f := newFakeChain()
	f.byQuery["message.module='marketplace'"] = []chain.RawTransaction{
		{Hash: "T1", Height: 150, ResultEvents: []domain.RawEvent{event("buy_nft", "token_id", "7", "denom_id", "d1")}},
	}

	events, err := newClassifier(f).Marketplace(context.Background(), domain.HeightWindow{Min: 600, Max: 600})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFilters_WithOverrides(t *testing.T) {
	f := DefaultFilters(minter).WithOverrides("", "message.module='onft'", "", "", "")
	assert.Equal(t, "message.module='marketplace'", f.Marketplace.Query)
	assert.Equal(t, "message.module='onft'", f.NftModule.Query)

	a := DefaultAllowLists().WithOverrides(nil, nil, []string{"mint_onft"}, nil)
	assert.True(t, a.NftModuleNft.Contains("mint_onft"))
	assert.False(t, a.NftModuleNft.Contains("mint_nft"))
	assert.True(t, a.MarketplaceNft.Contains("buy_nft"))
}
