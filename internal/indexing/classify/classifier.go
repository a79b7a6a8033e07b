// Package classify turns the transactions of a height window into typed
// events. Each scan runs one Tendermint query and keeps only the events of
// its allow-lists.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/indexing/metrics"
	"github.com/vietddude/chain-observer/internal/infra/chain"
)

// Attribute keys carried by marketplace and NFT module events.
const (
	attrDenomID      = "denom_id"
	attrTokenID      = "token_id"
	attrCollectionID = "collection_id"
)

// Skip reasons reported in metrics.
const (
	skipFailedTx    = "failed_tx"
	skipBadMemo     = "bad_memo"
	skipEmptyMemo   = "empty_memo"
	skipNoRecipient = "no_recipient"
	skipPresale     = "presale"
	skipUnknownRef  = "unknown_ref"
	skipRelayerPaid = "relayer_paid"
)

// Classifier runs the five scans against a chain client.
type Classifier struct {
	chain   chain.Client
	filters Filters
	types   AllowLists
	logger  *slog.Logger
}

// New creates a classifier.
func New(client chain.Client, filters Filters, types AllowLists, logger *slog.Logger) *Classifier {
	return &Classifier{
		chain:   client,
		filters: filters,
		types:   types,
		logger:  logger.With("component", "classifier"),
	}
}

// Filters returns the queries in use.
func (c *Classifier) Filters() Filters {
	return c.filters
}

// Marketplace returns the allow-listed marketplace events of the window.
func (c *Classifier) Marketplace(ctx context.Context, w domain.HeightWindow) ([]domain.ClassifiedEvent, error) {
	txs, err := c.search(ctx, c.filters.Marketplace, w)
	if err != nil {
		return nil, err
	}

	var out []domain.ClassifiedEvent
	for _, tx := range txs {
		for _, ev := range tx.Events() {
			meta := domain.EventMeta{Type: ev.Type, TxHash: tx.Hash, Height: tx.Height}
			switch {
			case c.types.MarketplaceNft.Contains(ev.Type):
				denomID, tokenID, err := nftAttrs(ev, meta)
				if err != nil {
					return nil, err
				}
				out = append(out, domain.MarketplaceNftEvent{EventMeta: meta, DenomID: denomID, TokenID: tokenID})
			case c.types.MarketplaceCollection.Contains(ev.Type):
				denomID, hasDenom := nonEmptyAttr(ev, attrDenomID)
				collectionID, hasCollection := nonEmptyAttr(ev, attrCollectionID)
				if !hasDenom && !hasCollection {
					return nil, missingAttr(meta, attrDenomID+"|"+attrCollectionID)
				}
				out = append(out, domain.MarketplaceCollectionEvent{EventMeta: meta, DenomID: denomID, CollectionID: collectionID})
			default:
				continue
			}
			metrics.EventsClassified.WithLabelValues(string(CategoryMarketplace)).Inc()
		}
	}
	return out, nil
}

// NftModule returns the allow-listed NFT module events of the window.
func (c *Classifier) NftModule(ctx context.Context, w domain.HeightWindow) ([]domain.ClassifiedEvent, error) {
	txs, err := c.search(ctx, c.filters.NftModule, w)
	if err != nil {
		return nil, err
	}

	var out []domain.ClassifiedEvent
	for _, tx := range txs {
		for _, ev := range tx.Events() {
			meta := domain.EventMeta{Type: ev.Type, TxHash: tx.Hash, Height: tx.Height}
			switch {
			case c.types.NftModuleNft.Contains(ev.Type):
				denomID, tokenID, err := nftAttrs(ev, meta)
				if err != nil {
					return nil, err
				}
				out = append(out, domain.NftModuleNftEvent{EventMeta: meta, DenomID: denomID, TokenID: tokenID})
			case c.types.NftModuleCollection.Contains(ev.Type):
				denomID, ok := nonEmptyAttr(ev, attrDenomID)
				if !ok {
					return nil, missingAttr(meta, attrDenomID)
				}
				out = append(out, domain.NftModuleCollectionEvent{EventMeta: meta, DenomID: denomID})
			default:
				continue
			}
			metrics.EventsClassified.WithLabelValues(string(CategoryNftModule)).Inc()
		}
	}
	return out, nil
}

// FundsReceived returns one event per payment to the minter. Transfers with
// a memo that is not a payment memo are unrelated traffic and skipped.
func (c *Classifier) FundsReceived(ctx context.Context, w domain.HeightWindow) ([]domain.FundsReceivedEvent, error) {
	txs, err := c.search(ctx, c.filters.FundsReceived, w)
	if err != nil {
		return nil, err
	}

	blockTimes := make(map[int64]int64)
	var out []domain.FundsReceivedEvent
	for _, tx := range txs {
		memo, err := tx.Memo()
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w", tx.Hash, err)
		}

		m, ok := parseFundsMemo(memo)
		if !ok {
			c.logger.Warn("Skipping transfer with non-payment memo", "tx", tx.Hash, "height", tx.Height)
			c.skip(CategoryFundsReceived, skipBadMemo)
			continue
		}
		if m.RecipientAddress == "" {
			c.skip(CategoryFundsReceived, skipNoRecipient)
			continue
		}
		if m.UUID == presaleUUID {
			c.skip(CategoryFundsReceived, skipPresale)
			continue
		}

		ts, ok := blockTimes[tx.Height]
		if !ok {
			t, err := c.chain.BlockTime(ctx, tx.Height)
			if err != nil {
				return nil, fmt.Errorf("block time %d: %w", tx.Height, err)
			}
			ts = t.UnixMilli()
			blockTimes[tx.Height] = ts
		}

		out = append(out, domain.FundsReceivedEvent{
			EventMeta:        domain.EventMeta{Type: "transfer", TxHash: tx.Hash, Height: tx.Height},
			RecipientAddress: m.RecipientAddress,
			UUID:             m.UUID,
			EthTxHash:        m.EthTxHash,
			Timestamp:        ts,
		})
		metrics.EventsClassified.WithLabelValues(string(CategoryFundsReceived)).Inc()
	}
	return out, nil
}

// Refunds returns the refunds of on-demand mint purchases. Purchases paid
// through the payment relayer (funds memo with an ethTxhash) are settled
// there and skipped.
func (c *Classifier) Refunds(ctx context.Context, w domain.HeightWindow) ([]domain.RefundEvent, error) {
	txs, err := c.search(ctx, c.filters.Refund, w)
	if err != nil {
		return nil, err
	}

	var out []domain.RefundEvent
	for _, tx := range txs {
		ref, ok, err := c.refMemo(tx, CategoryRefund)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		original, err := c.chain.Tx(ctx, ref)
		if errors.Is(err, chain.ErrTxNotFound) {
			c.logger.Warn("Refund references unknown transaction", "tx", tx.Hash, "ref", ref)
			c.skip(CategoryRefund, skipUnknownRef)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch refunded tx %s: %w", ref, err)
		}

		originalMemo, err := original.Memo()
		if err != nil {
			return nil, fmt.Errorf("tx %s: %w", ref, err)
		}
		if m, ok := parseFundsMemo(originalMemo); ok && m.EthTxHash != "" {
			c.skip(CategoryRefund, skipRelayerPaid)
			continue
		}

		out = append(out, domain.RefundEvent{
			EventMeta: domain.EventMeta{Type: "refund", TxHash: tx.Hash, Height: tx.Height},
			RefTxHash: ref,
		})
		metrics.EventsClassified.WithLabelValues(string(CategoryRefund)).Inc()
	}
	return out, nil
}

// MintSuccesses returns the mints fulfilling on-demand mint purchases.
func (c *Classifier) MintSuccesses(ctx context.Context, w domain.HeightWindow) ([]domain.MintSuccessEvent, error) {
	txs, err := c.search(ctx, c.filters.MintSuccess, w)
	if err != nil {
		return nil, err
	}

	var out []domain.MintSuccessEvent
	for _, tx := range txs {
		ref, ok, err := c.refMemo(tx, CategoryMintSuccess)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, domain.MintSuccessEvent{
			EventMeta: domain.EventMeta{Type: "mint", TxHash: tx.Hash, Height: tx.Height},
			RefTxHash: ref,
		})
		metrics.EventsClassified.WithLabelValues(string(CategoryMintSuccess)).Inc()
	}
	return out, nil
}

// search runs the filter and drops failed transactions.
func (c *Classifier) search(ctx context.Context, f Filter, w domain.HeightWindow) ([]chain.RawTransaction, error) {
	if w.Empty() {
		return nil, nil
	}

	txs, err := c.chain.SearchTxs(ctx, f.Query, w)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", f.Name, err)
	}

	ok := txs[:0]
	for _, tx := range txs {
		if !tx.Succeeded() {
			c.skip(f.Category, skipFailedTx)
			continue
		}
		ok = append(ok, tx)
	}

	c.logger.Debug("Searched transactions",
		"filter", f.Name,
		"from", w.From(),
		"to", w.Max,
		"matched", len(txs),
		"succeeded", len(ok),
	)
	return ok, nil
}

// refMemo reads the funds tx hash the minter put in the memo.
func (c *Classifier) refMemo(tx chain.RawTransaction, cat Category) (string, bool, error) {
	memo, err := tx.Memo()
	if err != nil {
		return "", false, fmt.Errorf("tx %s: %w", tx.Hash, err)
	}
	if memo == "" {
		c.skip(cat, skipEmptyMemo)
		return "", false, nil
	}
	ref, ok := parseTxHashMemo(memo)
	if !ok {
		c.logger.Debug("Skipping transaction without tx hash memo", "category", cat, "tx", tx.Hash)
		c.skip(cat, skipBadMemo)
		return "", false, nil
	}
	return ref, true, nil
}

func (c *Classifier) skip(cat Category, reason string) {
	metrics.EventsSkipped.WithLabelValues(string(cat), reason).Inc()
}

func nftAttrs(ev domain.RawEvent, meta domain.EventMeta) (string, string, error) {
	denomID, ok := nonEmptyAttr(ev, attrDenomID)
	if !ok {
		return "", "", missingAttr(meta, attrDenomID)
	}
	tokenID, ok := nonEmptyAttr(ev, attrTokenID)
	if !ok {
		return "", "", missingAttr(meta, attrTokenID)
	}
	return denomID, tokenID, nil
}

func nonEmptyAttr(ev domain.RawEvent, key string) (string, bool) {
	v, ok := ev.Attr(key)
	return v, ok && v != ""
}

func missingAttr(meta domain.EventMeta, key string) error {
	return fmt.Errorf("%w: %s in %s event of tx %s at height %d",
		domain.ErrMissingAttribute, key, meta.Type, meta.TxHash, meta.Height)
}
