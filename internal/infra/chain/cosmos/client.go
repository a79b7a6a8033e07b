// Package cosmos implements chain.Client over the Tendermint JSON-RPC API of
// a Cosmos SDK node.
package cosmos

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/infra/chain"
	"github.com/vietddude/chain-observer/internal/infra/rpc/provider"
)

// DefaultPerPage is the largest page Tendermint serves.
const DefaultPerPage = 100

// Caller performs a JSON-RPC call and decodes the result into out.
type Caller interface {
	Call(ctx context.Context, method string, params any, out any) error
}

// Options tune the client.
type Options struct {
	// PerPage is the tx_search page size (1..100).
	PerPage int
	// Base64Events decodes event attribute keys and values, as emitted by
	// Tendermint 0.34 nodes.
	Base64Events bool
}

// Client talks to a single logical node through a Caller.
type Client struct {
	rpc  Caller
	opts Options
}

var _ chain.Client = (*Client)(nil)

// NewClient creates a Tendermint client.
func NewClient(rpc Caller, opts Options) *Client {
	if opts.PerPage <= 0 || opts.PerPage > DefaultPerPage {
		opts.PerPage = DefaultPerPage
	}
	return &Client{rpc: rpc, opts: opts}
}

// =============================================================================
// Wire types
// =============================================================================

type statusResult struct {
	SyncInfo struct {
		LatestBlockHeight string `json:"latest_block_height"`
	} `json:"sync_info"`
}

type blockResult struct {
	Block struct {
		Header struct {
			Height string    `json:"height"`
			Time   time.Time `json:"time"`
		} `json:"header"`
	} `json:"block"`
}

type wireAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type wireEvent struct {
	Type       string          `json:"type"`
	Attributes []wireAttribute `json:"attributes"`
}

type txResult struct {
	Hash     string `json:"hash"`
	Height   string `json:"height"`
	TxResult struct {
		Code   uint32      `json:"code"`
		Log    string      `json:"log"`
		Events []wireEvent `json:"events"`
	} `json:"tx_result"`
	Tx string `json:"tx"`
}

type txSearchResult struct {
	Txs        []txResult `json:"txs"`
	TotalCount string     `json:"total_count"`
}

// =============================================================================
// Queries
// =============================================================================

// Height returns the latest block height reported by /status.
func (c *Client) Height(ctx context.Context) (int64, error) {
	var res statusResult
	if err := c.rpc.Call(ctx, "status", map[string]any{}, &res); err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(res.SyncInfo.LatestBlockHeight, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse latest block height %q: %w", res.SyncInfo.LatestBlockHeight, err)
	}
	return height, nil
}

// SearchTxs pages through tx_search for query restricted to the window.
func (c *Client) SearchTxs(ctx context.Context, query string, window domain.HeightWindow) ([]chain.RawTransaction, error) {
	if window.Empty() {
		return nil, nil
	}

	q := fmt.Sprintf("%s AND tx.height >= %d AND tx.height <= %d", query, window.From(), window.Max)

	var txs []chain.RawTransaction
	for page := 1; ; page++ {
		var res txSearchResult
		params := map[string]any{
			"query":    q,
			"prove":    false,
			"page":     strconv.Itoa(page),
			"per_page": strconv.Itoa(c.opts.PerPage),
			"order_by": "asc",
		}
		if err := c.rpc.Call(ctx, "tx_search", params, &res); err != nil {
			return nil, fmt.Errorf("search %q page %d: %w", query, page, err)
		}

		total, err := strconv.Atoi(res.TotalCount)
		if err != nil {
			return nil, fmt.Errorf("parse total_count %q: %w", res.TotalCount, err)
		}

		for _, r := range res.Txs {
			tx, err := c.decode(r)
			if err != nil {
				return nil, err
			}
			txs = append(txs, tx)
		}

		if len(res.Txs) == 0 || len(txs) >= total {
			break
		}
	}
	return txs, nil
}

// BlockTime returns the header time of the block at height.
func (c *Client) BlockTime(ctx context.Context, height int64) (time.Time, error) {
	var res blockResult
	if err := c.rpc.Call(ctx, "block", map[string]any{"height": strconv.FormatInt(height, 10)}, &res); err != nil {
		return time.Time{}, err
	}
	if res.Block.Header.Time.IsZero() {
		return time.Time{}, fmt.Errorf("block %d has no header time", height)
	}
	return res.Block.Header.Time, nil
}

// Tx fetches a transaction by its hex hash.
func (c *Client) Tx(ctx context.Context, hash string) (*chain.RawTransaction, error) {
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash %q: %w", hash, err)
	}

	var res txResult
	// []byte params travel base64 encoded over JSON-RPC
	if err := c.rpc.Call(ctx, "tx", map[string]any{"hash": raw, "prove": false}, &res); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", hash, chain.ErrTxNotFound)
		}
		return nil, err
	}

	tx, err := c.decode(res)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func isNotFound(err error) bool {
	var rpcErr *provider.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return strings.Contains(strings.ToLower(rpcErr.Data), "not found") ||
		strings.Contains(strings.ToLower(rpcErr.Message), "not found")
}

func (c *Client) decode(r txResult) (chain.RawTransaction, error) {
	height, err := strconv.ParseInt(r.Height, 10, 64)
	if err != nil {
		return chain.RawTransaction{}, fmt.Errorf("tx %s: parse height %q: %w", r.Hash, r.Height, err)
	}

	body, err := base64.StdEncoding.DecodeString(r.Tx)
	if err != nil {
		return chain.RawTransaction{}, fmt.Errorf("tx %s: decode tx bytes: %w", r.Hash, err)
	}

	events := make([]domain.RawEvent, 0, len(r.TxResult.Events))
	for _, e := range r.TxResult.Events {
		ev := domain.RawEvent{Type: e.Type, Attributes: make([]domain.Attribute, 0, len(e.Attributes))}
		for _, a := range e.Attributes {
			key, value := a.Key, a.Value
			if c.opts.Base64Events {
				key = decodeAttr(key)
				value = decodeAttr(value)
			}
			ev.Attributes = append(ev.Attributes, domain.Attribute{Key: key, Value: value})
		}
		events = append(events, ev)
	}

	return chain.RawTransaction{
		Hash:         strings.ToUpper(r.Hash),
		Height:       height,
		Code:         r.TxResult.Code,
		RawLog:       r.TxResult.Log,
		ResultEvents: events,
		Tx:           body,
	}, nil
}

// decodeAttr falls back to the input when it is not base64.
func decodeAttr(s string) string {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	return string(b)
}
