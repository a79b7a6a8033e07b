// Package backend is the REST client of the marketplace backend. The backend
// owns the off-chain copies of collections, NFTs and purchases and applies
// every update idempotently.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/indexing/metrics"
)

const (
	pathLastCheckedBlock  = "general/last-checked-block"
	pathLastIndexedHeight = "general/last-indexed-height"
	pathCollectionTrigger = "collection/trigger-updates"
	pathNftTrigger        = "nft/trigger-updates"
	pathPurchases         = "purchase-transactions"
)

// Config for the backend client.
type Config struct {
	URL          string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client calls the backend API.
type Client struct {
	base   *url.URL
	apiKey string
	header string
	client *http.Client
}

// NewClient creates a backend client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", cfg.URL)
	}

	header := cfg.APIKeyHeader
	if header == "" {
		header = "x-api-key"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		header: header,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type heightBody struct {
	Height int64 `json:"height"`
}

type collectionTriggerBody struct {
	Module        domain.Module `json:"module"`
	DenomIDs      []string      `json:"denomIds"`
	CollectionIDs []string      `json:"collectionIds"`
	Height        int64         `json:"height"`
}

type nftTriggerItem struct {
	TokenID string `json:"tokenId"`
	DenomID string `json:"denomId"`
}

type nftTriggerBody struct {
	Module domain.Module    `json:"module"`
	Nfts   []nftTriggerItem `json:"nfts"`
	Height int64            `json:"height"`
}

type purchasesBody struct {
	PurchaseTransactions []domain.PurchaseTransaction `json:"purchaseTransactionEntities"`
}

// LastCheckedHeight returns the checkpoint kept by the backend.
func (c *Client) LastCheckedHeight(ctx context.Context) (int64, error) {
	var res heightBody
	if err := c.do(ctx, http.MethodGet, pathLastCheckedBlock, nil, &res); err != nil {
		return 0, err
	}
	return res.Height, nil
}

// SetLastCheckedHeight stores the checkpoint in the backend.
func (c *Client) SetLastCheckedHeight(ctx context.Context, height int64) error {
	return c.do(ctx, http.MethodPut, pathLastCheckedBlock, heightBody{Height: height}, nil)
}

// LastIndexedHeight returns the height up to which the chain indexer behind
// the backend has ingested blocks.
func (c *Client) LastIndexedHeight(ctx context.Context) (int64, error) {
	var res heightBody
	if err := c.do(ctx, http.MethodGet, pathLastIndexedHeight, nil, &res); err != nil {
		return 0, err
	}
	return res.Height, nil
}

// TriggerCollectionUpdate asks the backend to refresh the collections from
// the indexer.
func (c *Client) TriggerCollectionUpdate(ctx context.Context, module domain.Module, denomIDs, collectionIDs []string, height int64) error {
	body := collectionTriggerBody{
		Module:        module,
		DenomIDs:      nonNil(denomIDs),
		CollectionIDs: nonNil(collectionIDs),
		Height:        height,
	}
	return c.do(ctx, http.MethodPut, pathCollectionTrigger, body, nil)
}

// TriggerNftUpdate asks the backend to refresh the NFTs from the indexer.
func (c *Client) TriggerNftUpdate(ctx context.Context, module domain.Module, nfts []domain.NftTarget, height int64) error {
	items := make([]nftTriggerItem, 0, len(nfts))
	for _, n := range nfts {
		items = append(items, nftTriggerItem{TokenID: n.TokenID, DenomID: n.DenomID})
	}
	return c.do(ctx, http.MethodPut, pathNftTrigger, nftTriggerBody{Module: module, Nfts: items, Height: height}, nil)
}

// RecordPurchaseTransactions upserts purchase statuses in the backend.
func (c *Client) RecordPurchaseTransactions(ctx context.Context, purchases []domain.PurchaseTransaction) error {
	return c.do(ctx, http.MethodPut, pathPurchases, purchasesBody{PurchaseTransactions: purchases}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.header, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.BackendRequests.WithLabelValues(path, "error").Inc()
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	metrics.BackendRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
