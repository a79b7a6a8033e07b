package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/chain-observer/internal/infra/rpc/provider"
	"github.com/vietddude/chain-observer/internal/infra/rpc/routing"
)

// Client is the high-level interface for making RPC calls.
// This is what application layers should use.
type Client struct {
	router routing.Router
	retry  routing.RetryConfig
}

// NewClient creates a client over the router's providers.
func NewClient(router routing.Router, retry routing.RetryConfig) *Client {
	return &Client{router: router, retry: retry}
}

// Call invokes method and decodes the result into out. out may be nil.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	raw, err := routing.CallWithRetryAndFailover(ctx, c.router, method, params, c.retry)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// Providers returns the registered providers for health reporting.
func (c *Client) Providers() []provider.RPCProvider {
	return c.router.Providers()
}

// Close closes every provider.
func (c *Client) Close() error {
	var firstErr error
	for _, p := range c.router.Providers() {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
