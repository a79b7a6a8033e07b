// Package rpc provides a resilient JSON-RPC client for Tendermint nodes.
//
// It offers:
//   - Multiple provider support with ordered failover
//   - Exponential backoff on transient errors
//   - Client-side rate limiting and throttle detection
//
// # Quick Start
//
//	router := routing.NewRouter()
//	router.AddProvider(provider.NewHTTPProvider("node-0", nodeURL, 15*time.Second, 10))
//	client := rpc.NewClient(router, routing.DefaultRetryConfig)
//
//	var status json.RawMessage
//	err := client.Call(ctx, "status", nil, &status)
package rpc
