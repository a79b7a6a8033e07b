package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/chain-observer/internal/indexing/metrics"
)

// HTTPProvider implements RPCProvider for JSON-RPC 2.0 over HTTP.
type HTTPProvider struct {
	*BaseProvider
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	nextID     atomic.Int64
}

var _ RPCProvider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a new HTTP-based RPC provider. rps limits the
// request rate; zero disables the limit.
func NewHTTPProvider(name, endpoint string, timeout time.Duration, rps float64) *HTTPProvider {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return &HTTPProvider{
		BaseProvider: NewBaseProvider(name),
		endpoint:     endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call makes a single JSON-RPC call.
func (p *HTTPProvider) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	// Pre-call checks
	if status := p.Monitor.CheckProviderStatus(); status == StatusThrottled || status == StatusBlocked {
		return nil, fmt.Errorf("provider %s, retry after: %v", status, p.Monitor.GetRetryAfter())
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	metrics.RPCCallsTotal.WithLabelValues(p.Name, method).Inc()
	start := time.Now()

	result, errType, err := p.do(ctx, method, params)
	latency := time.Since(start)
	metrics.RPCLatency.WithLabelValues(p.Name, method).Observe(latency.Seconds())

	if err != nil {
		p.RecordFailure()
		metrics.RPCErrorsTotal.WithLabelValues(p.Name, errType).Inc()
		return nil, err
	}

	p.RecordSuccess(latency)
	return result, nil
}

func (p *HTTPProvider) do(ctx context.Context, method string, params any) (json.RawMessage, string, error) {
	jsonData, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      p.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, "marshal", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, "request", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "transport", fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		p.Monitor.RecordThrottle(http.StatusTooManyRequests, retryAfter)
		return nil, "throttle", fmt.Errorf("rate limited (429), retry after: %s", retryAfter)
	}

	// IP blocked detection
	if resp.StatusCode == http.StatusForbidden {
		p.Monitor.RecordThrottle(http.StatusForbidden, "")
		return nil, "blocked", fmt.Errorf("ip blocked (403)")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "read", fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			if p.Monitor.DetectThrottlePattern(string(body)) {
				return nil, "throttle", fmt.Errorf("throttle detected in response: %s", string(body))
			}
			return nil, "http", fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
		}
		return nil, "parse", fmt.Errorf("parse response: %w", err)
	}

	// Tendermint answers RPC errors with HTTP 500 and a JSON-RPC error body
	if rpcResp.Error != nil {
		if p.Monitor.DetectThrottlePattern(rpcResp.Error.Message + " " + rpcResp.Error.Data) {
			return nil, "throttle", fmt.Errorf("throttle in rpc error: %w", rpcResp.Error)
		}
		return nil, "rpc", rpcResp.Error
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "http", fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	return rpcResp.Result, "", nil
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
