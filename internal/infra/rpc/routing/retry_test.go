package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/chain-observer/internal/infra/rpc/provider"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{errors.New("rate limited (429), retry after: 10"), ActionFailover},
		{errors.New("Too Many Requests"), ActionFailover},
		{errors.New("ip blocked (403)"), ActionFailover},
		{errors.New("provider throttled, retry after: 1m0s"), ActionFailover},
		{&provider.RPCError{Code: -32600, Message: "Invalid Request"}, ActionFatal},
		{&provider.RPCError{Code: -32602, Message: "Invalid params"}, ActionFatal},
		{&provider.RPCError{Code: -32603, Message: "Internal error", Data: "tx (AB) not found"}, ActionFatal},
		{fmt.Errorf("wrapped: %w", &provider.RPCError{Code: -32601, Message: "Method not found"}), ActionFatal},
		{&provider.RPCError{Code: -32603, Message: "Internal error", Data: "timed out waiting for tx"}, ActionRetry},
		{context.Canceled, ActionFatal},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("http 502: bad gateway"), ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

// =============================================================================
// Fake provider
// =============================================================================

type fakeProvider struct {
	*provider.BaseProvider
	errs  []error
	calls int
}

func newFakeProvider(name string, errs ...error) *fakeProvider {
	return &fakeProvider{BaseProvider: provider.NewBaseProvider(name), errs: errs}
}

func (f *fakeProvider) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return json.RawMessage(`"` + f.Name + `"`), nil
}

func (f *fakeProvider) Close() error { return nil }

var fastRetry = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    time.Millisecond,
	MaxDelay:        time.Millisecond,
	BackoffMultiple: 2,
}

func TestCallWithRetry_RecoversFromTransientErrors(t *testing.T) {
	p := newFakeProvider("a", errors.New("connection reset"), errors.New("EOF"))

	result, err := CallWithRetry(context.Background(), p, "status", nil, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != `"a"` {
		t.Errorf("unexpected result %s", result)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}
}

func TestCallWithRetryAndFailover(t *testing.T) {
	router := NewRouter()
	throttled := newFakeProvider("a", errors.New("rate limited (429), retry after: 1"))
	healthy := newFakeProvider("b")
	router.AddProvider(throttled)
	router.AddProvider(healthy)

	result, err := CallWithRetryAndFailover(context.Background(), router, "status", nil, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != `"b"` {
		t.Errorf("expected failover to b, got %s", result)
	}
	if throttled.calls != 1 {
		t.Errorf("throttled provider should not be retried, got %d calls", throttled.calls)
	}
}

func TestCallWithRetryAndFailover_FatalStops(t *testing.T) {
	router := NewRouter()
	a := newFakeProvider("a", &provider.RPCError{Code: -32603, Message: "Internal error", Data: "tx (AB) not found"})
	b := newFakeProvider("b")
	router.AddProvider(a)
	router.AddProvider(b)

	_, err := CallWithRetryAndFailover(context.Background(), router, "tx", nil, fastRetry)
	var rpcErr *provider.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected rpc error, got %v", err)
	}
	if b.calls != 0 {
		t.Errorf("fatal errors must not fail over, b got %d calls", b.calls)
	}
}

func TestRouter_DemotesOpenCircuit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	router := NewRouter()
	router.now = func() time.Time { return now }

	a := newFakeProvider("a")
	b := newFakeProvider("b")
	router.AddProvider(a)
	router.AddProvider(b)

	for i := 0; i < 5; i++ {
		router.RecordFailure("a", errors.New("boom"))
	}

	order := router.Providers()
	if order[0].GetName() != "b" || order[1].GetName() != "a" {
		t.Fatalf("expected [b a], got [%s %s]", order[0].GetName(), order[1].GetName())
	}

	now = now.Add(2 * time.Minute)
	order = router.Providers()
	if order[0].GetName() != "a" {
		t.Errorf("circuit should half-open after the cool-off, got %s first", order[0].GetName())
	}

	router.RecordSuccess("a", time.Millisecond)
	if router.circuitOpen("a") {
		t.Error("success should close the circuit")
	}
}
