// Package routing handles provider ordering and failover.
//
// This package contains:
//   - Router: interface for provider ordering and health tracking
//   - DefaultRouter: implementation with a consecutive-failure circuit breaker
//   - Retry: retry logic with exponential backoff and failover
package routing

import (
	"sync"
	"time"

	"github.com/vietddude/chain-observer/internal/infra/rpc/provider"
)

// Router orders providers for a call and tracks their outcomes.
type Router interface {
	// AddProvider registers a provider
	AddProvider(p provider.RPCProvider)

	// Providers returns every provider, preferred ones first
	Providers() []provider.RPCProvider

	// RecordSuccess tracks successful calls
	RecordSuccess(providerName string, latency time.Duration)

	// RecordFailure tracks failed calls
	RecordFailure(providerName string, err error)
}

type providerMetrics struct {
	successCount     int
	failureCount     int
	consecutiveFails int
	openedAt         time.Time
}

// DefaultRouter keeps registration order and demotes providers whose
// circuit is open. A demoted provider is still tried last, so a single
// node deployment keeps working.
type DefaultRouter struct {
	mu            sync.RWMutex
	providers     []provider.RPCProvider
	health        map[string]*providerMetrics
	failThreshold int
	openFor       time.Duration
	now           func() time.Time
}

var _ Router = (*DefaultRouter)(nil)

// NewRouter creates a router that opens a provider's circuit after five
// consecutive failures for one minute.
func NewRouter() *DefaultRouter {
	return &DefaultRouter{
		health:        make(map[string]*providerMetrics),
		failThreshold: 5,
		openFor:       time.Minute,
		now:           time.Now,
	}
}

// AddProvider registers a provider.
func (r *DefaultRouter) AddProvider(p provider.RPCProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
	r.health[p.GetName()] = &providerMetrics{}
}

// Providers returns providers with a closed circuit that report available
// first, then everything else in registration order.
func (r *DefaultRouter) Providers() []provider.RPCProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	preferred := make([]provider.RPCProvider, 0, len(r.providers))
	var demoted []provider.RPCProvider
	for _, p := range r.providers {
		if r.circuitOpen(p.GetName()) || !p.IsAvailable() {
			demoted = append(demoted, p)
			continue
		}
		preferred = append(preferred, p)
	}
	return append(preferred, demoted...)
}

func (r *DefaultRouter) circuitOpen(name string) bool {
	m, ok := r.health[name]
	if !ok || m.consecutiveFails < r.failThreshold {
		return false
	}
	return r.now().Sub(m.openedAt) < r.openFor
}

// RecordSuccess records a successful call.
func (r *DefaultRouter) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.health[providerName]
	if !ok {
		return
	}
	m.successCount++
	m.consecutiveFails = 0
}

// RecordFailure records a failed call.
func (r *DefaultRouter) RecordFailure(providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.health[providerName]
	if !ok {
		return
	}
	m.failureCount++
	m.consecutiveFails++
	if m.consecutiveFails >= r.failThreshold {
		m.openedAt = r.now()
	}
}
