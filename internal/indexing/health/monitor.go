package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc/connectivity"

	"github.com/vietddude/chain-observer/internal/indexing/scanner"
	"github.com/vietddude/chain-observer/internal/infra/rpc/provider"
)

// CheckpointReader returns the effective last checked height.
type CheckpointReader interface {
	Get(ctx context.Context) (int64, error)
}

// RunStatusSource reports the scanner's recent runs.
type RunStatusSource interface {
	Status() scanner.Status
}

// Pinger checks a dependency.
type Pinger interface {
	Health(ctx context.Context) error
}

// Thresholds decide when the observer is degraded or critical.
type Thresholds struct {
	DegradedLag int64
	CriticalLag int64
	// StaleAfter marks the observer critical when no run succeeded for this
	// long. Zero disables the check.
	StaleAfter time.Duration
}

// DefaultThresholds allow one full catch-up window of lag before degrading.
var DefaultThresholds = Thresholds{
	DegradedLag: 100,
	CriticalLag: 10_000,
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	checkpoints  CheckpointReader
	head         scanner.HeadSource
	runs         RunStatusSource
	providers    []provider.Provider
	dependencies map[string]Pinger
	thresholds   Thresholds
	cacheFor     time.Duration
	now          func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	checkpoints CheckpointReader,
	head scanner.HeadSource,
	runs RunStatusSource,
	providers []provider.Provider,
	dependencies map[string]Pinger,
	thresholds Thresholds,
) *Monitor {
	return &Monitor{
		checkpoints:  checkpoints,
		head:         head,
		runs:         runs,
		providers:    providers,
		dependencies: dependencies,
		thresholds:   thresholds,
		cacheFor:     10 * time.Second,
		now:          time.Now,
	}
}

// CheckHealth builds a report. Results are cached briefly so a busy probe
// does not hammer the node.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < m.cacheFor {
		return *m.lastReport
	}

	report := HealthReport{SystemStatus: StatusHealthy}
	degrade := func(s SystemStatus) {
		if s == StatusCritical || report.SystemStatus == StatusHealthy {
			report.SystemStatus = s
		}
	}

	height, err := m.checkpoints.Get(ctx)
	if err != nil {
		degrade(StatusCritical)
		report.Dependencies = append(report.Dependencies, DependencyHealth{Name: "checkpoint", Error: err.Error()})
	}
	report.CheckpointHeight = height

	head, err := m.head.Height(ctx)
	if err != nil {
		degrade(StatusDegraded)
	} else {
		report.ChainHead = head
		if head > height {
			report.BlockLag = head - height
		}
	}

	status := m.runs.Status()
	report.Running = status.Running
	report.LastRunAt = status.LastRunAt
	report.LastSuccessAt = status.LastSuccessAt
	report.LastError = status.LastError
	if !status.LastSuccessAt.IsZero() {
		report.LastWindowFrom = status.LastWindow.From()
		report.LastWindowTo = status.LastWindow.Max
	}
	if status.LastError != "" {
		degrade(StatusDegraded)
	}

	switch {
	case report.BlockLag > m.thresholds.CriticalLag:
		degrade(StatusCritical)
	case report.BlockLag > m.thresholds.DegradedLag:
		degrade(StatusDegraded)
	}

	if m.thresholds.StaleAfter > 0 && !status.LastRunAt.IsZero() {
		last := status.LastSuccessAt
		if last.IsZero() {
			last = status.LastRunAt
		}
		if now.Sub(last) > m.thresholds.StaleAfter {
			degrade(StatusCritical)
		}
	}

	anyAvailable := len(m.providers) == 0
	for _, p := range m.providers {
		ph := providerHealth(p)
		if ph.Available {
			anyAvailable = true
		}
		report.Providers = append(report.Providers, ph)
	}
	if !anyAvailable {
		degrade(StatusCritical)
	}

	names := make([]string, 0, len(m.dependencies))
	for name := range m.dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dh := DependencyHealth{Name: name, OK: true}
		if err := m.dependencies[name].Health(ctx); err != nil {
			dh.OK = false
			dh.Error = err.Error()
			degrade(StatusDegraded)
		}
		report.Dependencies = append(report.Dependencies, dh)
	}

	m.lastCheck = now
	m.lastReport = &report
	return report
}

type stateReporter interface {
	State() connectivity.State
}

func providerHealth(p provider.Provider) ProviderHealth {
	h := p.GetHealth()
	ph := ProviderHealth{
		Name:      p.GetName(),
		Available: p.IsAvailable(),
		ErrorRate: h.ErrorRate,
		LatencyMs: h.Latency.Milliseconds(),
	}
	if s, ok := p.(stateReporter); ok {
		ph.State = s.State().String()
	}
	if h.MonitorStats != nil && h.MonitorStats.Status != "" && h.MonitorStats.Status != provider.StatusHealthy.String() {
		ph.Throttle = h.MonitorStats.Status
	}
	return ph
}
