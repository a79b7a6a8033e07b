// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ProviderHealth is the state of one node endpoint.
type ProviderHealth struct {
	Name      string  `json:"name"`
	Available bool    `json:"available"`
	ErrorRate float64 `json:"error_rate"`
	LatencyMs int64   `json:"latency_ms"`
	// State is the gRPC connectivity state, empty for JSON-RPC providers.
	State    string `json:"state,omitempty"`
	Throttle string `json:"throttle,omitempty"`
}

// DependencyHealth is the state of a store the observer needs.
type DependencyHealth struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus     SystemStatus       `json:"system_status"`
	CheckpointHeight int64              `json:"checkpoint_height"`
	ChainHead        int64              `json:"chain_head"`
	BlockLag         int64              `json:"block_lag"`
	Running          bool               `json:"running"`
	LastRunAt        time.Time          `json:"last_run_at"`
	LastSuccessAt    time.Time          `json:"last_success_at"`
	LastWindowFrom   int64              `json:"last_window_from"`
	LastWindowTo     int64              `json:"last_window_to"`
	LastError        string             `json:"last_error,omitempty"`
	Providers        []ProviderHealth   `json:"providers"`
	Dependencies     []DependencyHealth `json:"dependencies"`
}
