// Package alert decides when a failed run is worth an operator notification
// and delivers it.
package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/vietddude/chain-observer/internal/core/domain"
	"github.com/vietddude/chain-observer/internal/indexing/metrics"
)

// Class groups run failures by how an operator should react.
type Class string

const (
	// ClassTransient covers unreachable nodes, backend or store.
	ClassTransient Class = "transient"
	// ClassConsistency is the backend indexer lagging the observed height.
	ClassConsistency Class = "consistency"
	// ClassSchema is an allow-listed event missing an attribute, usually
	// after a chain upgrade.
	ClassSchema Class = "schema"
)

const (
	DefaultCooldown    = 30 * time.Minute
	DefaultSendTimeout = 30 * time.Second
)

// Classify maps a run error to its class.
func Classify(err error) Class {
	switch {
	case errors.Is(err, domain.ErrMissingAttribute):
		return ClassSchema
	case errors.Is(err, domain.ErrIndexerBehind):
		return ClassConsistency
	default:
		return ClassTransient
	}
}

// Config tunes the policy.
type Config struct {
	Cooldown    time.Duration
	SendTimeout time.Duration
}

// Policy sends at most one alert per cooldown, whatever the error. The
// throttle state lives in process memory and starts empty, so the first
// failure after a restart always alerts.
type Policy struct {
	clock       clock.Clock
	cooldown    time.Duration
	sendTimeout time.Duration
	alerter     Alerter
	logger      *slog.Logger

	mu       sync.Mutex
	lastSent time.Time
	wg       sync.WaitGroup
}

// NewPolicy creates a policy. Zero config values take the defaults.
func NewPolicy(cfg Config, clk clock.Clock, alerter Alerter, logger *slog.Logger) *Policy {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Policy{
		clock:       clk,
		cooldown:    cfg.Cooldown,
		sendTimeout: cfg.SendTimeout,
		alerter:     alerter,
		logger:      logger.With("component", "alert_policy"),
	}
}

// OnFailure records a failed run. It reports whether an alert was sent;
// delivery happens in the background and never blocks the caller.
func (p *Policy) OnFailure(ctx context.Context, err error, fields map[string]string) bool {
	class := Classify(err)
	now := p.clock.Now()

	p.mu.Lock()
	elapsed := now.Sub(p.lastSent)
	if elapsed <= p.cooldown {
		p.mu.Unlock()
		metrics.AlertsSuppressed.WithLabelValues(string(class)).Inc()
		p.logger.Warn("Run failed, alert suppressed",
			"class", class,
			"error", err,
			"next_alert_in", (p.cooldown - elapsed).Round(time.Second),
		)
		return false
	}
	p.lastSent = now
	p.mu.Unlock()

	p.logger.Error("Run failed, sending alert", "class", class, "error", err)

	a := Alert{
		Class:   class,
		Title:   "Chain observer run failed",
		Message: err.Error(),
		Fields:  fields,
		Time:    now,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.sendTimeout)
		defer cancel()
		if err := p.alerter.Send(sendCtx, a); err != nil {
			p.logger.Warn("Alert delivery failed", "class", class, "error", err)
		}
	}()
	return true
}

// Wait blocks until in-flight alerts are delivered.
func (p *Policy) Wait() {
	p.wg.Wait()
}
