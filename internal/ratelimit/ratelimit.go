// Package ratelimit enforces per-tenant request budgets over fixed
// windows, and tracks token consumption against the daily budget
// without enforcing it. Limits come from the tenant's tier; tenants
// with an unknown tier fall back to the free tier so a config mistake
// can never grant unlimited traffic.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/answergrid/answergrid/internal/config"
	"github.com/answergrid/answergrid/internal/metrics"
	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
	"github.com/answergrid/answergrid/internal/tenant"
)

// Window names used in metrics and error details.
const (
	WindowMinute = "minute"
	WindowDay    = "day"
	WindowTokens = "tokens"
)

// Window is one counting window with its limit.
type Window struct {
	// Name identifies the window ("minute", "day", "tokens").
	Name string

	// Duration is the window length.
	Duration time.Duration

	// Limit is the maximum count within the window. Zero disables the
	// window.
	Limit int64
}

// Result is the outcome of a limit check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Window names the window that denied the request.
	Window string

	// RetryAfter is how long until the denying window resets.
	RetryAfter time.Duration
}

// Store counts requests per key and window.
type Store interface {
	// Take atomically checks every window and increments all of them
	// only if none is exhausted. Expired windows restart from zero.
	Take(ctx context.Context, key string, windows []Window) (*Result, error)

	// Add increments a window counter by n without a limit check and
	// returns the new count. Used for token accounting after the
	// response size is known.
	Add(ctx context.Context, key string, window Window, n int64) (int64, error)

	// Get returns the current count and time until reset for a window.
	Get(ctx context.Context, key string, window Window) (int64, time.Duration, error)

	// Sweep drops expired counters and returns how many were removed.
	Sweep(ctx context.Context) int

	// Close releases store resources.
	Close() error
}

// Limiter checks tenant requests against their tier's limits.
type Limiter struct {
	store   Store
	tiers   map[string]config.TierConfig
	log     *logger.Logger
	metrics *metrics.Metrics
	stop    chan struct{}
}

// NewLimiter creates a limiter over the given store. Call Stop to halt
// the background sweep.
func NewLimiter(store Store, cfg config.RateLimitConfig, log *logger.Logger, m *metrics.Metrics) *Limiter {
	l := &Limiter{
		store:   store,
		tiers:   cfg.Tiers,
		log:     log,
		metrics: m,
		stop:    make(chan struct{}),
	}

	sweepInterval := time.Duration(cfg.SweepIntervalSecs) * time.Second
	if sweepInterval > 0 {
		go l.sweepLoop(sweepInterval)
	}

	return l
}

// Check verifies the tenant is within its request budget and consumes
// one request from each window. A denial returns a RateLimited error
// carrying the seconds until the denying window resets.
func (l *Limiter) Check(ctx context.Context, t *tenant.Tenant) error {
	tier := l.tierFor(t)

	windows := requestWindows(tier)
	if len(windows) == 0 {
		return nil
	}

	result, err := l.store.Take(ctx, requestKey(t.ID), windows)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "rate limit check failed", err)
	}

	if !result.Allowed {
		l.reject(t, result.Window)
		return errors.RateLimitedError(retryAfterSeconds(result.RetryAfter))
	}

	return nil
}

// RecordTokens charges token usage against the tenant's daily budget.
// The budget is tracked for reporting, not enforced by Check. Failures
// are logged, not returned, because usage accounting must never fail a
// request that already completed.
func (l *Limiter) RecordTokens(ctx context.Context, t *tenant.Tenant, tokens int64) {
	if tokens <= 0 {
		return
	}

	tier := l.tierFor(t)
	if tier.TokensPerDay <= 0 {
		return
	}

	_, err := l.store.Add(ctx, tokenKey(t.ID), Window{
		Name:     WindowTokens,
		Duration: 24 * time.Hour,
		Limit:    tier.TokensPerDay,
	}, tokens)
	if err != nil {
		l.log.WithError(err).Warn("failed to record token usage", "tenant", t.ID)
	}
}

// Stop halts the background sweep and closes the store.
func (l *Limiter) Stop() {
	close(l.stop)
	if err := l.store.Close(); err != nil {
		l.log.WithError(err).Warn("failed to close rate limit store")
	}
}

// tierFor returns the tenant's tier config, falling back to free.
func (l *Limiter) tierFor(t *tenant.Tenant) config.TierConfig {
	if tier, ok := l.tiers[t.Tier]; ok {
		return tier
	}
	return l.tiers["free"]
}

func (l *Limiter) reject(t *tenant.Tenant, window string) {
	if l.metrics != nil {
		l.metrics.RateLimitRejections.WithLabels(t.Tier, window).Inc()
	}
	l.log.Info("rate limit exceeded", "tenant", t.ID, "tier", t.Tier, "window", window)
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := l.store.Sweep(context.Background())
			if removed > 0 {
				l.log.Debug("swept expired rate limit buckets", "removed", removed)
			}
		case <-l.stop:
			return
		}
	}
}

// requestWindows builds the request-count windows for a tier.
func requestWindows(tier config.TierConfig) []Window {
	var windows []Window
	if tier.RequestsPerMinute > 0 {
		windows = append(windows, Window{
			Name:     WindowMinute,
			Duration: time.Minute,
			Limit:    int64(tier.RequestsPerMinute),
		})
	}
	if tier.RequestsPerDay > 0 {
		windows = append(windows, Window{
			Name:     WindowDay,
			Duration: 24 * time.Hour,
			Limit:    int64(tier.RequestsPerDay),
		})
	}
	return windows
}

func requestKey(tenantID string) string {
	return fmt.Sprintf("rl:%s:req", tenantID)
}

func tokenKey(tenantID string) string {
	return fmt.Sprintf("rl:%s:tok", tenantID)
}

// retryAfterSeconds converts a reset duration to whole seconds, always
// at least 1 so clients never receive a zero backoff hint.
func retryAfterSeconds(d time.Duration) int {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
