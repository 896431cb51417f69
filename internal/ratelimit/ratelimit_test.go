package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/answergrid/answergrid/internal/config"
	apperrors "github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
	"github.com/answergrid/answergrid/internal/tenant"
)

func testTiers() map[string]config.TierConfig {
	return map[string]config.TierConfig{
		"free": {RequestsPerMinute: 10, RequestsPerDay: 200, TokensPerDay: 100_000},
		"pro":  {RequestsPerMinute: 60, RequestsPerDay: 5000, TokensPerDay: 2_000_000},
	}
}

func newTestLimiter(store Store) *Limiter {
	return NewLimiter(store, config.RateLimitConfig{
		Tiers: testTiers(),
		// SweepIntervalSecs zero keeps the sweep loop off in tests
	}, logger.NewNop(), nil)
}

func TestCheckDeniesOverMinuteLimit(t *testing.T) {
	l := newTestLimiter(NewMemoryStore())
	defer l.Stop()

	free := &tenant.Tenant{ID: "t1", Tier: "free"}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := l.Check(ctx, free); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}

	err := l.Check(ctx, free)
	if err == nil {
		t.Fatal("11th request should be denied")
	}

	appErr := apperrors.AsAppError(err)
	if appErr == nil || appErr.Code != apperrors.CodeRateLimited {
		t.Fatalf("error = %v, want rate limited", err)
	}

	retryAfter, err2 := strconv.Atoi(appErr.Details["retry_after"])
	if err2 != nil || retryAfter < 1 {
		t.Errorf("retry_after = %v, want positive seconds", appErr.Details["retry_after"])
	}
}

func TestCheckUnknownTierFallsBackToFree(t *testing.T) {
	l := newTestLimiter(NewMemoryStore())
	defer l.Stop()

	unknown := &tenant.Tenant{ID: "t2", Tier: "platinum"}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := l.Check(ctx, unknown); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}

	if err := l.Check(ctx, unknown); err == nil {
		t.Error("unknown tier should be capped at free tier limits")
	}
}

func TestCheckTenantsAreIsolated(t *testing.T) {
	l := newTestLimiter(NewMemoryStore())
	defer l.Stop()

	ctx := context.Background()
	a := &tenant.Tenant{ID: "a", Tier: "free"}
	b := &tenant.Tenant{ID: "b", Tier: "free"}

	for i := 0; i < 10; i++ {
		if err := l.Check(ctx, a); err != nil {
			t.Fatalf("tenant a request %d: %v", i+1, err)
		}
	}

	if err := l.Check(ctx, b); err != nil {
		t.Errorf("tenant b should not be affected by tenant a: %v", err)
	}
}

func TestTokenBudgetTrackedNotEnforced(t *testing.T) {
	store := NewMemoryStore()
	l := newTestLimiter(store)
	defer l.Stop()

	ctx := context.Background()
	free := &tenant.Tenant{ID: "t3", Tier: "free"}

	// Spend well past the daily token budget
	l.RecordTokens(ctx, free, 150_000)

	if err := l.Check(ctx, free); err != nil {
		t.Errorf("Check() error = %v, token budget must not deny requests", err)
	}

	// The spend is still accounted for reporting
	count, _, err := store.Get(ctx, tokenKey(free.ID), Window{
		Name:     WindowTokens,
		Duration: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if count != 150_000 {
		t.Errorf("token count = %d, want 150000", count)
	}
}

func TestMemoryStoreLazyWindowReset(t *testing.T) {
	s := NewMemoryStore()
	current := time.Now()
	s.now = func() time.Time { return current }

	ctx := context.Background()
	windows := []Window{{Name: WindowMinute, Duration: time.Minute, Limit: 2}}

	for i := 0; i < 2; i++ {
		r, err := s.Take(ctx, "k", windows)
		if err != nil || !r.Allowed {
			t.Fatalf("take %d: result=%+v err=%v", i+1, r, err)
		}
	}

	r, _ := s.Take(ctx, "k", windows)
	if r.Allowed {
		t.Fatal("3rd take should be denied")
	}

	// Advance past the window; the bucket must restart from zero
	current = current.Add(61 * time.Second)

	r, err := s.Take(ctx, "k", windows)
	if err != nil || !r.Allowed {
		t.Errorf("take after window reset: result=%+v err=%v", r, err)
	}
}

func TestMemoryStoreDenialChargesNoWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	windows := []Window{
		{Name: WindowMinute, Duration: time.Minute, Limit: 1},
		{Name: WindowDay, Duration: 24 * time.Hour, Limit: 100},
	}

	if r, _ := s.Take(ctx, "k", windows); !r.Allowed {
		t.Fatal("first take should be allowed")
	}

	// Denied by the minute window; the day window must not be charged
	for i := 0; i < 5; i++ {
		if r, _ := s.Take(ctx, "k", windows); r.Allowed {
			t.Fatal("take should be denied")
		}
	}

	count, _, err := s.Get(ctx, "k", windows[1])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if count != 1 {
		t.Errorf("day window count = %d, want 1 (denied takes must not be charged)", count)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore()
	current := time.Now()
	s.now = func() time.Time { return current }

	ctx := context.Background()
	windows := []Window{{Name: WindowMinute, Duration: time.Minute, Limit: 10}}

	_, _ = s.Take(ctx, "a", windows)
	_, _ = s.Take(ctx, "b", windows)

	if removed := s.Sweep(ctx); removed != 0 {
		t.Errorf("Sweep() before expiry = %d, want 0", removed)
	}

	current = current.Add(2 * time.Minute)

	if removed := s.Sweep(ctx); removed != 2 {
		t.Errorf("Sweep() after expiry = %d, want 2", removed)
	}
}
