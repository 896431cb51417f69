// Package usage records per-request consumption for billing and admin
// reporting. Recording is strictly fire-and-forget: a request that
// produced an answer is never failed by accounting.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/answergrid/answergrid/internal/bus"
	"github.com/answergrid/answergrid/internal/config"
	"github.com/answergrid/answergrid/internal/metrics"
	"github.com/answergrid/answergrid/internal/pkg/logger"
)

// Record is one request's usage.
type Record struct {
	// RequestID correlates the record with the request.
	RequestID string `json:"requestId"`

	// TenantID attributes the usage.
	TenantID string `json:"tenantId"`

	// Mode is the query mode served.
	Mode string `json:"mode"`

	// CacheBackend names the cache tier that served the request, empty
	// on a cache miss.
	CacheBackend string `json:"cacheBackend,omitempty"`

	// EmbedTokens is the estimated embedding token count.
	EmbedTokens int64 `json:"embedTokens"`

	// PromptTokens is the prompt token count reported by the provider.
	PromptTokens int64 `json:"promptTokens"`

	// CompletionTokens is the completion token count.
	CompletionTokens int64 `json:"completionTokens"`

	// EstimatedCostUSD is the estimated cost of this request.
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`

	// Timestamp is when the record was created.
	Timestamp time.Time `json:"timestamp"`
}

// TotalTokens returns the record's total token consumption.
func (r Record) TotalTokens() int64 {
	return r.EmbedTokens + r.PromptTokens + r.CompletionTokens
}

// Summary aggregates a tenant's usage.
type Summary struct {
	TenantID         string  `json:"tenantId"`
	Requests         int64   `json:"requests"`
	CacheHits        int64   `json:"cacheHits"`
	EmbedTokens      int64   `json:"embedTokens"`
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
}

// Tracker keeps a bounded in-memory history and publishes each record
// to the event bus for downstream billing.
type Tracker struct {
	mu      sync.Mutex
	ring    []Record
	next    int
	full    bool
	costs   config.UsageConfig
	bus     bus.Bus
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewTracker creates a tracker. The bus may be nil in tests.
func NewTracker(cfg config.UsageConfig, b bus.Bus, log *logger.Logger, m *metrics.Metrics) *Tracker {
	size := cfg.HistorySize
	if size <= 0 {
		size = 10000
	}

	return &Tracker{
		ring:    make([]Record, size),
		costs:   cfg,
		bus:     b,
		log:     log,
		metrics: m,
	}
}

// EstimateTokens approximates the token count of a text. One token per
// four characters is the conventional rough cut for English text.
func EstimateTokens(text string) int64 {
	return int64(len(text)+3) / 4
}

// Record appends a usage record, filling in its cost estimate, and
// publishes it. Errors are logged and swallowed.
func (t *Tracker) Record(ctx context.Context, rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.EstimatedCostUSD = t.estimateCost(rec)

	t.mu.Lock()
	t.ring[t.next] = rec
	t.next++
	if t.next == len(t.ring) {
		t.next = 0
		t.full = true
	}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.TokensTotal.WithLabels(rec.TenantID, "embedding").Add(rec.EmbedTokens)
		t.metrics.TokensTotal.WithLabels(rec.TenantID, "prompt").Add(rec.PromptTokens)
		t.metrics.TokensTotal.WithLabels(rec.TenantID, "completion").Add(rec.CompletionTokens)
	}

	t.publish(ctx, rec)
}

// History returns the most recent records, newest first, optionally
// filtered by tenant. limit <= 0 returns everything retained.
func (t *Tracker) History(tenantID string, limit int) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := t.next
	if t.full {
		size = len(t.ring)
	}

	out := make([]Record, 0, size)
	for i := 0; i < size; i++ {
		// Walk backwards from the most recent write
		idx := (t.next - 1 - i + len(t.ring)) % len(t.ring)
		rec := t.ring[idx]
		if tenantID != "" && rec.TenantID != tenantID {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out
}

// Summaries aggregates retained history per tenant.
func (t *Tracker) Summaries() []Summary {
	records := t.History("", 0)

	byTenant := make(map[string]*Summary)
	order := make([]string, 0)
	for _, rec := range records {
		s, ok := byTenant[rec.TenantID]
		if !ok {
			s = &Summary{TenantID: rec.TenantID}
			byTenant[rec.TenantID] = s
			order = append(order, rec.TenantID)
		}
		s.Requests++
		if rec.CacheBackend != "" {
			s.CacheHits++
		}
		s.EmbedTokens += rec.EmbedTokens
		s.PromptTokens += rec.PromptTokens
		s.CompletionTokens += rec.CompletionTokens
		s.EstimatedCostUSD += rec.EstimatedCostUSD
	}

	out := make([]Summary, 0, len(order))
	for _, id := range order {
		out = append(out, *byTenant[id])
	}
	return out
}

func (t *Tracker) estimateCost(rec Record) float64 {
	return float64(rec.EmbedTokens)/1000*t.costs.EmbedCostPer1K +
		float64(rec.PromptTokens)/1000*t.costs.PromptCostPer1K +
		float64(rec.CompletionTokens)/1000*t.costs.CompletionCostPer1K
}

func (t *Tracker) publish(ctx context.Context, rec Record) {
	if t.bus == nil {
		return
	}

	event := bus.Event{
		ID:            uuid.NewString(),
		Type:          bus.TopicUsageRecorded,
		Source:        "answergrid",
		Timestamp:     rec.Timestamp.Unix(),
		CorrelationID: rec.RequestID,
		Payload:       rec,
	}

	if err := t.bus.Publish(ctx, bus.TopicUsageRecorded, event); err != nil {
		t.log.WithError(err).Warn("failed to publish usage event")
		if t.metrics != nil {
			t.metrics.BusErrors.WithLabels(bus.TopicUsageRecorded).Inc()
		}
		return
	}

	if t.metrics != nil {
		t.metrics.BusEventsPublished.WithLabels(bus.TopicUsageRecorded).Inc()
	}
}
