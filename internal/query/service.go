// Package query orchestrates the answer pipeline: moderation, rate
// limiting, cache lookup, retrieval, synthesis, and usage accounting.
package query

import (
	"context"
	"encoding/json"
	"time"

	"github.com/answergrid/answergrid/internal/answer"
	"github.com/answergrid/answergrid/internal/cache"
	"github.com/answergrid/answergrid/internal/config"
	"github.com/answergrid/answergrid/internal/metrics"
	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
	"github.com/answergrid/answergrid/internal/pkg/middleware"
	"github.com/answergrid/answergrid/internal/retriever"
	"github.com/answergrid/answergrid/internal/tenant"
	"github.com/answergrid/answergrid/internal/usage"
)

// Query modes.
const (
	ModeAnswer    = "answer"
	ModeRetrieval = "retrieval"
)

// Cache modes.
const (
	CacheOn  = "on"
	CacheOff = "off"
)

// Pipeline stage names used in metrics.
const (
	stageModeration = "moderation"
	stageRateLimit  = "ratelimit"
	stageCache      = "cache"
	stageRetrieval  = "retrieval"
	stageSynthesis  = "synthesis"
)

// Request is a parsed query request.
type Request struct {
	// Query is the question text.
	Query string `json:"query"`

	// TopK is the retrieval depth. Defaults from config when zero;
	// values above the configured maximum are clamped to it.
	TopK int `json:"topK,omitempty"`

	// Mode is "answer" (default) or "retrieval".
	Mode string `json:"mode,omitempty"`

	// CacheMode is "on" (default) or "off". Off bypasses cache reads
	// and writes for this request.
	CacheMode string `json:"cacheMode,omitempty"`
}

// Result is the data half of a query response.
type Result struct {
	// Query echoes the question.
	Query string `json:"query"`

	// Mode is the mode served.
	Mode string `json:"mode"`

	// Answer is the synthesized answer. Empty in retrieval mode.
	Answer string `json:"answer,omitempty"`

	// Citations are 0-based indexes into Passages. Empty in retrieval
	// mode.
	Citations []int `json:"citations,omitempty"`

	// Passages are the retrieved passages, best first.
	Passages []retriever.Passage `json:"passages"`

	// Cached reports whether the response came from cache.
	Cached bool `json:"cached"`

	// CacheBackend names the tier that served a cached response.
	CacheBackend string `json:"cacheBackend,omitempty"`

	// LatencyMs is the server-side processing time.
	LatencyMs int64 `json:"latencyMs"`
}

// Gate screens queries. *moderation.Gate satisfies it.
type Gate interface {
	Screen(query string) error
}

// Limiter enforces tenant budgets. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Check(ctx context.Context, t *tenant.Tenant) error
	RecordTokens(ctx context.Context, t *tenant.Tenant, tokens int64)
}

// ResponseCache is the two-tier cache. *cache.Cache satisfies it.
type ResponseCache interface {
	Get(ctx context.Context, l cache.Lookup) (*cache.Entry, string, bool)
	Put(ctx context.Context, l cache.Lookup, e *cache.Entry)
}

// Retriever fetches passages. *retriever.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, namespace, query string, topK int) ([]retriever.Passage, error)
}

// Synthesizer generates answers. *answer.Synthesizer satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, passages []retriever.Passage) (*answer.Answer, error)
}

// Tracker records usage. *usage.Tracker satisfies it.
type Tracker interface {
	Record(ctx context.Context, rec usage.Record)
}

// Service runs the query pipeline.
type Service struct {
	gate      Gate
	limiter   Limiter
	cache     ResponseCache
	retriever Retriever
	synth     Synthesizer
	tracker   Tracker
	cfg       config.RetrievalConfig
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewService wires the pipeline. cache may be nil to disable caching
// entirely.
func NewService(gate Gate, limiter Limiter, responseCache ResponseCache, r Retriever, synth Synthesizer, tracker Tracker, cfg config.RetrievalConfig, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		gate:      gate,
		limiter:   limiter,
		cache:     responseCache,
		retriever: r,
		synth:     synth,
		tracker:   tracker,
		cfg:       cfg,
		log:       log,
		metrics:   m,
	}
}

// Execute runs one query through the pipeline.
//
// Stage order is part of the contract: moderation runs before the cache
// so a rejected query can never be answered from a previous cache
// entry, and the rate limiter runs before any retrieval or model work
// so over-budget tenants cost nothing.
func (s *Service) Execute(ctx context.Context, t *tenant.Tenant, req Request) (*Result, error) {
	start := time.Now()

	result, err := s.execute(ctx, t, req, start)

	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = errorStatus(err)
		}
		s.metrics.QueryRequests.WithLabels(modeOrDefault(req.Mode), status).Inc()
		s.metrics.PipelineLatency.Observe(float64(time.Since(start).Milliseconds()))
	}

	return result, err
}

func (s *Service) execute(ctx context.Context, t *tenant.Tenant, req Request, start time.Time) (*Result, error) {
	log := s.log.WithContext(ctx).WithTenant(t.ID)

	mode := modeOrDefault(req.Mode)

	if err := s.stage(stageRateLimit, func() error {
		return s.limiter.Check(ctx, t)
	}); err != nil {
		return nil, err
	}

	// The gate guards answer generation only; retrieval mode returns raw
	// passages and is not subject to intent filtering
	if mode == ModeAnswer {
		if err := s.stage(stageModeration, func() error {
			return s.gate.Screen(req.Query)
		}); err != nil {
			return nil, err
		}
	}

	topK := s.topK(req.TopK)
	useCache := s.cache != nil && req.CacheMode != CacheOff

	lookup := cache.Lookup{
		Query:     req.Query,
		TopK:      topK,
		Mode:      mode,
		Namespace: t.Namespace,
	}

	if useCache {
		var entry *cache.Entry
		var backend string
		var hit bool
		_ = s.stage(stageCache, func() error {
			entry, backend, hit = s.cache.Get(ctx, lookup)
			return nil
		})
		if hit {
			if result := decodeCached(entry, backend, start); result != nil {
				log.Debug("cache hit", "backend", backend)
				s.record(ctx, t, req, usage.Record{
					Mode:         mode,
					CacheBackend: backend,
				})
				return result, nil
			}
			// Undecodable entry: fall through to the full pipeline
			log.Warn("discarding corrupt cache entry", "backend", backend)
		}
	}

	var passages []retriever.Passage
	err := s.stage(stageRetrieval, func() error {
		var rerr error
		passages, rerr = s.retriever.Retrieve(ctx, t.Namespace, req.Query, topK)
		return rerr
	})
	if err != nil {
		return nil, err
	}

	result := &Result{
		Query:    req.Query,
		Mode:     mode,
		Passages: passages,
	}

	rec := usage.Record{
		Mode:        mode,
		EmbedTokens: usage.EstimateTokens(req.Query),
	}

	if mode == ModeAnswer {
		var ans *answer.Answer
		err := s.stage(stageSynthesis, func() error {
			var serr error
			ans, serr = s.synth.Synthesize(ctx, req.Query, passages)
			return serr
		})
		if err != nil {
			return nil, err
		}

		result.Answer = ans.Text
		result.Citations = ans.Citations
		rec.PromptTokens = int64(ans.Usage.PromptTokens)
		rec.CompletionTokens = int64(ans.Usage.CompletionTokens)
		if rec.CompletionTokens == 0 && len(passages) > 0 {
			// Providers that omit usage still get charged an estimate
			rec.CompletionTokens = usage.EstimateTokens(ans.Text)
		}
	}

	result.LatencyMs = time.Since(start).Milliseconds()

	// Empty retrievals are not cached: the fixed no-information answer
	// would otherwise mask documents ingested within the TTL
	if useCache && len(passages) > 0 {
		if data, err := json.Marshal(result); err == nil {
			s.cache.Put(ctx, lookup, &cache.Entry{
				Data:      data,
				CreatedAt: time.Now(),
			})
		}
	}

	s.record(ctx, t, req, rec)

	return result, nil
}

// record finishes and submits the usage record. Accounting never fails
// the request.
func (s *Service) record(ctx context.Context, t *tenant.Tenant, req Request, rec usage.Record) {
	rec.RequestID = middleware.RequestIDFrom(ctx)
	rec.TenantID = t.ID

	if s.tracker != nil {
		s.tracker.Record(ctx, rec)
	}
	if s.limiter != nil {
		s.limiter.RecordTokens(ctx, t, rec.TotalTokens())
	}
}

// stage times one pipeline stage.
func (s *Service) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.metrics != nil {
		s.metrics.StageLatency.WithLabels(name).Observe(float64(time.Since(start).Milliseconds()))
	}
	return err
}

func (s *Service) topK(requested int) int {
	if requested <= 0 {
		return s.cfg.DefaultTopK
	}
	if s.cfg.MaxTopK > 0 && requested > s.cfg.MaxTopK {
		return s.cfg.MaxTopK
	}
	return requested
}

// decodeCached rebuilds a Result from a cache entry. Returns nil when
// the entry cannot be decoded.
func decodeCached(entry *cache.Entry, backend string, start time.Time) *Result {
	var result Result
	if err := json.Unmarshal(entry.Data, &result); err != nil {
		return nil
	}

	result.Cached = true
	result.CacheBackend = backend
	result.LatencyMs = time.Since(start).Milliseconds()
	return &result
}

func modeOrDefault(mode string) string {
	if mode == "" {
		return ModeAnswer
	}
	return mode
}

// errorStatus maps an error to a metrics status label.
func errorStatus(err error) string {
	if appErr := errors.AsAppError(err); appErr != nil {
		switch appErr.Code {
		case errors.CodeRateLimited:
			return "rate_limited"
		case errors.CodeJailbreak, errors.CodeOutOfDomain:
			return "rejected"
		case errors.CodeRetrievalFailed, errors.CodeAnswerFailed:
			return "upstream_error"
		}
	}
	return "error"
}
