// Package server wires the application together and runs the HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/answergrid/answergrid/internal/admin"
	"github.com/answergrid/answergrid/internal/answer"
	"github.com/answergrid/answergrid/internal/bus"
	"github.com/answergrid/answergrid/internal/cache"
	"github.com/answergrid/answergrid/internal/config"
	"github.com/answergrid/answergrid/internal/ingest"
	"github.com/answergrid/answergrid/internal/metrics"
	"github.com/answergrid/answergrid/internal/moderation"
	"github.com/answergrid/answergrid/internal/pkg/logger"
	"github.com/answergrid/answergrid/internal/pkg/middleware"
	"github.com/answergrid/answergrid/internal/provider"
	"github.com/answergrid/answergrid/internal/qdrant"
	"github.com/answergrid/answergrid/internal/query"
	"github.com/answergrid/answergrid/internal/ratelimit"
	"github.com/answergrid/answergrid/internal/retriever"
	"github.com/answergrid/answergrid/internal/tenant"
	"github.com/answergrid/answergrid/internal/usage"
)

// sweepInterval is how often expired semantic cache entries are
// reclaimed from the vector store.
const sweepInterval = 10 * time.Minute

// Server is the assembled application.
type Server struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics

	qdrant   *qdrant.Client
	provider *provider.Client
	bus      bus.Bus
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	semantic *cache.SemanticTier
	resolver *tenant.Resolver
	tracker  *usage.Tracker

	query  *query.Service
	ingest *ingest.Service
	admin  *admin.Handler

	httpServer *http.Server
	stopSweep  chan struct{}
}

// New builds the server from configuration. External connections
// (Qdrant, Redis, Kafka) are established here so a misconfigured
// deployment fails at startup, not on the first request.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Server, error) {
	m := metrics.New()

	qdrantClient, err := qdrant.NewClient(qdrant.ClientConfig{
		URL:    cfg.Qdrant.URL,
		APIKey: cfg.Qdrant.APIKey,
		Prefix: cfg.Qdrant.CollectionPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	providerClient, err := provider.NewClient(cfg.Provider, log, m)
	if err != nil {
		return nil, fmt.Errorf("creating provider client: %w", err)
	}

	eventBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}

	limitStore, err := ratelimit.NewStore(ctx, cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("creating rate limit store: %w", err)
	}
	limiter := ratelimit.NewLimiter(limitStore, cfg.RateLimit, log, m)

	responseCache, semantic, err := buildCache(ctx, cfg.Cache, providerClient, qdrantClient, log, m)
	if err != nil {
		return nil, fmt.Errorf("creating response cache: %w", err)
	}

	resolver := tenant.NewResolver(cfg.Auth, log)
	tracker := usage.NewTracker(cfg.Usage, eventBus, log, m)
	gate := moderation.NewGate(cfg.Moderation, log, m)

	s := &Server{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		qdrant:   qdrantClient,
		provider: providerClient,
		bus:      eventBus,
		limiter:  limiter,
		cache:    responseCache,
		semantic: semantic,
		resolver: resolver,
		tracker:  tracker,
		query: query.NewService(
			gate,
			limiter,
			cacheOrNil(responseCache),
			retriever.New(providerClient, qdrantClient, cfg.Retrieval, log, m),
			answer.NewSynthesizer(providerClient, log),
			tracker,
			cfg.Retrieval,
			log,
			m,
		),
		ingest:    ingest.NewService(cfg.Ingest, providerClient, qdrantClient, eventBus, log, m),
		admin:     admin.NewHandler(cfg.Auth.AdminKey, resolver, tracker, log),
		stopSweep: make(chan struct{}),
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// buildCache assembles the tiered response cache. The exact tier is
// always present; the semantic tier is appended only when enabled.
func buildCache(ctx context.Context, cfg config.CacheConfig, embedder *provider.Client, store *qdrant.Client, log *logger.Logger, m *metrics.Metrics) (*cache.Cache, *cache.SemanticTier, error) {
	var tiers []cache.Tier

	var kv cache.KV
	switch cfg.ExactBackend {
	case "redis":
		var err error
		kv, err = cache.NewRedisKV(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
	default:
		kv = cache.NewMemoryKV()
	}
	tiers = append(tiers, cache.NewExactTier(kv, time.Duration(cfg.ExactTTLSecs)*time.Second))

	var semantic *cache.SemanticTier
	if cfg.SemanticEnabled {
		var err error
		semantic, err = cache.NewSemanticTier(ctx, embedder, store,
			cfg.SemanticNamespace, cfg.SemanticThreshold,
			time.Duration(cfg.SemanticTTLSecs)*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("creating semantic tier: %w", err)
		}
		tiers = append(tiers, semantic)
	}

	return cache.New(log, m, tiers...), semantic, nil
}

// cacheOrNil converts a nil *cache.Cache to an untyped nil so the query
// service's interface check sees it as absent.
func cacheOrNil(c *cache.Cache) query.ResponseCache {
	if c == nil {
		return nil
	}
	return c
}

// routes builds the HTTP handler tree.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	if s.cfg.Observability.MetricsEnabled {
		path := s.cfg.Observability.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.metrics.Handler())
	}

	mux.Handle("POST /v1/query", s.resolver.Middleware(http.HandlerFunc(s.query.HandleQuery)))
	mux.Handle("POST /v1/ingest", s.resolver.Middleware(http.HandlerFunc(s.ingest.HandleIngest)))

	mux.Handle("GET /v1/admin/usage", s.admin.Middleware(http.HandlerFunc(s.admin.HandleUsage)))
	mux.Handle("GET /v1/admin/tenants", s.admin.Middleware(http.HandlerFunc(s.admin.HandleTenants)))

	var handler http.Handler = mux
	handler = s.httpMetrics(handler)

	if s.cfg.RateLimit.IPRequestsPerSecond > 0 {
		ipCfg := middleware.DefaultIPRateLimiterConfig()
		ipCfg.RequestsPerSecond = s.cfg.RateLimit.IPRequestsPerSecond
		ipCfg.Burst = int(s.cfg.RateLimit.IPRequestsPerSecond * 2)
		if ipCfg.Burst < 1 {
			ipCfg.Burst = 1
		}
		handler = middleware.NewIPRateLimiter(ipCfg).Middleware(handler)
	}

	return middleware.RequestID(handler)
}

// httpMetrics instruments every request.
func (s *Server) httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.HTTPRequestsInFlight.Inc()
		defer s.metrics.HTTPRequestsInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		s.metrics.HTTPRequests.WithLabels(r.Method, r.URL.Path, fmt.Sprintf("%d", sw.status)).Inc()
		s.metrics.HTTPDuration.WithLabels(r.Method, r.URL.Path).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	if s.semantic != nil {
		go s.sweepLoop()
	}

	s.log.Info("server listening",
		"addr", s.httpServer.Addr,
		"cache_exact", s.cfg.Cache.ExactBackend,
		"cache_semantic", s.cfg.Cache.SemanticEnabled,
		"ratelimit", s.cfg.RateLimit.Backend,
		"bus", s.cfg.Bus.Type)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// sweepLoop periodically reclaims expired semantic cache entries.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := s.semantic.Sweep(ctx); err != nil {
				s.log.WithError(err).Warn("semantic cache sweep failed")
			}
			cancel()
		case <-s.stopSweep:
			return
		}
	}
}

// Shutdown drains in-flight requests and releases external connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")

	close(s.stopSweep)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	s.limiter.Stop()

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.WithError(err).Warn("closing cache")
		}
	}
	if err := s.bus.Close(); err != nil {
		s.log.WithError(err).Warn("closing event bus")
	}
	if err := s.qdrant.Close(); err != nil {
		s.log.WithError(err).Warn("closing qdrant client")
	}

	return nil
}

// handleHealthz reports process liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz reports readiness: the vector store must be reachable.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	if err := s.qdrant.HealthCheck(ctx); err != nil {
		s.log.WithError(err).Warn("readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable","reason":"vector store unreachable"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
