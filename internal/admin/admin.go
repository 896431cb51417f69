// Package admin serves the privileged operations surface: usage
// reporting and tenant inspection. Every route requires the admin key.
package admin

import (
	"crypto/subtle"
	"net/http"
	"sort"
	"strconv"

	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
	"github.com/answergrid/answergrid/internal/pkg/middleware"
	"github.com/answergrid/answergrid/internal/pkg/respond"
	"github.com/answergrid/answergrid/internal/tenant"
	"github.com/answergrid/answergrid/internal/usage"
)

// maxHistoryLimit bounds one usage history page.
const maxHistoryLimit = 1000

// defaultHistoryLimit is the page size when the caller does not ask.
const defaultHistoryLimit = 100

// Handler serves the admin routes.
type Handler struct {
	adminKey string
	resolver *tenant.Resolver
	tracker  *usage.Tracker
	log      *logger.Logger
}

// NewHandler builds the admin surface. An empty adminKey disables it:
// every request is rejected.
func NewHandler(adminKey string, resolver *tenant.Resolver, tracker *usage.Tracker, log *logger.Logger) *Handler {
	return &Handler{
		adminKey: adminKey,
		resolver: resolver,
		tracker:  tracker,
		log:      log,
	}
}

// Middleware authenticates admin requests with the X-Admin-Key header.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.RequestIDFrom(r.Context())

		if h.adminKey == "" {
			errors.WriteError(w, requestID, errors.ForbiddenError("admin surface is disabled"))
			return
		}

		key := r.Header.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.adminKey)) != 1 {
			h.log.WithContext(r.Context()).Warn("admin auth failed", "path", r.URL.Path)
			errors.WriteError(w, requestID, errors.ForbiddenError("invalid admin key"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// tenantSummary is the client-facing tenant record. API keys are never
// echoed back.
type tenantSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Namespace string `json:"namespace"`
	Tier      string `json:"tier"`
	Demo      bool   `json:"demo,omitempty"`
}

// HandleTenants serves GET /v1/admin/tenants.
func (h *Handler) HandleTenants(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFrom(r.Context())

	tenants := h.resolver.Tenants()
	out := make([]tenantSummary, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, tenantSummary{
			ID:        t.ID,
			Name:      t.Name,
			Namespace: t.Namespace,
			Tier:      t.Tier,
			Demo:      t.Demo,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	respond.JSON(w, requestID, http.StatusOK, map[string]any{"tenants": out})
}

// HandleUsage serves GET /v1/admin/usage. Without a tenant parameter it
// returns per-tenant summaries; with one it returns that tenant's
// recent records, newest first.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFrom(r.Context())

	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		respond.JSON(w, requestID, http.StatusOK, map[string]any{
			"summaries": h.tracker.Summaries(),
		})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			errors.WriteError(w, requestID, errors.ValidationError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	respond.JSON(w, requestID, http.StatusOK, map[string]any{
		"tenant":  tenantID,
		"records": h.tracker.History(tenantID, limit),
	})
}
