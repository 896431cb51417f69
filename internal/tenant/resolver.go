package tenant

import (
	"net/http"
	"strings"

	"github.com/answergrid/answergrid/internal/config"
	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
	"github.com/answergrid/answergrid/internal/pkg/middleware"
)

// DemoTenantID identifies the anonymous fallback tenant.
const DemoTenantID = "demo"

// Resolver maps API credentials to tenants.
type Resolver struct {
	byKey    map[string]*Tenant
	required bool
	demo     *Tenant
	log      *logger.Logger
}

// NewResolver builds a resolver from static tenant configuration.
func NewResolver(cfg config.AuthConfig, log *logger.Logger) *Resolver {
	byKey := make(map[string]*Tenant, len(cfg.Tenants))
	for _, tc := range cfg.Tenants {
		if tc.APIKey == "" || tc.ID == "" {
			continue
		}
		tier := tc.Tier
		if tier == "" {
			tier = "free"
		}
		namespace := tc.Namespace
		if namespace == "" {
			namespace = tc.ID
		}
		byKey[tc.APIKey] = &Tenant{
			ID:        tc.ID,
			Name:      tc.Name,
			Namespace: namespace,
			Tier:      tier,
		}
	}

	demoNamespace := cfg.DemoNamespace
	if demoNamespace == "" {
		demoNamespace = "default"
	}

	return &Resolver{
		byKey:    byKey,
		required: cfg.Required,
		demo: &Tenant{
			ID:        DemoTenantID,
			Name:      "Demo",
			Namespace: demoNamespace,
			Tier:      "free",
			Demo:      true,
		},
		log: log,
	}
}

// Resolve maps the request's credential to a tenant.
//
// Credentials are checked in priority order: Authorization Bearer token,
// X-API-Key header, then the apiKey query parameter. A present but
// unknown credential is rejected rather than downgraded to the demo
// tenant, so a typoed key never silently reads the wrong namespace.
func (r *Resolver) Resolve(req *http.Request) (*Tenant, error) {
	key := extractCredential(req)

	if key == "" {
		if r.required {
			return nil, errors.New(errors.CodeUnauthorized, "missing API credentials")
		}
		return r.demo, nil
	}

	t, ok := r.byKey[key]
	if !ok {
		return nil, errors.New(errors.CodeForbidden, "invalid API key")
	}
	return t, nil
}

// Lookup resolves a bare API key, for callers outside the HTTP path.
func (r *Resolver) Lookup(key string) (*Tenant, bool) {
	t, ok := r.byKey[key]
	return t, ok
}

// Tenants returns all configured tenants, demo excluded.
func (r *Resolver) Tenants() []*Tenant {
	out := make([]*Tenant, 0, len(r.byKey))
	for _, t := range r.byKey {
		out = append(out, t)
	}
	return out
}

// Middleware resolves the tenant and stores it in the request context.
// Requests with unknown credentials are rejected before reaching any
// handler.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t, err := r.Resolve(req)
		if err != nil {
			requestID := middleware.RequestIDFrom(req.Context())
			r.log.WithContext(req.Context()).Warn("credential rejected",
				"remote", req.RemoteAddr)
			errors.WriteError(w, requestID, err)
			return
		}

		ctx := WithTenant(req.Context(), t)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// extractCredential pulls the API key from the request, in priority order.
func extractCredential(req *http.Request) string {
	if auth := req.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}

	if key := strings.TrimSpace(req.Header.Get("X-API-Key")); key != "" {
		return key
	}

	return strings.TrimSpace(req.URL.Query().Get("apiKey"))
}
