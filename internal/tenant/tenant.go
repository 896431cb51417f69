// Package tenant resolves API credentials to tenant identities and scopes
// every downstream operation (retrieval namespace, rate limit tier, usage
// attribution) to the resolved tenant.
package tenant

import (
	"context"
)

// Tenant is a resolved API consumer.
type Tenant struct {
	// ID uniquely identifies the tenant.
	ID string `json:"id"`

	// Name is the human-readable tenant name.
	Name string `json:"name"`

	// Namespace scopes retrieval to the tenant's document collection.
	Namespace string `json:"namespace"`

	// Tier selects the tenant's rate limit tier.
	Tier string `json:"tier"`

	// Demo marks the anonymous fallback tenant.
	Demo bool `json:"demo,omitempty"`
}

type ctxKey struct{}

// WithTenant returns a context carrying the tenant.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the tenant stored in ctx, or nil.
func FromContext(ctx context.Context) *Tenant {
	t, _ := ctx.Value(ctxKey{}).(*Tenant)
	return t
}
