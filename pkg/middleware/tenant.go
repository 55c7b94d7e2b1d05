// pkg/middleware/tenant.go
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsbridge/pkg/tenants"
)

type ctxTenantKey struct{}

// WithTenant resolves the {param} URL segment (id or display-name fragment)
// through reg and stores the tenant in the request context. Unknown tenants
// get a 404 problem.
func WithTenant(reg tenants.Registry, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ref := chi.URLParam(r, param)
			t, err := reg.Resolve(r.Context(), ref)
			if errors.Is(err, tenants.ErrUnknownTenant) {
				writeProblem(w, http.StatusNotFound, "unknown-tenant", "Unknown tenant", err.Error())
				return
			}
			if err != nil {
				writeProblem(w, http.StatusInternalServerError, "tenant-lookup", "Tenant lookup failed", err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxTenantKey{}, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func TenantFrom(ctx context.Context) tenants.Tenant {
	if v := ctx.Value(ctxTenantKey{}); v != nil {
		return v.(tenants.Tenant)
	}
	return tenants.Tenant{}
}
