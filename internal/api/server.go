// Package api is the HTTP surface of bridge-service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"opsbridge/internal/tiny"
	"opsbridge/pkg/config"
	"opsbridge/pkg/middleware"
	"opsbridge/pkg/openapi"
	"opsbridge/pkg/tenants"
	"opsbridge/pkg/tokens"
)

const (
	ServiceName = "opsbridge"
	Version     = "1.0.0"

	ScopeRead  = "erp:read"
	ScopeWrite = "erp:write"
)

type Deps struct {
	Config   config.Config
	Log      *zap.SugaredLogger
	Registry tenants.Registry
	Tokens   *tokens.Store
	Tiny     *tiny.Client
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
}

type handlers struct {
	Deps
}

// NewRouter wires middleware, public endpoints and the tenant-scoped /v1 API.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{Deps: d}
	bearer := d.Config.AuthJWKSURL != "" || d.Config.AuthHMACSecret != ""

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(d.Log))
	r.Use(middleware.AccessLog(d.Log))
	r.Use(middleware.Tracing(ServiceName, d.Log))
	r.Use(middleware.JWTAuth(d.Config, d.Log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/.well-known/openapi.json", Operations().ServeHandler(ServiceName, Version, bearer))

	read := middleware.RequireScope(ScopeRead, ScopeWrite)
	write := middleware.RequireScope(ScopeWrite)

	r.Route("/v1/tenants", func(r chi.Router) {
		r.With(read).Get("/", h.listTenants)
		r.Route("/{tenant}", func(r chi.Router) {
			r.Use(middleware.WithTenant(d.Registry, "tenant"))
			r.With(write).Post("/token/refresh", h.refreshToken)
			r.With(read).Get("/products", h.getProduct)
			r.With(read).Get("/deposits", h.getDeposits)
			r.With(write).Post("/stock/{productID}", h.moveStock)
		})
	})
	return r
}

// Operations describes the routes for the OpenAPI document.
func Operations() *openapi.Registry {
	tenant := openapi.Parameter{Name: "tenant", In: "path"}
	ok := func(desc string) map[string]any {
		return map[string]any{
			"200":     map[string]any{"description": desc},
			"default": map[string]any{"description": "application/problem+json"},
		}
	}
	reg := openapi.NewRegistry()
	reg.Register(openapi.Operation{ID: "health", Method: "GET", Path: "/healthz", Summary: "Health check", Responses: ok("ok")})
	reg.Register(openapi.Operation{ID: "tenants.list", Method: "GET", Path: "/v1/tenants", Summary: "List tenants", Tags: []string{"tenants"},
		Scopes: []string{ScopeRead}, Responses: ok("tenant list")})
	reg.Register(openapi.Operation{ID: "token.refresh", Method: "POST", Path: "/v1/tenants/{tenant}/token/refresh", Summary: "Force a token refresh",
		Tags: []string{"tenants"}, Scopes: []string{ScopeWrite}, Parameters: []openapi.Parameter{tenant}, Responses: ok("refreshed")})
	reg.Register(openapi.Operation{ID: "products.get", Method: "GET", Path: "/v1/tenants/{tenant}/products", Summary: "Find products",
		Tags: []string{"tiny"}, Scopes: []string{ScopeRead},
		Parameters: []openapi.Parameter{tenant, {Name: "filter", In: "query", Required: true}, {Name: "value", In: "query", Required: true}},
		Responses:  ok("ERP product list")})
	reg.Register(openapi.Operation{ID: "deposits.get", Method: "GET", Path: "/v1/tenants/{tenant}/deposits", Summary: "List stock deposits",
		Tags: []string{"tiny"}, Scopes: []string{ScopeRead}, Parameters: []openapi.Parameter{tenant}, Responses: ok("deposits")})
	reg.Register(openapi.Operation{ID: "stock.move", Method: "POST", Path: "/v1/tenants/{tenant}/stock/{productID}", Summary: "Post a stock movement",
		Tags: []string{"tiny"}, Scopes: []string{ScopeWrite},
		Parameters: []openapi.Parameter{tenant, {Name: "productID", In: "path"}},
		RequestBody: map[string]any{
			"required": true,
			"content": map[string]any{"application/json": map[string]any{"schema": map[string]any{
				"type":     "object",
				"required": []string{"type", "quantity", "deposit_id"},
				"properties": map[string]any{
					"to":         map[string]any{"type": "string"},
					"type":       map[string]any{"type": "string", "enum": []string{"E", "S", "B"}},
					"quantity":   map[string]any{"type": "number"},
					"deposit_id": map[string]any{"type": "integer"},
					"unit_price": map[string]any{"type": "number"},
				},
			}}},
		},
		Responses: ok("movement id")})
	return reg
}
