package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsbridge/internal/executor"
	"opsbridge/internal/tiny"
	"opsbridge/pkg/config"
	"opsbridge/pkg/tenants"
	"opsbridge/pkg/tokens"
)

type env struct {
	router   http.Handler
	store    *tokens.Store
	upstream http.HandlerFunc
}

func newEnv(t *testing.T, upstream http.HandlerFunc) *env {
	t.Helper()
	e := &env{upstream: upstream}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { e.upstream(w, r) }))
	t.Cleanup(srv.Close)

	reg, err := tenants.NewMemoryRegistry([]tenants.Tenant{
		{ID: "JP", DisplayName: "Loja Jardim Paulista", TokenDescriptor: "jp"},
		{ID: "SP", DisplayName: "Loja São Paulo", TokenDescriptor: "sp"},
	}, false, nil)
	require.NoError(t, err)
	e.store = tokens.NewStore(tokens.StaticProvider{"jp": "tok-jp", "sp": "tok-sp"})

	promReg := prometheus.NewRegistry()
	exec := executor.New(reg, e.store, srv.URL,
		executor.WithHTTPClient(srv.Client()),
		executor.WithPolicy(executor.RetryPolicy{time.Millisecond, time.Millisecond}),
		executor.WithSleep(func(context.Context, time.Duration) error { return nil }),
		executor.WithObserver(executor.NewMetrics(promReg)),
	)
	e.router = NewRouter(Deps{
		Config:   config.Config{Env: "test"},
		Registry: reg,
		Tokens:   e.store,
		Tiny:     tiny.New(exec),
		Gatherer: promReg,
	})
	return e
}

func (e *env) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(method, path, rdr))
	var out map[string]any
	if strings.Contains(rec.Header().Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAndOpenAPI(t *testing.T) {
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {})
	rec, body := e.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])

	rec, body = e.do(t, http.MethodGet, "/.well-known/openapi.json", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["paths"], "/v1/tenants/{tenant}/stock/{productID}")
}

func TestListTenantsAndRefresh(t *testing.T) {
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {})

	_, body := e.do(t, http.MethodGet, "/v1/tenants", "")
	list := body["tenants"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, false, list[0].(map[string]any)["token_cached"])

	rec, body := e.do(t, http.MethodPost, "/v1/tenants/Jardim/token/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "JP", body["tenant"])
	assert.NotContains(t, body, "expires_at")

	_, body = e.do(t, http.MethodGet, "/v1/tenants", "")
	assert.Equal(t, true, body["tenants"].([]any)[0].(map[string]any)["token_cached"])
}

func TestUnknownTenant(t *testing.T) {
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) { t.Error("upstream must not be called") })
	rec, body := e.do(t, http.MethodGet, "/v1/tenants/MG/deposits", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, body["type"], "unknown-tenant")
}

func TestGetProduct(t *testing.T) {
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-sp", r.Header.Get("Authorization"))
		assert.Equal(t, "SP 0001", r.URL.Query().Get("codigo"))
		_, _ = io.WriteString(w, `{"itens":[{"id":1}]}`)
	})
	rec, body := e.do(t, http.MethodGet, "/v1/tenants/SP/products?filter=codigo&value=SP+0001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["itens"], 1)

	rec, _ = e.do(t, http.MethodGet, "/v1/tenants/SP/products", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitMapsTo503(t *testing.T) {
	var calls int32
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	rec, body := e.do(t, http.MethodGet, "/v1/tenants/JP/deposits", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("Retry-After"))
	assert.Contains(t, body["type"], "rate-limited")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMoveStock(t *testing.T) {
	var got map[string]any
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/estoque/555", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"idLancamento":77}`)
	})
	rec, body := e.do(t, http.MethodPost, "/v1/tenants/JP/stock/555", `{"to":"SP","type":"S","quantity":"2.5","deposit_id":9,"unit_price":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(77), body["idLancamento"])
	assert.Equal(t, "S", got["tipo"])
	assert.Equal(t, 2.5, got["quantidade"])

	rec, _ = e.do(t, http.MethodPost, "/v1/tenants/JP/stock/555", `{"type":"X","quantity":1,"deposit_id":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/v1/tenants/JP/stock/555", `{"bogus":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpstreamErrorMapsTo502(t *testing.T) {
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"mensagem":"nope"}`)
	})
	rec, body := e.do(t, http.MethodGet, "/v1/tenants/JP/deposits", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, float64(400), body["upstream_status"])
	assert.Equal(t, "/v1/tenants/JP/deposits", body["instance"])
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, `{"itens":[]}`) })
	e.do(t, http.MethodGet, "/v1/tenants/JP/products?filter=codigo&value=x", "")

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "opsbridge_")
}

func TestProblemFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{tenants.ErrUnknownTenant, http.StatusNotFound},
		{tiny.ErrNoProducts, http.StatusNotFound},
		{executor.ErrInvalidRequest, http.StatusBadRequest},
		{tokens.ErrTokenFetchFailed, http.StatusBadGateway},
		{&executor.NetworkError{Err: errors.New("refused")}, http.StatusBadGateway},
		{executor.ErrAuthRetryExhausted, http.StatusBadGateway},
		{executor.ErrCancelled, http.StatusGatewayTimeout},
		{errors.New("?"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		p, _ := ProblemFor(c.err)
		assert.Equal(t, c.status, p.Status, c.err.Error())
	}
	p, wait := ProblemFor(&executor.RateLimitError{Attempts: 5})
	assert.Equal(t, http.StatusServiceUnavailable, p.Status)
	assert.Equal(t, defaultRetryAfter, wait)
}
