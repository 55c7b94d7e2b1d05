package api

import (
	"errors"
	"math"
	"net/http"
	"time"

	"opsbridge/internal/executor"
	"opsbridge/internal/tiny"
	"opsbridge/pkg/problems"
)

// defaultRetryAfter is advertised on 503 when the ERP sent no Retry-After.
const defaultRetryAfter = 60 * time.Second

// ProblemFor maps executor and client errors to a problem response, plus the
// Retry-After to advertise (zero for none).
func ProblemFor(err error) (problems.Problem, time.Duration) {
	var apiErr *executor.APIError
	var rl *executor.RateLimitError
	switch {
	case errors.Is(err, tiny.ErrInvalidMovement):
		return problems.New(http.StatusBadRequest, "invalid-movement", "Invalid stock movement", err.Error()), 0
	case errors.Is(err, tiny.ErrNoProducts):
		return problems.New(http.StatusNotFound, "no-products", "Tenant has no products", err.Error()), 0
	case errors.As(err, &rl):
		wait := rl.RetryAfter
		if wait <= 0 {
			wait = defaultRetryAfter
		}
		wait = time.Duration(math.Ceil(wait.Seconds())) * time.Second
		return problems.New(http.StatusServiceUnavailable, "rate-limited", "ERP rate limit exhausted", err.Error()), wait
	case errors.As(err, &apiErr):
		p := problems.New(http.StatusBadGateway, "upstream-error", "ERP rejected the request", err.Error())
		p.Extra = map[string]any{"upstream_status": apiErr.Status}
		return p, 0
	}

	switch executor.Classify(err) {
	case executor.OutcomeUnknownTenant:
		return problems.New(http.StatusNotFound, "unknown-tenant", "Unknown tenant", err.Error()), 0
	case executor.OutcomeInvalidRequest:
		return problems.New(http.StatusBadRequest, "invalid-request", "Invalid request", err.Error()), 0
	case executor.OutcomeTokenFailed:
		return problems.New(http.StatusBadGateway, "token-fetch-failed", "Could not obtain an ERP token", err.Error()), 0
	case executor.OutcomeAuthExhausted:
		return problems.New(http.StatusBadGateway, "auth-retry-exhausted", "ERP kept rejecting refreshed tokens", err.Error()), 0
	case executor.OutcomeNetworkError:
		return problems.New(http.StatusBadGateway, "network-error", "ERP unreachable", err.Error()), 0
	case executor.OutcomeExhausted:
		return problems.New(http.StatusBadGateway, "attempts-exhausted", "ERP call did not settle", err.Error()), 0
	case executor.OutcomeCancelled:
		return problems.New(http.StatusGatewayTimeout, "cancelled", "Request cancelled or timed out", err.Error()), 0
	}
	return problems.New(http.StatusInternalServerError, "internal", "Internal error", err.Error()), 0
}
