package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opsbridge/pkg/tenants"
	"opsbridge/pkg/tokens"
)

var (
	ErrRateLimitExhausted = errors.New("rate limit retries exhausted")
	ErrAuthRetryExhausted = errors.New("auth retries exhausted")
	ErrAttemptsExhausted  = errors.New("attempts exhausted without a terminal response")
	ErrCancelled          = errors.New("cancelled or timed out")
	ErrInvalidRequest     = errors.New("invalid request")
)

// NetworkError means no HTTP response was received at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-retryable HTTP status from the upstream API.
type APIError struct {
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	body := string(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, body)
}

// RateLimitError reports the final 429. It matches ErrRateLimitExhausted.
type RateLimitError struct {
	Attempts   int
	RetryAfter time.Duration // upstream Retry-After, zero when absent
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s after %d attempts", ErrRateLimitExhausted, e.Attempts)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimitExhausted }

// Outcome is the tag of a terminal Execute result.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeUnknownTenant  Outcome = "unknown_tenant"
	OutcomeTokenFailed    Outcome = "token_fetch_failed"
	OutcomeNetworkError   Outcome = "network_error"
	OutcomeRateLimited    Outcome = "rate_limit_exhausted"
	OutcomeAuthExhausted  Outcome = "auth_retry_exhausted"
	OutcomeFatalAPI       Outcome = "fatal_api_error"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeExhausted      Outcome = "attempts_exhausted"
	OutcomeInvalidRequest Outcome = "invalid_request"
	OutcomeUnknown        Outcome = "error"
)

// Classify maps an error returned by Execute (or anything wrapping one) to its Outcome.
func Classify(err error) Outcome {
	var netErr *NetworkError
	var apiErr *APIError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.Is(err, tenants.ErrUnknownTenant):
		return OutcomeUnknownTenant
	case errors.Is(err, tokens.ErrTokenFetchFailed), errors.Is(err, tokens.ErrTokenSourceEmpty):
		return OutcomeTokenFailed
	case errors.As(err, &netErr):
		return OutcomeNetworkError
	case errors.Is(err, ErrRateLimitExhausted):
		return OutcomeRateLimited
	case errors.Is(err, ErrAuthRetryExhausted):
		return OutcomeAuthExhausted
	case errors.As(err, &apiErr):
		return OutcomeFatalAPI
	case errors.Is(err, ErrAttemptsExhausted):
		return OutcomeExhausted
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalidRequest
	}
	return OutcomeUnknown
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}
