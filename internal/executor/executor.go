package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"opsbridge/pkg/tenants"
	"opsbridge/pkg/tokens"
)

const maxBodyBytes = 4 << 20

// Executor runs one logical API call per Execute, refreshing the tenant token
// on 401/403 and backing off on 429 according to the retry policy. The two
// counters are independent: auth retries never consume rate-limit slots.
type Executor struct {
	registry    tenants.Registry
	store       *tokens.Store
	baseURL     string
	client      *http.Client
	policy      RetryPolicy
	authRetries int
	sleep       SleepFunc
	observer    Observer
	now         func() time.Time
}

type Option func(*Executor)

func WithPolicy(p RetryPolicy) Option { return func(e *Executor) { e.policy = append(RetryPolicy(nil), p...) } }

// WithAuthRetries sets how many 401/403 responses are answered with a refresh.
// Negative values count as zero.
func WithAuthRetries(n int) Option { return func(e *Executor) { e.authRetries = max(n, 0) } }

func WithHTTPClient(c *http.Client) Option { return func(e *Executor) { e.client = c } }

func WithSleep(f SleepFunc) Option { return func(e *Executor) { e.sleep = f } }

func WithObserver(o Observer) Option { return func(e *Executor) { e.observer = o } }

func WithClock(now func() time.Time) Option { return func(e *Executor) { e.now = now } }

// NewHTTPClient returns the traced client used for upstream calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func New(reg tenants.Registry, store *tokens.Store, baseURL string, opts ...Option) *Executor {
	e := &Executor{
		registry: reg,
		store:    store,
		baseURL:  baseURL,
		client:   NewHTTPClient(30 * time.Second),
		policy: RetryPolicy{
			10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 120 * time.Second,
		},
		authRetries: 3,
		sleep:       SleepContext,
		observer:    NewLogObserver(zap.NewNop().Sugar()),
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Policy returns a copy of the rate-limit schedule.
func (e *Executor) Policy() RetryPolicy { return append(RetryPolicy(nil), e.policy...) }

// run carries the per-call state of one Execute.
type run struct {
	tenant      tenants.Tenant
	req         Request
	method      string
	url         string
	body        []byte
	contentType string
	token       string // held between attempts once read or refreshed

	sends       int
	refreshes   int
	authRetries int
	rateAttempt int
	lastStatus  int
}

func (r *run) event(kind EventKind) Event {
	return Event{
		Kind:      kind,
		Tenant:    r.tenant.ID,
		Operation: r.req.operation(),
		Method:    r.method,
		Path:      r.req.Path,
		Attempt:   r.sends,
		Status:    r.lastStatus,
		Refreshes: r.refreshes,
	}
}

// Execute resolves tenantRef, then sends req until a terminal outcome.
//
//   - 2xx returns the response.
//   - no response returns *NetworkError, not retried.
//   - 401/403 refreshes the token and replays, up to the auth budget.
//   - 429 sleeps policy[n] and replays; the last slot returns ErrRateLimitExhausted.
//   - anything else returns *APIError, not retried.
//
// A missing cached token is fetched before the first send without touching
// the auth budget. The token read or refreshed is reused for later sends, so
// a cache that drops writes never causes extra refreshes. ctx bounds the whole call, backoff sleeps included.
func (e *Executor) Execute(ctx context.Context, tenantRef string, req Request) (*Response, error) {
	start := e.now()
	t, err := e.registry.Resolve(ctx, tenantRef)
	if err != nil {
		e.observer.Observe(ctx, Event{Kind: EventDone, Tenant: tenantRef, Operation: req.operation(), Outcome: Classify(err), Err: err})
		return nil, err
	}
	r := &run{tenant: t, req: req, method: req.method()}
	resp, err := e.execute(ctx, r)

	done := r.event(EventDone)
	done.Outcome = Classify(err)
	done.Duration = e.now().Sub(start)
	done.Err = err
	e.observer.Observe(ctx, done)
	return resp, err
}

func (e *Executor) execute(ctx context.Context, r *run) (*Response, error) {
	var err error
	if r.url, err = r.req.target(e.baseURL); err != nil {
		return nil, err
	}
	if r.body, r.contentType, err = r.req.body(); err != nil {
		return nil, err
	}

	maxAttempts := len(e.policy) + e.authRetries
	for i := 0; i < maxAttempts; i++ {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		if r.token == "" {
			tok, ok := e.store.Get(ctx, r.tenant.ID)
			if !ok {
				if tok, err = e.refresh(ctx, r, "missing"); err != nil {
					return nil, err
				}
			}
			r.token = tok
		}

		res, body, err := e.send(ctx, r, r.token)
		if err != nil {
			return nil, err
		}
		switch {
		case res.StatusCode >= 200 && res.StatusCode < 300:
			return &Response{
				Status:    res.StatusCode,
				Header:    res.Header,
				Body:      body,
				Attempts:  r.sends,
				Refreshes: r.refreshes,
			}, nil

		case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
			if r.authRetries >= e.authRetries {
				return nil, ErrAuthRetryExhausted
			}
			r.authRetries++
			if r.token, err = e.refresh(ctx, r, "auth"); err != nil {
				return nil, err
			}

		case res.StatusCode == http.StatusTooManyRequests:
			if r.rateAttempt >= len(e.policy)-1 {
				return nil, &RateLimitError{Attempts: r.sends, RetryAfter: retryAfter(res.Header)}
			}
			wait := e.policy[r.rateAttempt]
			ev := r.event(EventBackoff)
			ev.Wait = wait
			e.observer.Observe(ctx, ev)
			if err := e.sleep(ctx, wait); err != nil {
				return nil, err
			}
			r.rateAttempt++

		default:
			return nil, &APIError{Status: res.StatusCode, Body: body}
		}
	}
	return nil, ErrAttemptsExhausted
}

func (e *Executor) refresh(ctx context.Context, r *run, reason string) (string, error) {
	tok, err := e.store.ForceRefresh(ctx, r.tenant)
	r.refreshes++
	ev := r.event(EventRefresh)
	ev.Reason = reason
	ev.Err = err
	e.observer.Observe(ctx, ev)
	if err != nil {
		if ctx.Err() != nil {
			return "", cancelled(ctx)
		}
		return "", err
	}
	return tok, nil
}

// send performs one HTTP round trip and reads the body. Only transport
// failures are returned as errors; every HTTP status is returned to the caller.
func (e *Executor) send(ctx context.Context, r *run, tok string) (*http.Response, []byte, error) {
	var rdr io.Reader
	if r.body != nil {
		rdr = bytes.NewReader(r.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, r.method, r.url, rdr)
	if err != nil {
		return nil, nil, errors.Join(ErrInvalidRequest, err)
	}
	for k, vs := range r.req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+tok)
	httpReq.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		httpReq.Header.Set("Content-Type", r.contentType)
	}

	r.sends++
	res, err := e.client.Do(httpReq)
	if err != nil {
		r.lastStatus = 0
		e.observer.Observe(ctx, r.event(EventAttempt))
		if ctx.Err() != nil {
			return nil, nil, cancelled(ctx)
		}
		return nil, nil, &NetworkError{Err: err}
	}
	defer res.Body.Close()
	r.lastStatus = res.StatusCode
	e.observer.Observe(ctx, r.event(EventAttempt))

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, cancelled(ctx)
		}
		return nil, nil, &NetworkError{Err: err}
	}
	return res, body, nil
}
