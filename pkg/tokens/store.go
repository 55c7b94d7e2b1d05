package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"opsbridge/pkg/tenants"
)

// ErrTokenFetchFailed wraps any provider failure during a refresh, including
// an empty token.
var ErrTokenFetchFailed = errors.New("token fetch failed")

// Store is the per-tenant live token cache. It never fetches on Get; only
// ForceRefresh talks to the provider.
//
// With single-flight enabled, concurrent ForceRefresh calls for the same
// tenant share one provider call. Without it every caller fetches on its own
// and the last write wins.
type Store struct {
	cache        Cache
	provider     Provider
	group        *singleflight.Group
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	log          *zap.SugaredLogger
}

// cacheWriteTimeout bounds cache writes and deletes that must land even after
// the caller's context has ended.
const cacheWriteTimeout = 2 * time.Second

type Option func(*Store)

func WithCache(c Cache) Option { return func(s *Store) { s.cache = c } }

// WithSingleFlight toggles per-tenant refresh collapsing (default on).
func WithSingleFlight(on bool) Option {
	return func(s *Store) {
		if on {
			s.group = &singleflight.Group{}
		} else {
			s.group = nil
		}
	}
}

// WithTTL caps how long a token stays cached; zero keeps it until the next refresh.
func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

// WithFetchTimeout bounds a shared single-flight fetch, which runs detached
// from any one caller's context. Default 30s.
func WithFetchTimeout(d time.Duration) Option { return func(s *Store) { s.fetchTimeout = d } }

func WithLogger(l *zap.SugaredLogger) Option { return func(s *Store) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func NewStore(p Provider, opts ...Option) *Store {
	s := &Store{
		cache:        NewMemoryCache(),
		provider:     p,
		group:        &singleflight.Group{},
		fetchTimeout: 30 * time.Second,
		now:          time.Now,
		log:          zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the cached token. Cache errors are logged and reported as absent.
func (s *Store) Get(ctx context.Context, tenantID string) (string, bool) {
	tok, ok, err := s.cache.Get(ctx, tenantID)
	if err != nil {
		s.log.Warnw("token cache read failed", "tenant", tenantID, "err", err)
		return "", false
	}
	return tok, ok
}

// Invalidate clears the cached token for tenantID. The delete runs even when
// ctx is already done.
func (s *Store) Invalidate(ctx context.Context, tenantID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, tenantID); err != nil {
		s.log.Warnw("token cache delete failed", "tenant", tenantID, "err", err)
	}
}

// ForceRefresh fetches a new token through the provider and stores it. On
// failure the cached token is cleared and the error wraps ErrTokenFetchFailed.
//
// The shared single-flight fetch is detached from ctx: a caller that gives up
// returns ctx.Err() while the fetch carries on for the remaining waiters.
func (s *Store) ForceRefresh(ctx context.Context, t tenants.Tenant) (string, error) {
	if s.group == nil {
		return s.refresh(ctx, t)
	}
	ch := s.group.DoChan(t.ID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.refresh(fctx, t)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		if r.Shared {
			s.log.Debugw("token refresh shared", "tenant", t.ID)
		}
		return r.Val.(string), nil
	}
}

func (s *Store) refresh(ctx context.Context, t tenants.Tenant) (string, error) {
	tok, err := s.provider.Fetch(ctx, t.TokenDescriptor)
	if err == nil && tok == "" {
		err = ErrTokenSourceEmpty
	}
	if err != nil {
		s.Invalidate(ctx, t.ID)
		return "", fmt.Errorf("%w for tenant %s: %w", ErrTokenFetchFailed, t.ID, err)
	}

	ttl := s.ttl
	fields := []any{"tenant", t.ID}
	if exp, ok := Expiry(tok); ok {
		left := exp.Sub(s.now())
		fields = append(fields, "expires_in", left.Round(time.Second))
		if left <= 0 {
			s.log.Warnw("provider returned an expired token", fields...)
		} else if ttl == 0 || left < ttl {
			ttl = left
		}
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	if err := s.cache.Set(wctx, t.ID, tok, ttl); err != nil {
		// The caller still gets the fresh token; the next Get just misses.
		s.log.Warnw("token cache write failed", "tenant", t.ID, "err", err)
	}
	s.log.Infow("token refreshed", fields...)
	return tok, nil
}
