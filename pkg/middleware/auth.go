// pkg/middleware/auth.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"opsbridge/pkg/config"
)

// jwksCache caches JWKS sets per URL.
type jwksCache struct {
	mu   sync.RWMutex
	sets map[string]cachedJWKS
}

type cachedJWKS struct {
	set     jwk.Set
	expires time.Time
}

func (c *jwksCache) get(ctx context.Context, url string, ttl time.Duration) (jwk.Set, error) {
	c.mu.RLock()
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		c.mu.RUnlock()
		return e.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = map[string]cachedJWKS{}
	}
	if e, ok := c.sets[url]; ok && time.Now().Before(e.expires) {
		return e.set, nil
	}
	set, err := jwk.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.sets[url] = cachedJWKS{set: set, expires: time.Now().Add(ttl)}
	return set, nil
}

type ctxJWTKey struct{}

// isPublic lists paths that never require a token.
func isPublic(path string) bool {
	return path == "/healthz" || path == "/metrics" || strings.HasPrefix(path, "/.well-known/")
}

// JWTAuth validates bearer tokens against AUTH_JWKS_URL, or AUTH_HMAC_SECRET
// (HS256) when no JWKS is configured, and stores the scope claim in the
// context. With neither configured the middleware is a pass-through; once a
// verifier is set every non-public request needs a valid token, whatever the
// environment.
func JWTAuth(cfg config.Config, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	if cfg.AuthJWKSURL == "" && cfg.AuthHMACSecret == "" {
		log.Warnw("inbound auth disabled; set AUTH_JWKS_URL or AUTH_HMAC_SECRET")
		return func(next http.Handler) http.Handler { return next }
	}
	cache := &jwksCache{}
	jwksTTL := 6 * time.Hour
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token", "")
				return
			}
			raw := strings.TrimSpace(authz[len("Bearer "):])

			parseOpts := []jwt.ParseOption{jwt.WithValidate(true), jwt.WithAcceptableSkew(cfg.AuthClockSkew)}
			if cfg.AuthJWKSURL != "" {
				set, err := cache.get(r.Context(), cfg.AuthJWKSURL, jwksTTL)
				if err != nil {
					log.Errorw("jwks fetch failed", "url", cfg.AuthJWKSURL, "err", err)
					writeProblem(w, http.StatusInternalServerError, "auth-unavailable", "JWKS fetch failed", "")
					return
				}
				parseOpts = append(parseOpts, jwt.WithKeySet(set))
			} else {
				parseOpts = append(parseOpts, jwt.WithKey(jwa.HS256, []byte(cfg.AuthHMACSecret)))
			}
			if cfg.AuthIssuer != "" {
				parseOpts = append(parseOpts, jwt.WithIssuer(strings.TrimRight(cfg.AuthIssuer, "/")))
			}
			if cfg.AuthAudience != "" {
				parseOpts = append(parseOpts, jwt.WithAudience(cfg.AuthAudience))
			}
			jt, err := jwt.Parse([]byte(raw), parseOpts...)
			if err != nil {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "Invalid token", err.Error())
				return
			}
			var scopes []string
			if sc, ok := jt.Get("scope"); ok {
				if s, _ := sc.(string); s != "" {
					scopes = strings.Fields(s)
				}
			}
			ctx := WithScopes(r.Context(), scopes)
			ctx = context.WithValue(ctx, ctxJWTKey{}, jt)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorSub returns the sub claim of the verified token, or "".
func ActorSub(ctx context.Context) string {
	if jt, ok := ctx.Value(ctxJWTKey{}).(jwt.Token); ok {
		return jt.Subject()
	}
	return ""
}
