// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultRetrySchedule is the rate-limit backoff used when TINY_RETRY_SCHEDULE is unset.
var DefaultRetrySchedule = []time.Duration{
	10 * time.Second,
	20 * time.Second,
	40 * time.Second,
	60 * time.Second,
	120 * time.Second,
}

type Config struct {
	Env      string
	HTTPAddr string // bridge-service

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string

	// Tenant registry sources, first non-empty wins (Postgres when DATABASE_URL is set)
	TenantSeedJSON     string
	TenantsFile        string
	TenantStrictLookup bool

	// Tiny ERP client
	TinyBaseURL      string
	TinyHTTPTimeout  time.Duration
	TinyAuthRetries  int
	RetrySchedule    []time.Duration
	StockNoteSuffix  string
	RecordExecutions bool

	// Token store
	TokenSingleFlight bool
	TokenCacheTTL     time.Duration
	TokenCachePrefix  string
	StaticTokensJSON  string // {"descriptor":"token"} used without DATABASE_URL

	// Chatwoot
	ChatwootBaseURL   string
	ChatwootToken     string
	ChatwootAccountID string

	// Browser inventory download
	ChromePath              string
	TinyLoginURL            string
	InventoryDownloadURL    string
	InventoryTimeout        time.Duration
	InventoryHeadless       bool
	InventoryDownloadFolder string
	TinyWebUser             string
	TinyWebPassword         string

	// Inbound auth for bridge-service; disabled when neither JWKS nor secret is set
	AuthIssuer     string
	AuthAudience   string
	AuthJWKSURL    string
	AuthHMACSecret string
	AuthClockSkew  time.Duration
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                     env("OPSBRIDGE_ENV", "dev"),
		HTTPAddr:                env("OPSBRIDGE_HTTP_ADDR", ":8080"),
		RedisURL:                env("REDIS_URL", ""),
		DatabaseURL:             env("DATABASE_URL", ""),
		TenantSeedJSON:          env("TENANT_SEED_JSON", ""),
		TenantsFile:             env("TENANTS_FILE", ""),
		TenantStrictLookup:      envBool("TENANT_STRICT_LOOKUP", false),
		TinyBaseURL:             strings.TrimRight(env("TINY_BASE_URL", "https://api.tiny.com.br/public-api/v3"), "/"),
		TinyHTTPTimeout:         envTimeout("TINY_HTTP_TIMEOUT", 30*time.Second),
		TinyAuthRetries:         max(envInt("TINY_AUTH_RETRIES", 3), 0),
		RetrySchedule:           envSchedule("TINY_RETRY_SCHEDULE", DefaultRetrySchedule),
		StockNoteSuffix:         env("TINY_STOCK_NOTE_SUFFIX", "opsbridge"),
		RecordExecutions:        envBool("RECORD_EXECUTIONS", true),
		TokenSingleFlight:       envBool("TOKEN_SINGLE_FLIGHT", true),
		TokenCacheTTL:           envDur("TOKEN_CACHE_TTL_SEC", 0) * time.Second,
		TokenCachePrefix:        env("TOKEN_CACHE_PREFIX", "opsbridge:token:"),
		StaticTokensJSON:        env("TINY_STATIC_TOKENS", ""),
		ChatwootBaseURL:         strings.TrimRight(env("CHATWOOT_URL_BASE", ""), "/"),
		ChatwootToken:           env("CHATWOOT_API_TOKEN", ""),
		ChatwootAccountID:       env("CHATWOOT_ACCOUNT_ID", "1"),
		ChromePath:              env("CHROME_PATH", env("PUPPETEER_EXECUTABLE_PATH", "")),
		TinyLoginURL:            env("TINY_LOGIN_URL", "https://erp.tiny.com.br/login"),
		InventoryDownloadURL:    env("TINY_INVENTORY_URL", "https://erp.tiny.com.br/relatorios/relatorio.estoque.inventario.download.xls"),
		InventoryTimeout:        envTimeout("INVENTORY_DOWNLOAD_TIMEOUT", 10*time.Minute),
		InventoryHeadless:       envBool("INVENTORY_HEADLESS", true),
		InventoryDownloadFolder: env("INVENTORY_DOWNLOAD_DIR", "downloads"),
		TinyWebUser:             env("TINY_WEB_USER", ""),
		TinyWebPassword:         env("TINY_WEB_PASSWORD", ""),
		AuthIssuer:              env("AUTH_ISSUER", ""),
		AuthAudience:            env("AUTH_AUDIENCE", ""),
		AuthJWKSURL:             env("AUTH_JWKS_URL", ""),
		AuthHMACSecret:          env("AUTH_HMAC_SECRET", ""),
		AuthClockSkew:           envDur("AUTH_CLOCK_SKEW_SEC", 60) * time.Second,
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; tenants come from TENANT_SEED_JSON/TENANTS_FILE and tokens from the static provider")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}

// envTimeout reads a single wait: bare seconds ("30") or a Go duration ("10m").
func envTimeout(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := ParseSchedule(v)
	if err != nil || len(d) != 1 || d[0] <= 0 {
		log.Printf("[WARN] %s=%q invalid, using %s", k, v, def)
		return def
	}
	return d[0]
}

// envSchedule reads a comma separated list of waits. Bare numbers are seconds,
// anything else must parse with time.ParseDuration. Invalid input keeps def.
func envSchedule(k string, def []time.Duration) []time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return append([]time.Duration(nil), def...)
	}
	out, err := ParseSchedule(v)
	if err != nil || len(out) == 0 {
		log.Printf("[WARN] %s=%q invalid, using default schedule: %v", k, v, err)
		return append([]time.Duration(nil), def...)
	}
	return out
}

// ParseSchedule parses "10,20,40" or "500ms,1s" into durations.
func ParseSchedule(s string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.ParseFloat(part, 64); err == nil {
			if n < 0 {
				return nil, strconv.ErrRange
			}
			out = append(out, time.Duration(n*float64(time.Second)))
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		if d < 0 {
			return nil, strconv.ErrRange
		}
		out = append(out, d)
	}
	return out, nil
}
