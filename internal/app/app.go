// Package app builds the shared object graph used by bridge-service and opsctl.
package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"opsbridge/internal/chatwoot"
	"opsbridge/internal/executor"
	"opsbridge/internal/inventory"
	"opsbridge/internal/tiny"
	"opsbridge/pkg/config"
	"opsbridge/pkg/db"
	"opsbridge/pkg/tenants"
	"opsbridge/pkg/tokens"
)

type App struct {
	Config   config.Config
	Log      *zap.SugaredLogger
	Pool     *pgxpool.Pool // nil without DATABASE_URL
	Redis    *redis.Client // nil without REDIS_URL
	Prom     *prometheus.Registry
	Registry tenants.Registry
	Tokens   *tokens.Store
	Executor *executor.Executor
	Recorder *executor.Recorder // nil unless Postgres and RECORD_EXECUTIONS
	Tiny     *tiny.Client
}

// New connects the configured backends and wires the Tiny stack. Postgres,
// when configured, is the source of tenants and tokens and receives execution
// records; otherwise tenants come from TENANT_SEED_JSON/TENANTS_FILE and
// tokens from TINY_STATIC_TOKENS.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*App, error) {
	a := &App{Config: cfg, Log: log, Prom: prometheus.NewRegistry()}
	a.Prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var err error
	if a.Pool, err = db.Connect(ctx, cfg, log); err != nil {
		return nil, err
	}
	if a.Redis, err = db.ConnectRedis(ctx, cfg, log); err != nil {
		a.Close()
		return nil, err
	}
	if err = a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, log := a.Config, a.Log
	var err error
	var provider tokens.Provider
	if a.Pool != nil {
		if err := tenants.EnsureSchema(ctx, a.Pool); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
		if err := tenants.SeedFromEnv(ctx, a.Pool, cfg.TenantSeedJSON); err != nil {
			log.Warnw("seed", "err", err)
		}
		if a.Registry, err = tenants.NewPostgresRegistry(ctx, a.Pool, cfg.TenantStrictLookup, log); err != nil {
			return err
		}
		provider = tokens.NewPostgresProvider(a.Pool)
	} else {
		if a.Registry, err = tenants.NewMemoryRegistryFromEnv(cfg.TenantSeedJSON, cfg.TenantsFile, cfg.TenantStrictLookup, log); err != nil {
			return err
		}
		static := tokens.StaticProvider{}
		if cfg.StaticTokensJSON != "" {
			if err := json.Unmarshal([]byte(cfg.StaticTokensJSON), &static); err != nil {
				return fmt.Errorf("TINY_STATIC_TOKENS: %w", err)
			}
		}
		provider = static
	}

	storeOpts := []tokens.Option{
		tokens.WithSingleFlight(cfg.TokenSingleFlight),
		tokens.WithTTL(cfg.TokenCacheTTL),
		tokens.WithLogger(log),
	}
	if a.Redis != nil {
		storeOpts = append(storeOpts, tokens.WithCache(tokens.NewRedisCache(a.Redis, cfg.TokenCachePrefix)))
	}
	a.Tokens = tokens.NewStore(provider, storeOpts...)

	observers := executor.Observers{executor.NewLogObserver(log), executor.NewMetrics(a.Prom)}
	if a.Pool != nil && cfg.RecordExecutions {
		a.Recorder = executor.NewRecorder(a.Pool, log)
		observers = append(observers, a.Recorder)
	}
	a.Executor = executor.New(a.Registry, a.Tokens, cfg.TinyBaseURL,
		executor.WithPolicy(cfg.RetrySchedule),
		executor.WithAuthRetries(cfg.TinyAuthRetries),
		executor.WithHTTPClient(executor.NewHTTPClient(cfg.TinyHTTPTimeout)),
		executor.WithObserver(observers),
	)
	a.Tiny = tiny.New(a.Executor, tiny.WithNoteSuffix(cfg.StockNoteSuffix))
	return nil
}

func (a *App) Chatwoot() (*chatwoot.Client, error) {
	return chatwoot.New(chatwoot.Config{
		BaseURL:   a.Config.ChatwootBaseURL,
		Token:     a.Config.ChatwootToken,
		AccountID: a.Config.ChatwootAccountID,
	}, a.Log)
}

func (a *App) Inventory() *inventory.Downloader {
	return inventory.New(inventory.Config{
		LoginURL:    a.Config.TinyLoginURL,
		DownloadURL: a.Config.InventoryDownloadURL,
		ChromePath:  a.Config.ChromePath,
		Headless:    a.Config.InventoryHeadless,
		Timeout:     a.Config.InventoryTimeout,
	}, a.Log)
}

// Querier returns the database handle for passthrough commands.
func (a *App) Querier() (db.Querier, error) {
	if a.Pool == nil {
		return nil, db.ErrNoDatabase
	}
	return a.Pool, nil
}

func (a *App) Close() {
	if a.Recorder != nil {
		a.Recorder.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	_ = a.Log.Sync()
}
