package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"opsbridge/pkg/config"
)

const pingTimeout = 5 * time.Second

// Connect opens and pings the Postgres pool. An empty DATABASE_URL yields a
// nil pool and no error.
func Connect(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pg connect %s: %w", redactDSN(cfg.DatabaseURL), err)
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping %s: %w", redactDSN(cfg.DatabaseURL), err)
	}
	log.Infow("postgres ready", "dsn", redactDSN(cfg.DatabaseURL))
	return pool, nil
}

// ConnectRedis parses REDIS_URL and pings it. An empty URL yields nil.
func ConnectRedis(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis parse: %w", err)
	}
	cli := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := cli.Ping(pctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	log.Infow("redis ready", "addr", opts.Addr, "db", opts.DB)
	return cli, nil
}

// redactDSN hides the password of a URL or key/value DSN.
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Redacted()
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=xxxxx"
		}
	}
	return strings.Join(fields, " ")
}
