// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"opsbridge/pkg/db"
)

// EnsureSchema creates the tenant and execution tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, q db.Querier) error {
	_, err := q.Exec(ctx, `
CREATE TABLE IF NOT EXISTS erp_tenants (
  id text PRIMARY KEY,
  display_name text NOT NULL DEFAULT '',
  token_query text NOT NULL DEFAULT '',
  position int NOT NULL DEFAULT 0,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS api_executions (
  id uuid PRIMARY KEY,
  tenant_id text NOT NULL,
  operation text,
  method text,
  path text,
  outcome text NOT NULL,
  status_code int,
  attempts int NOT NULL DEFAULT 0,
  refreshes int NOT NULL DEFAULT 0,
  error text,
  duration_ms int,
  finished_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS api_executions_tenant_idx ON api_executions(tenant_id, finished_at DESC);
`)
	return err
}

// SeedFromEnv upserts tenants from a TENANT_SEED_JSON payload, keeping list order as position.
func SeedFromEnv(ctx context.Context, q db.Querier, jsonSeed string) error {
	if jsonSeed == "" {
		return nil
	}
	list, err := ParseJSON([]byte(jsonSeed))
	if err != nil {
		return err
	}
	for i, t := range list {
		if _, err := q.Exec(ctx, `INSERT INTO erp_tenants(id,display_name,token_query,position)
		  VALUES ($1,$2,$3,$4)
		  ON CONFLICT (id) DO UPDATE SET display_name=EXCLUDED.display_name,token_query=EXCLUDED.token_query,position=EXCLUDED.position,updated_at=NOW()`,
			t.ID, t.DisplayName, t.TokenDescriptor, i); err != nil {
			return fmt.Errorf("seed tenant %s: %w", t.ID, err)
		}
	}
	return nil
}

// LoadFromPostgres reads every tenant in registry order.
func LoadFromPostgres(ctx context.Context, q db.Querier) ([]Tenant, error) {
	rows, err := q.Query(ctx, `SELECT id, display_name, token_query FROM erp_tenants ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("load tenants: %w", err)
	}
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.TokenDescriptor); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// NewPostgresRegistry snapshots erp_tenants at startup into an in-memory registry.
func NewPostgresRegistry(ctx context.Context, q db.Querier, strict bool, log *zap.SugaredLogger) (Registry, error) {
	list, err := LoadFromPostgres(ctx, q)
	if err != nil {
		return nil, err
	}
	if log != nil {
		log.Infow("tenants loaded", "source", "postgres", "count", len(list))
	}
	return NewMemoryRegistry(list, strict, log)
}
