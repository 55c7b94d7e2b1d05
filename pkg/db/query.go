package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoDatabase is returned when DATABASE_URL was not configured.
var ErrNoDatabase = errors.New("database not configured")

// Querier is the subset of *pgxpool.Pool used by the passthrough helpers.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// Schema is one non-system namespace and the role that owns it.
type Schema struct {
	Name  string `json:"schema"`
	Owner string `json:"owner"`
}

const listSchemasSQL = `SELECT n.nspname, r.rolname
FROM pg_namespace n
JOIN pg_roles r ON r.oid = n.nspowner
WHERE n.nspname NOT LIKE 'pg\_%' AND n.nspname <> 'information_schema'
ORDER BY n.nspname`

const listTablesSQL = `SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`

// Ping checks the connection is usable.
func Ping(ctx context.Context, q Querier) error {
	if q == nil {
		return ErrNoDatabase
	}
	if err := q.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Query runs sql with positional args and returns every row as a column->value map.
func Query(ctx context.Context, q Querier, sql string, args ...any) ([]map[string]any, error) {
	if q == nil {
		return nil, ErrNoDatabase
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect rows: %w", err)
	}
	if out == nil {
		out = []map[string]any{}
	}
	return out, nil
}

func ListSchemas(ctx context.Context, q Querier) ([]Schema, error) {
	if q == nil {
		return nil, ErrNoDatabase
	}
	rows, err := q.Query(ctx, listSchemasSQL)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()
	var out []Schema
	for rows.Next() {
		var s Schema
		if err := rows.Scan(&s.Name, &s.Owner); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func ListTablesBySchema(ctx context.Context, q Querier, schema string) ([]string, error) {
	if q == nil {
		return nil, ErrNoDatabase
	}
	rows, err := q.Query(ctx, listTablesSQL, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", schema, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
