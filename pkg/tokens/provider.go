package tokens

import (
	"context"
	"errors"
	"fmt"

	"opsbridge/pkg/db"
)

// ErrTokenSourceEmpty is returned when the credential lookup yields no rows.
var ErrTokenSourceEmpty = errors.New("token source returned no rows")

// Provider resolves a tenant's token descriptor to a fresh access token.
// Implementations never retry and never cache.
type Provider interface {
	Fetch(ctx context.Context, descriptor string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, descriptor string) (string, error)

func (f ProviderFunc) Fetch(ctx context.Context, descriptor string) (string, error) {
	return f(ctx, descriptor)
}

// PostgresProvider runs the descriptor as SQL and reads the first row's
// access_token column (or its first column when no such column exists).
type PostgresProvider struct {
	q db.Querier
}

func NewPostgresProvider(q db.Querier) *PostgresProvider { return &PostgresProvider{q: q} }

func (p *PostgresProvider) Fetch(ctx context.Context, descriptor string) (string, error) {
	rows, err := p.q.Query(ctx, descriptor)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", ErrTokenSourceEmpty
	}
	col := 0
	for i, fd := range rows.FieldDescriptions() {
		if fd.Name == "access_token" {
			col = i
			break
		}
	}
	vals, err := rows.Values()
	if err != nil {
		return "", err
	}
	if col >= len(vals) {
		return "", ErrTokenSourceEmpty
	}
	return asString(vals[col]), nil
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

// StaticProvider maps descriptors to fixed tokens. Used for local development.
type StaticProvider map[string]string

func (s StaticProvider) Fetch(_ context.Context, descriptor string) (string, error) {
	if tok, ok := s[descriptor]; ok {
		return tok, nil
	}
	return "", ErrTokenSourceEmpty
}
