package tenants

import (
	"context"
	"errors"
)

// ErrUnknownTenant is returned (wrapped with the reference) when no tenant matches.
var ErrUnknownTenant = errors.New("unknown tenant")

type Registry interface {
	// Resolve by exact id, falling back to display-name substring unless strict.
	Resolve(ctx context.Context, ref string) (Tenant, error)
	// Get by exact id only.
	Get(ctx context.Context, id string) (Tenant, error)
	// List in registry order.
	List(ctx context.Context) ([]Tenant, error)
}
