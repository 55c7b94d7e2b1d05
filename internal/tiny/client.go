// Package tiny implements the Tiny ERP v3 operations on top of the resilient executor.
package tiny

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/jmespath/go-jmespath"

	"opsbridge/internal/executor"
)

// ErrNoProducts is returned when a tenant has no product to anchor a stock lookup.
var ErrNoProducts = errors.New("tenant has no products")

// Executor is the subset of *executor.Executor used here.
type Executor interface {
	Execute(ctx context.Context, tenantRef string, req executor.Request) (*executor.Response, error)
}

type Client struct {
	exec       Executor
	noteSuffix string
	loc        *time.Location
	now        func() time.Time
}

type Option func(*Client)

// WithNoteSuffix appends " | suffix" to stock movement notes.
func WithNoteSuffix(s string) Option { return func(c *Client) { c.noteSuffix = s } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func New(exec Executor, opts ...Option) *Client {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		loc = time.FixedZone("BRT", -3*60*60)
	}
	c := &Client{exec: exec, loc: loc, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetProduct runs GET /produtos?{filter}={value} (filter: codigo, gtin, nome, limit, ...).
func (c *Client) GetProduct(ctx context.Context, tenant, filter, value string) (map[string]any, error) {
	if filter == "" {
		return nil, fmt.Errorf("%w: empty product filter", executor.ErrInvalidRequest)
	}
	resp, err := c.exec.Execute(ctx, tenant, executor.Request{
		Operation: "products.get",
		Path:      "/produtos",
		Query:     url.Values{filter: {value}},
	})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return out, nil
}

// GetStockDeposits returns the per-deposit stock of any one product, which
// lists every deposit the tenant has.
func (c *Client) GetStockDeposits(ctx context.Context, tenant string) (map[string]any, error) {
	list, err := c.GetProduct(ctx, tenant, "limit", "1")
	if err != nil {
		return nil, err
	}
	id, err := firstProductID(list)
	if err != nil {
		return nil, err
	}
	resp, err := c.exec.Execute(ctx, tenant, executor.Request{
		Operation:  "stock.get",
		Path:       "/estoque/{id}",
		PathParams: map[string]string{"id": id},
	})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode stock: %w", err)
	}
	return out, nil
}

var firstItemID = jmespath.MustCompile("itens[0].id")

func firstProductID(list map[string]any) (string, error) {
	v, err := firstItemID.Search(list)
	if err != nil {
		return "", fmt.Errorf("search product id: %w", err)
	}
	switch id := v.(type) {
	case nil:
		return "", ErrNoProducts
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case string:
		if id == "" {
			return "", ErrNoProducts
		}
		return id, nil
	default:
		return fmt.Sprint(id), nil
	}
}
