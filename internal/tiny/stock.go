package tiny

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"opsbridge/internal/executor"
)

var ErrInvalidMovement = errors.New("invalid stock movement")

type MovementType string

const (
	MovementEntry   MovementType = "E"
	MovementExit    MovementType = "S"
	MovementBalance MovementType = "B"
)

// ParseMovementType accepts e/s/b in either case.
func ParseMovementType(s string) (MovementType, error) {
	switch t := MovementType(strings.ToUpper(strings.TrimSpace(s))); t {
	case MovementEntry, MovementExit, MovementBalance:
		return t, nil
	}
	return "", fmt.Errorf("%w: type %q (want E, S or B)", ErrInvalidMovement, s)
}

func (t MovementType) arrow() string {
	switch t {
	case MovementEntry:
		return "<-"
	case MovementExit:
		return "->"
	}
	return "-"
}

// StockMovement posts a stock entry, exit or balance for one product under From's credentials.
type StockMovement struct {
	From      string
	To        string // counterpart company, only used in the note
	ProductID string
	Type      MovementType
	Quantity  decimal.Decimal
	DepositID int64
	UnitPrice decimal.Decimal
}

func (m StockMovement) Validate() error {
	var problems []string
	if m.From == "" {
		problems = append(problems, "from tenant is required")
	}
	if m.ProductID == "" {
		problems = append(problems, "product id is required")
	}
	if _, err := ParseMovementType(string(m.Type)); err != nil {
		problems = append(problems, fmt.Sprintf("type %q must be E, S or B", m.Type))
	}
	if m.Quantity.IsNegative() || (m.Quantity.IsZero() && MovementType(strings.ToUpper(string(m.Type))) != MovementBalance) {
		problems = append(problems, "quantity must be positive")
	}
	if m.DepositID <= 0 {
		problems = append(problems, "deposit id is required")
	}
	if m.UnitPrice.IsNegative() {
		problems = append(problems, "unit price must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMovement, strings.Join(problems, "; "))
	}
	return nil
}

type depositRef struct {
	ID int64 `json:"id"`
}

type stockPayload struct {
	Deposito      depositRef  `json:"deposito"`
	Tipo          string      `json:"tipo"`
	Data          string      `json:"data"`
	Quantidade    json.Number `json:"quantidade"`
	PrecoUnitario json.Number `json:"precoUnitario"`
	Observacoes   string      `json:"observacoes"`
}

const stockDateLayout = "2006-01-02 15:04:05"

func (c *Client) stockPayload(m StockMovement) stockPayload {
	t, _ := ParseMovementType(string(m.Type))
	note := fmt.Sprintf("Transferência entre empresas | %s %s %s", m.From, t.arrow(), m.To)
	if c.noteSuffix != "" {
		note += " | " + c.noteSuffix
	}
	return stockPayload{
		Deposito:      depositRef{ID: m.DepositID},
		Tipo:          string(t),
		Data:          c.now().In(c.loc).Format(stockDateLayout),
		Quantidade:    json.Number(m.Quantity.String()),
		PrecoUnitario: json.Number(m.UnitPrice.String()),
		Observacoes:   note,
	}
}

// MoveStock runs POST /estoque/{productID}. Returns the API reply, e.g. {"idLancamento": 901853015}.
func (c *Client) MoveStock(ctx context.Context, m StockMovement) (map[string]any, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	resp, err := c.exec.Execute(ctx, m.From, executor.Request{
		Operation:  "stock.move",
		Method:     "POST",
		Path:       "/estoque/{id}",
		PathParams: map[string]string{"id": m.ProductID},
		JSON:       c.stockPayload(m),
	})
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if len(resp.Body) > 0 {
		if err := resp.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode stock movement: %w", err)
		}
	}
	return out, nil
}
