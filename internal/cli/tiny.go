package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"opsbridge/internal/tiny"
	"opsbridge/pkg/tokens"
)

func (c *cli) productCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "product", Short: "Product lookups"}
	cmd.AddCommand(&cobra.Command{
		Use:     "get TENANT FILTER VALUE",
		Short:   "Find products by a filter field, e.g. codigo",
		Example: `  opsctl product get JP codigo "JP 0001"`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			out, err := a.Tiny.GetProduct(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		},
	})
	return cmd
}

func (c *cli) stockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stock", Short: "Stock deposits and movements"}
	cmd.AddCommand(&cobra.Command{
		Use:   "deposits TENANT",
		Short: "List stock deposits using the tenant's first product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			out, err := a.Tiny.GetStockDeposits(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		},
	})

	var (
		from, to, product, typ, qty, price string
		deposit                            int64
	)
	move := &cobra.Command{
		Use:     "move",
		Short:   "Post a stock entry (E), exit (S) or balance (B)",
		Example: `  opsctl stock move --from JP --to SP --product 337282651 --type E --qty 3 --deposit 42 --price 19.90`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mt, err := tiny.ParseMovementType(typ)
			if err != nil {
				return err
			}
			q, err := decimal.NewFromString(qty)
			if err != nil {
				return fmt.Errorf("%w: --qty %q", tiny.ErrInvalidMovement, qty)
			}
			p := decimal.Zero
			if price != "" {
				if p, err = decimal.NewFromString(price); err != nil {
					return fmt.Errorf("%w: --price %q", tiny.ErrInvalidMovement, price)
				}
			}
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			out, err := a.Tiny.MoveStock(cmd.Context(), tiny.StockMovement{
				From: from, To: to, ProductID: product, Type: mt, Quantity: q, DepositID: deposit, UnitPrice: p,
			})
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		},
	}
	f := move.Flags()
	f.StringVar(&from, "from", "", "tenant whose credentials post the movement")
	f.StringVar(&to, "to", "", "counterpart tenant, used in the note")
	f.StringVar(&product, "product", "", "ERP product id")
	f.StringVar(&typ, "type", "", "E, S or B")
	f.StringVar(&qty, "qty", "", "quantity")
	f.Int64Var(&deposit, "deposit", 0, "deposit id")
	f.StringVar(&price, "price", "", "unit price")
	for _, req := range []string{"from", "product", "type", "qty", "deposit"} {
		_ = move.MarkFlagRequired(req)
	}
	cmd.AddCommand(move)
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Tenant token maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh TENANT",
		Short: "Fetch a fresh token from the credential source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			t, err := a.Registry.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tok, err := a.Tokens.ForceRefresh(cmd.Context(), t)
			if err != nil {
				return err
			}
			out := map[string]any{"tenant": t.ID, "refreshed": true}
			if exp, ok := tokens.Expiry(tok); ok {
				out["expires_at"] = exp.UTC()
			}
			return c.print(cmd, out)
		},
	})
	return cmd
}
