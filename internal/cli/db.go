package cli

import (
	"github.com/spf13/cobra"

	"opsbridge/pkg/db"
)

func (c *cli) dbCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "db", Short: "Database passthrough (DATABASE_URL)"}

	run := func(f func(cmd *cobra.Command, q db.Querier, args []string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			q, err := a.Querier()
			if err != nil {
				return err
			}
			out, err := f(cmd, q, args)
			if err != nil {
				return err
			}
			return c.print(cmd, out)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ping",
			Short: "Check the connection",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, q db.Querier, _ []string) (any, error) {
				if err := db.Ping(cmd.Context(), q); err != nil {
					return nil, err
				}
				return map[string]any{"ok": true}, nil
			}),
		},
		&cobra.Command{
			Use:   "schemas",
			Short: "List non-system schemas",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, q db.Querier, _ []string) (any, error) {
				return db.ListSchemas(cmd.Context(), q)
			}),
		},
		&cobra.Command{
			Use:   "tables SCHEMA",
			Short: "List tables of a schema",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, q db.Querier, args []string) (any, error) {
				return db.ListTablesBySchema(cmd.Context(), q, args[0])
			}),
		},
		&cobra.Command{
			Use:   "query SQL [ARGS...]",
			Short: "Run a query and print rows as JSON objects",
			Args:  cobra.MinimumNArgs(1),
			RunE: run(func(cmd *cobra.Command, q db.Querier, args []string) (any, error) {
				params := make([]any, 0, len(args)-1)
				for _, a := range args[1:] {
					params = append(params, a)
				}
				return db.Query(cmd.Context(), q, args[0], params...)
			}),
		},
	)
	return cmd
}
