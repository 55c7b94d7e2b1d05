// Package cli implements the opsctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmespath/go-jmespath"
	"github.com/spf13/cobra"

	"opsbridge/internal/app"
	"opsbridge/internal/executor"
	"opsbridge/internal/tiny"
	"opsbridge/pkg/tenants"
)

// AppFactory builds the application graph on first use. verbose selects the
// development logger over the quiet default.
type AppFactory func(ctx context.Context, verbose bool) (*app.App, error)

type cli struct {
	newApp  AppFactory
	app     *app.App
	query   string
	verbose bool
}

// NewRootCmd returns opsctl. Commands that need ERP, database or CRM access
// build the app lazily, so local-only commands work without configuration.
func NewRootCmd(newApp AppFactory) *cobra.Command {
	c := &cli{newApp: newApp}
	root := &cobra.Command{
		Use:           "opsctl",
		Short:         "Multi-tenant Tiny ERP operations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.app != nil {
				c.app.Close()
				c.app = nil
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.query, "query", "q", "", "JMESPath expression applied to JSON output")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		c.productCmd(),
		c.stockCmd(),
		c.tokenCmd(),
		c.dbCmd(),
		c.contactsCmd(),
		c.sheetCmd(),
		c.inventoryCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := c.newApp(cmd.Context(), c.verbose)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

// print writes v as indented JSON, projected through --query when set.
func (c *cli) print(cmd *cobra.Command, v any) error {
	if c.query != "" {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		if v, err = jmespath.Search(c.query, doc); err != nil {
			return fmt.Errorf("--query: %w", err)
		}
	}
	if s, ok := v.(string); ok && c.query != "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), s)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitRateLimited = 3
)

// ExitCode maps a command error to the process exit status. Unknown tenants
// exit with ExitFailure like any other failed operation.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, tenants.ErrUnknownTenant):
		return ExitFailure
	case errors.Is(err, executor.ErrRateLimitExhausted):
		return ExitRateLimited
	case errors.Is(err, tiny.ErrInvalidMovement), errors.Is(err, executor.ErrInvalidRequest):
		return ExitUsage
	}
	return ExitFailure
}
