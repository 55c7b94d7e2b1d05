package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"opsbridge/internal/inventory"
	"opsbridge/internal/sheets"
)

func (c *cli) sheetCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sheet", Short: "Spreadsheet helpers"}
	var sheet string
	filter := &cobra.Command{
		Use:   "filter FILE COLUMN [EXPR]",
		Short: "Print rows whose column matches EXPR",
		Long: `COLUMN is a header name or a column letter. EXPR supports
= == != > >= < <= joined by && and ||, e.g. ">0 && <100" or '="Wow" || >10'.
Numbers may use BR (1.234,56) or US (1,234.56) separators.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := sheets.Open(args[0], sheet)
			if err != nil {
				return err
			}
			expr := ""
			if len(args) == 3 {
				expr = args[2]
			}
			rows, err := tbl.Filter(args[1], expr)
			if err != nil {
				return err
			}
			return c.print(cmd, rows)
		},
	}
	filter.Flags().StringVar(&sheet, "sheet", "", "worksheet name (default first)")
	cmd.AddCommand(filter)
	return cmd
}

func (c *cli) inventoryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "inventory", Short: "Inventory spreadsheets from the Tiny web UI"}

	var (
		deposit, out, user, pass string
		clean                    bool
		timeout                  time.Duration
	)
	download := &cobra.Command{
		Use:   "download",
		Short: "Log in with a browser and download a deposit inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.load(cmd)
			if err != nil {
				return err
			}
			if user == "" {
				user = a.Config.TinyWebUser
			}
			if pass == "" {
				pass = a.Config.TinyWebPassword
			}
			if out == "" {
				out = filepath.Join(a.Config.InventoryDownloadFolder, "inventario-"+deposit+".xls")
			}
			if clean {
				removed, err := inventory.CleanByExtension(filepath.Dir(out), ".xls", ".xlsx", ".csv")
				if err != nil {
					return err
				}
				a.Log.Infow("old spreadsheets removed", "count", len(removed))
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			path, err := a.Inventory().DownloadDepositSheet(ctx, inventory.Credentials{Username: user, Password: pass}, deposit, out)
			if err != nil {
				return err
			}
			return c.print(cmd, map[string]any{"path": path})
		},
	}
	f := download.Flags()
	f.StringVar(&deposit, "deposit", "", "deposit id")
	f.StringVar(&out, "out", "", "output file (default $INVENTORY_DOWNLOAD_DIR/inventario-<deposit>.xls)")
	f.StringVar(&user, "user", "", "web login (default $TINY_WEB_USER)")
	f.StringVar(&pass, "password", "", "web password (default $TINY_WEB_PASSWORD)")
	f.BoolVar(&clean, "clean", false, "remove old spreadsheets from the output dir first")
	f.DurationVar(&timeout, "timeout", 0, "overall timeout, login included")
	_ = download.MarkFlagRequired("deposit")

	var exts []string
	cleanCmd := &cobra.Command{
		Use:   "clean DIR",
		Short: "Remove spreadsheet files from DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := inventory.CleanByExtension(args[0], exts...)
			if err != nil {
				return err
			}
			if removed == nil {
				removed = []string{}
			}
			return c.print(cmd, map[string]any{"removed": removed})
		},
	}
	cleanCmd.Flags().StringSliceVar(&exts, "ext", []string{".xls", ".xlsx", ".csv"}, "extensions to remove")

	cmd.AddCommand(download, cleanCmd)
	return cmd
}
