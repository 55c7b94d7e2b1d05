// cmd/opsctl/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"opsbridge/internal/app"
	"opsbridge/internal/cli"
	"opsbridge/pkg/config"
	"opsbridge/pkg/logger"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root := cli.NewRootCmd(func(ctx context.Context, verbose bool) (*app.App, error) {
		env := "quiet"
		if verbose {
			env = cfg.Env
		}
		return app.New(ctx, cfg, logger.New(env))
	})
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
