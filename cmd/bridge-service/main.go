// cmd/bridge-service/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opsbridge/internal/api"
	"opsbridge/internal/app"
	"opsbridge/pkg/config"
	"opsbridge/pkg/logger"
	"opsbridge/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatalw("init", "err", err)
	}
	defer a.Close()

	handler := api.NewRouter(api.Deps{
		Config:   cfg,
		Log:      log,
		Registry: a.Registry,
		Tokens:   a.Tokens,
		Tiny:     a.Tiny,
		Gatherer: a.Prom,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("bridge-service listening", "addr", cfg.HTTPAddr, "tiny", cfg.TinyBaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = middleware.ShutdownTracing(ctx)
	log.Infow("bridge-service stopped")
}
