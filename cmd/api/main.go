package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"edusphere/internal/config"
	"edusphere/internal/httpapi"
	"edusphere/internal/logger"
	"edusphere/internal/platform"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logg := logger.Must(cfg.Env)
	defer func() { _ = logg.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logg); err != nil {
		logg.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := platform.Open(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer p.Close()

	// the memory queue is only reachable from this process
	if cfg.QueueBackend == "memory" {
		go func() {
			if err := p.Runner().Run(ctx); err != nil {
				logg.Error("export runner stopped", zap.Error(err))
			}
		}()
	}

	r := httpapi.NewRouter(httpapi.Options{
		Service:         p.Service,
		SigningKey:      cfg.JWTSigningKey,
		Issuer:          cfg.JWTIssuer,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		Checks:          healthChecks(p.Checks),
		Log:             logg.Named("http"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info("starting server", zap.String("addr", srv.Addr), zap.String("gateway", cfg.GatewayBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logg.Info("shutting down server")

	// give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Warn("forced shutdown", zap.Error(err))
	}
	logg.Info("server exited")
	return nil
}

func healthChecks(in map[string]func(context.Context) bool) map[string]httpapi.Check {
	out := make(map[string]httpapi.Check, len(in))
	for name, check := range in {
		out[name] = check
	}
	return out
}
