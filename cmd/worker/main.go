package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"edusphere/internal/config"
	"edusphere/internal/logger"
	"edusphere/internal/platform"
)

// Worker renders queued exports and refreshes the deadline gauges on a
// schedule.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logg := logger.Must(cfg.Env).Named("worker")
	defer func() { _ = logg.Sync() }()

	if cfg.QueueBackend == "memory" {
		logg.Fatal("QUEUE_BACKEND=memory runs exports inside the api process; the worker needs redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := platform.Open(ctx, cfg, logg)
	if err != nil {
		logg.Fatal("open backends", zap.Error(err))
	}
	defer p.Close()

	if !p.Redis.Healthy(ctx) {
		logg.Warn("redis not reachable yet, the queue consumer will keep retrying")
	}

	sched := cron.New(cron.WithLocation(cfg.Location()))
	_, err = sched.AddFunc(cfg.SweepSpec, func() {
		sctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		sum, err := p.Service.Sweep(sctx)
		if err != nil {
			logg.Warn("deadline sweep failed", zap.Error(err))
			return
		}
		logg.Info("deadline sweep",
			zap.Int("overdue", sum.Overdue),
			zap.Int("due_soon", sum.DueSoon),
			zap.Int("pending", sum.Pending),
			zap.Int("completed", sum.Completed),
		)
	})
	if err != nil {
		logg.Fatal("schedule sweep", zap.String("spec", cfg.SweepSpec), zap.Error(err))
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	logg.Info("worker started, waiting for export jobs")
	if err := p.Runner().Run(ctx); err != nil {
		logg.Error("export runner stopped", zap.Error(err))
	}
	logg.Info("worker exited")
}
