// Package platform opens the backends both binaries share and builds the
// dashboard service over them.
package platform

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"edusphere/internal/config"
	"edusphere/internal/dashboard"
	"edusphere/internal/export"
	"edusphere/internal/gateway"
	"edusphere/internal/jobs"
	"edusphere/internal/queue"
	"edusphere/internal/store"
	"edusphere/internal/supabase"
)

// Platform holds the opened backends. Close releases them.
type Platform struct {
	Gateway gateway.Gateway
	Redis   *store.Redis
	Queue   queue.Queue
	Jobs    jobs.Store
	Service *dashboard.Service
	// Checks name each dependency the health endpoint reports on.
	Checks  map[string]func(context.Context) bool

	closers []func() error
	log     *zap.Logger
}

// Open connects the gateway selected by cfg.GatewayBackend and the export
// queue selected by cfg.QueueBackend. With the memory queue, jobs live in
// process memory and must be run by the same process.
func Open(ctx context.Context, cfg config.App, log *zap.Logger) (*Platform, error) {
	p := &Platform{Checks: map[string]func(context.Context) bool{}, log: log}

	switch cfg.GatewayBackend {
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		p.closers = append(p.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		p.Gateway = store.NewPostgresGateway(db.Client)
		p.Checks["database"] = func(ctx context.Context) bool { return db.Client.PingContext(ctx) == nil }
	case "supabase":
		sb := supabase.New(cfg.SupabaseURL, cfg.SupabaseKey)
		p.Gateway = sb
		p.Checks["database"] = func(ctx context.Context) bool { return sb.Health(ctx) == nil }
	default:
		log.Warn("using the in-memory gateway, data is lost on restart")
		p.Gateway = gateway.NewMemory()
	}

	p.Redis = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	p.closers = append(p.closers, p.Redis.Close)
	var images *export.ImageFetcher
	if cfg.QueueBackend == "redis" {
		p.Queue = queue.NewRedisQueue(p.Redis.Client, queue.DefaultKey, log.Named("queue"))
		p.Jobs = jobs.NewRedisStore(p.Redis.Client, cfg.ExportTTL)
		p.Checks["redis"] = p.Redis.Healthy
		images = export.NewImageFetcher(p.Redis, cfg.ImageCacheTTL, log.Named("images"))
	} else {
		p.Queue = queue.NewInMemory(64)
		p.Jobs = jobs.NewMemoryStore()
		images = export.NewImageFetcher(nil, 0, log.Named("images"))
	}

	p.Service = dashboard.New(dashboard.Options{
		Gateway: p.Gateway,
		Images:  images,
		Jobs:    p.Jobs,
		Queue:   p.Queue,
		Branding: dashboard.Branding{
			Institution:  cfg.InstitutionName,
			LogoURL:      cfg.LogoURL,
			SignatureURL: cfg.SignatureURL,
		},
		Location: cfg.Location(),
		Log:      log.Named("dashboard"),
	})
	return p, nil
}

// Runner returns an export runner over the platform's queue and job store.
func (p *Platform) Runner() *jobs.Runner {
	return jobs.NewRunner(p.Jobs, p.Queue, p.Service, p.log.Named("jobs"))
}

// Close releases the backends in reverse order of opening.
func (p *Platform) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			p.log.Warn("close", zap.Error(err))
		}
	}
}
