// Package bootstrap wires the report pipeline from configuration. It is
// shared by the service binary and the ops CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/database"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/lease"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/metrics"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/storage"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
	"github.com/AI-Template-SDK/brand-visibility-workflows/workflows"
)

type Runtime struct {
	Config   *config.Config
	DB       *database.Client
	Metrics  *metrics.PrometheusRecorder
	Services *services.Services

	closers []func() error
}

// Build connects every backend named by cfg. Close releases them.
func Build(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rt.DB = db
	rt.closers = append(rt.closers, db.Close)
	log.Infof("[Bootstrap] Connected to database %s on %s", cfg.Database.Name, cfg.Database.Host)

	client, err := services.NewCompletionClient(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("completion client: %w", err)
	}
	log.Infof("[Bootstrap] Completion provider %s, model %s", client.GetProviderName(), cfg.Pipeline.Model)

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("object storage: %w", err)
	}
	log.Infof("[Bootstrap] Report storage %s, bucket %s", cfg.Storage.Backend, cfg.Storage.Bucket)

	var locker lease.Locker
	if cfg.Redis.Addr != "" {
		redisLocker, err := lease.NewRedisLocker(ctx, cfg.Redis)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis locker: %w", err)
		}
		rt.closers = append(rt.closers, redisLocker.Close)
		locker = redisLocker
		log.Infof("[Bootstrap] Leases in Redis at %s", cfg.Redis.Addr)
	} else {
		locker = lease.NewLocalLocker()
		log.Warnf("[Bootstrap] REDIS_ADDR not set, leases are local to this process")
	}

	rt.Metrics = metrics.NewPrometheusRecorder()
	rt.Services = services.New(services.Deps{
		Pipeline: cfg.Pipeline,
		Repos:    services.NewRepositoryManager(db),
		Client:   client,
		Store:    store,
		Locker:   locker,
		Notifier: workflows.NewSlackNotifier(cfg.SlackWebhookURL, log),
		Metrics:  rt.Metrics,
		Logger:   log,
	})
	return rt, nil
}

// Close releases backends in reverse order of acquisition.
func (rt *Runtime) Close() error {
	var result *multierror.Error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	rt.closers = nil
	return result.ErrorOrNil()
}
