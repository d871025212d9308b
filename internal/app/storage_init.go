package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
	"github.com/vladislavdragonenkov/retailops/internal/lock"
	"github.com/vladislavdragonenkov/retailops/internal/storage/memory"
	"github.com/vladislavdragonenkov/retailops/internal/storage/postgres"
)

// runtimeDependencies: хранилища и блокировка, выбранные конфигурацией.
type runtimeDependencies struct {
	journal         domain.SagaJournal
	timelineRepo    domain.TimelineRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	reconciliation  domain.ReconciliationRepository
	locker          domain.SagaLocker

	// pingers: проверки для /healthz и /readyz
	pingers []namedPing
	closers []func() error
}

type namedPing struct {
	name string
	ping func(context.Context) error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
}

// initRuntimeDependencies открывает хранилище и блокировку; при ошибке уже открытое закрывается.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{journal: memory.NewSagaJournal()}

	if err := initStorage(ctx, cfg, deps, logger); err != nil {
		deps.close(logger)
		return nil, err
	}
	if err := initLocker(ctx, cfg, deps, logger); err != nil {
		deps.close(logger)
		return nil, err
	}
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		deps.timelineRepo = memory.NewTimelineRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		deps.reconciliation = memory.NewReconciliationRepository()
		logger.Info("using in-memory storage")
		return nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("postgres storage requires RETAILOPS_POSTGRES_DSN")
		}
		opts := postgres.DefaultPoolOptions()
		if cfg.PostgresMaxConns > 0 {
			opts.MaxOpenConns = cfg.PostgresMaxConns
		}
		store, err := postgres.OpenWithOptions(ctx, cfg.PostgresDSN, opts)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
		}

		deps.timelineRepo = postgres.NewTimelineRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.reconciliation = postgres.NewReconciliationRepository(store)
		deps.pingers = append(deps.pingers, namedPing{name: "postgres", ping: store.Ping})
		logger.Info("using postgres storage")
		return nil
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initLocker(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	if cfg.RedisAddr == "" {
		deps.locker = lock.NewLocalLocker()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	deps.closers = append(deps.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}

	locker, err := lock.NewRedisLocker(client, cfg.LockTTL)
	if err != nil {
		return err
	}
	deps.locker = locker
	deps.pingers = append(deps.pingers, namedPing{
		name: "redis",
		ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
	})
	logger.WithField("addr", cfg.RedisAddr).Info("using redis order lock")
	return nil
}
