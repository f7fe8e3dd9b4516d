package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/cafe/internal/health"
	"github.com/vladislavdragonenkov/cafe/internal/storage/memory"
	"github.com/vladislavdragonenkov/cafe/internal/storage/postgres"
	"github.com/vladislavdragonenkov/cafe/internal/storage/redisstore"
)

const storageInitTimeout = 15 * time.Second

// runtimeDependencies: хранилища, выбранные по конфигурации.
type runtimeDependencies struct {
	catalogRepo     domain.CatalogRepository
	saleRepo        domain.SaleRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	// idempotencyExpires: хранилище само удаляет истёкшие ключи, cleanup worker не нужен.
	idempotencyExpires bool

	storageChecker healthcheck.Checker
	redisChecker   healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	var (
		deps *runtimeDependencies
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case StorageDriverMemory:
		deps = memoryDependencies()
	case StorageDriverPostgres:
		deps, err = postgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		if err := attachRedis(ctx, deps, cfg.RedisAddr, logger); err != nil {
			_ = deps.close()
			return nil, err
		}
	}

	logger.WithFields(log.Fields{
		"storage": cfg.StorageDriver,
		"redis":   cfg.RedisAddr != "",
	}).Info("storage initialized")
	return deps, nil
}

func memoryDependencies() *runtimeDependencies {
	store := memory.NewStore()
	return &runtimeDependencies{
		catalogRepo:     store,
		saleRepo:        store,
		outboxRepo:      memory.NewOutboxRepository(),
		timelineRepo:    memory.NewTimelineRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		storageChecker:  healthcheck.NewSimpleChecker("storage", func() error { return nil }),
	}
}

func postgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required for postgres storage")
	}

	initCtx, cancel := context.WithTimeout(ctx, storageInitTimeout)
	defer cancel()

	store, err := postgres.Open(initCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(initCtx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate postgres schema: %w", err)
		}
		version, applied, err := store.MigrationStatus(initCtx)
		if err == nil {
			logger.WithFields(log.Fields{"version": version, "applied": applied}).Info("postgres schema is up to date")
		}
	}

	return &runtimeDependencies{
		catalogRepo:     postgres.NewCatalogRepository(store),
		saleRepo:        postgres.NewSaleRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		timelineRepo:    postgres.NewTimelineRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		storageChecker:  healthcheck.NewPingChecker("postgres", 0, store.Ping),
		closeFn:         store.Close,
	}, nil
}

func attachRedis(ctx context.Context, deps *runtimeDependencies, addr string, logger *log.Entry) error {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis %s: %w", addr, err)
	}

	repo := redisstore.NewIdempotencyRepository(client)
	deps.idempotencyRepo = repo
	deps.idempotencyExpires = true
	deps.redisChecker = healthcheck.NewPingChecker("redis", 0, repo.Ping)

	previous := deps.closeFn
	deps.closeFn = func() error {
		err := client.Close()
		if previous != nil {
			err = errors.Join(err, previous())
		}
		return err
	}

	logger.WithField("addr", addr).Info("redis idempotency store connected")
	return nil
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}
