// Package app собирает кассу из хранилищ, сервисов и транспортов и управляет их жизненным циклом.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/cafe/internal/health"
	"github.com/vladislavdragonenkov/cafe/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cafe/internal/metrics"
	"github.com/vladislavdragonenkov/cafe/internal/seed"
	"github.com/vladislavdragonenkov/cafe/internal/service/cart"
	"github.com/vladislavdragonenkov/cafe/internal/service/catalog"
	"github.com/vladislavdragonenkov/cafe/internal/service/dashboard"
	"github.com/vladislavdragonenkov/cafe/internal/service/httpapi"
	"github.com/vladislavdragonenkov/cafe/internal/service/idempotency"
	"github.com/vladislavdragonenkov/cafe/internal/service/ledger"
	"github.com/vladislavdragonenkov/cafe/internal/service/outbox"
	"github.com/vladislavdragonenkov/cafe/internal/version"
)

const (
	shutdownTimeout   = 5 * time.Second
	outboxDrainBudget = 3 * time.Second
)

// services: прикладной слой кассы поверх выбранных хранилищ.
type services struct {
	catalog   *catalog.Service
	ledger    *ledger.Service
	carts     *cart.Store
	dashboard *dashboard.View
	guard     *idempotency.Guard
}

func buildServices(cfg Config, deps *runtimeDependencies, publishEvents bool, loc *time.Location, logger *log.Entry) *services {
	salesMetrics := metrics.NewSalesMetrics()

	catalogSvc := catalog.NewService(deps.catalogRepo,
		catalog.WithLogger(logger.WithField("component", "catalog")),
		catalog.WithMetrics(salesMetrics),
	)

	ledgerOptions := []ledger.Option{
		ledger.WithTimeline(deps.timelineRepo),
		ledger.WithLogger(logger.WithField("component", "ledger")),
		ledger.WithMetrics(salesMetrics),
		ledger.WithLocation(loc),
	}
	if publishEvents {
		ledgerOptions = append(ledgerOptions, ledger.WithOutbox(deps.outboxRepo))
	}
	ledgerSvc := ledger.NewService(catalogSvc, deps.saleRepo, ledgerOptions...)

	return &services{
		catalog:   catalogSvc,
		ledger:    ledgerSvc,
		carts:     cart.NewStore(catalogSvc, cfg.CartIdleTTL),
		dashboard: dashboard.NewView(ledgerSvc, catalogSvc, dashboard.WithLocation(loc)),
		guard: idempotency.NewGuard(deps.idempotencyRepo,
			idempotency.WithGuardLogger(logger.WithField("component", "idempotency")),
			idempotency.WithTTL(cfg.IdempotencyTTL),
		),
	}
}

// Run запускает HTTP API, ops-сервер метрик, gRPC health и фоновые воркеры.
// Возвращает ctx.Err() после штатной остановки по отмене контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	// Недоступная Kafka не мешает продажам: события остаются только в timeline.
	kafkaProducer, _ := initKafkaProducer(cfg.Brokers(), cfg.KafkaClientID, logger)
	defer closeKafkaProducer(kafkaProducer, logger)

	svc := buildServices(cfg, deps, kafkaProducer != nil, loc, logger)

	if cfg.SeedDemoData {
		if _, err := seed.Load(deps.catalogRepo, deps.saleRepo, svc.ledger.Now(), logger.WithField("component", "seed")); err != nil {
			return fmt.Errorf("load demo data: %w", err)
		}
	}

	healthHandler := newHealthHandler(cfg, deps, kafkaProducer != nil)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var (
		outboxWorker *outbox.Worker
		outboxDone   chan struct{}
	)
	if kafkaProducer != nil {
		outboxWorker = outbox.NewWorker(deps.outboxRepo,
			kafka.NewOutboxPublisher(kafkaProducer, cfg.KafkaTopic),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(kafkaProducer, cfg.KafkaDLQTopic, cfg.KafkaTopic)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		outboxDone = make(chan struct{})
		go func() {
			defer close(outboxDone)
			outboxWorker.Run(workerCtx)
		}()
	}

	cleanupDone := make(chan struct{})
	if deps.idempotencyExpires {
		close(cleanupDone)
	} else {
		cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		)
		go func() {
			defer close(cleanupDone)
			cleanup.Run(workerCtx)
		}()
	}

	api := httpapi.NewServer(httpapi.Dependencies{
		Catalog:           svc.catalog,
		Ledger:            svc.ledger,
		Carts:             svc.carts,
		Dashboard:         svc.dashboard,
		Guard:             svc.guard,
		Logger:            logger.WithField("component", "httpapi"),
		CheckoutRateLimit: cfg.CheckoutRateLimit,
	}).App()

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	grpcServer, healthServer := newOpsGRPCServer(logger)
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("HTTP API слушает %s", httpListener.Addr())
		errCh <- api.Listener(httpListener)
	}()
	go func() {
		logger.Infof("gRPC health слушает %s", grpcListener.Addr())
		errCh <- grpcServer.Serve(grpcListener)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем кассу")
		runErr = ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	if err := api.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.WithError(err).Warn("http api shutdown with error")
	}
	stopGRPC(grpcServer, healthServer, logger)
	shutdownHTTP(metricsSrv, logger)
	shutdownOutboxWorker(stopWorkers, outboxDone, logger)
	<-cleanupDone

	if outboxWorker != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), outboxDrainBudget)
		outboxWorker.Drain(drainCtx)
		cancel()
	}

	return runErr
}

// newHealthHandler регистрирует проверки хранилища, Redis и backlog outbox.
// Outbox проверяется только при включённой публикации событий.
func newHealthHandler(cfg Config, deps *runtimeDependencies, eventsEnabled bool) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	handler.RegisterChecker("storage", deps.storageChecker)
	if deps.redisChecker != nil {
		handler.RegisterChecker("redis", deps.redisChecker)
	}
	if eventsEnabled {
		handler.RegisterChecker("outbox", healthcheck.NewBacklogChecker("outbox", cfg.OutboxMaxPending, func() (int, error) {
			stats, err := deps.outboxRepo.Stats()
			return stats.PendingCount, err
		}))
	}
	return handler
}

// newOpsGRPCServer поднимает gRPC health и reflection с метриками Prometheus.
func newOpsGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return server, healthServer
}

func stopGRPC(server *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownOutboxWorker останавливает цикл outbox и ждёт его завершения.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Debug("outbox worker stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn("outbox worker did not stop in time")
	}
}

// startMetricsServer запускает ops HTTP-сервер: /metrics, /healthz, /livez, /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
