// Package app собирает сервис возвратов: хранилища, backend, сагу, gRPC и HTTP-пробы.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vladislavdragonenkov/retailops/internal/backend"
	"github.com/vladislavdragonenkov/retailops/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/retailops/internal/health"
	"github.com/vladislavdragonenkov/retailops/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/retailops/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/retailops/internal/service/grpc"
	"github.com/vladislavdragonenkov/retailops/internal/service/idempotency"
	"github.com/vladislavdragonenkov/retailops/internal/service/outbox"
	"github.com/vladislavdragonenkov/retailops/internal/version"
)

// Run запускает сервис и блокируется до отмены ctx или падения gRPC сервера.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := log.WithField("component", "app")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	client, err := newBackendClient(cfg, registry, logger)
	if err != nil {
		return err
	}

	// Kafka опциональна: ошибка подключения не мешает обрабатывать возвраты
	kafkaProducer, _ := initKafkaProducer(cfg, logger)
	defer closeKafka(kafkaProducer, logger)

	orchestrator, err := createOrchestrator(deps, client, kafkaProducer, metrics.NewSagaMetricsWithRegisterer(registry), logger)
	if err != nil {
		return err
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	var idemRepo domain.IdempotencyRepository
	if cfg.RequireIdempotencyKey {
		idemRepo = deps.idempotencyRepo
		cleanup := idempotency.NewCleanupWorker(idemRepo,
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
			idempotency.WithMetrics(metrics.NewCleanupMetrics(registry)),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		)
		startWorker(workerCtx, &workers, cleanup.Run)
	}

	if kafkaProducer != nil {
		worker := outbox.NewWorker(deps.outboxRepo, kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicReturnEvents),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithMetrics(metrics.NewOutboxMetrics(registry)),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetter)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		startWorker(workerCtx, &workers, worker.Run)
	}

	grpcMetrics := promgrpc.NewServerMetrics()
	registry.MustRegister(grpcMetrics)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))

	returnsService := grpcsvc.NewReturnsService(orchestrator, idemRepo, logger.WithField("layer", "grpc"))
	grpcsvc.RegisterReturnsServer(grpcServer, returnsService)
	grpcMetrics.InitializeMetrics(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	healthHandler := newHealthHandler(cfg, deps, client, kafkaProducer != nil)
	opsSrv := startOpsServer(ctx, cfg.MetricsAddr, newOpsRouter(registry, healthHandler), logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(opsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{
			"addr":    cfg.GRPCAddr,
			"version": version.GetVersion(),
		}).Info("gRPC server listening")
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping gRPC server")
		healthServer.Shutdown()
		stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
		shutdownHTTP(opsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(opsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func startWorker(ctx context.Context, wg *sync.WaitGroup, run func(context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		run(ctx)
	}()
}

// stopGRPC дожидается активных саг, но не дольше timeout.
func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop timed out, forcing gRPC server stop")
		server.Stop()
	}
}

// newHealthHandler регистрирует проверки зависимостей.
// Хранилища критичны для readiness; backend и outbox только понижают статус до degraded.
func newHealthHandler(cfg Config, deps *runtimeDependencies, client *backend.Client, outboxEnabled bool) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	for _, p := range deps.pingers {
		handler.RegisterChecker(p.name, healthcheck.NewPingChecker(p.name, true, p.ping))
	}
	handler.RegisterChecker("backend", healthcheck.NewPingChecker("backend", false, client.Ping))

	if outboxEnabled {
		repo := deps.outboxRepo
		maxPending := cfg.OutboxMaxPending
		handler.RegisterChecker("outbox", healthcheck.NewPingChecker("outbox", false, func(context.Context) error {
			stats, err := repo.Stats()
			if err != nil {
				return err
			}
			if maxPending > 0 && stats.PendingCount > maxPending {
				return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
			}
			return nil
		}))
	}
	return handler
}
