package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/retailops/internal/backend"
	"github.com/vladislavdragonenkov/retailops/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/retailops/internal/metrics"
	"github.com/vladislavdragonenkov/retailops/internal/service/saga"
)

// newBackendClient создаёт HTTP-клиент commerce backend с circuit breaker и метриками.
func newBackendClient(cfg Config, registerer prometheus.Registerer, logger *log.Entry) (*backend.Client, error) {
	breaker := backend.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, logger.WithField("component", "circuit-breaker"))

	client, err := backend.NewClient(cfg.BackendURL,
		backend.WithToken(cfg.BackendToken),
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithBreaker(breaker),
		backend.WithMetrics(metrics.NewClientMetricsWithRegisterer(registerer)),
		backend.WithLogger(logger.WithField("component", "backend-client")),
	)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	return client, nil
}

// createOrchestrator собирает сагу поверх backend, хранилищ и, если есть, Kafka producer.
// Outbox подключается только вместе с Kafka: без публикации сообщения копились бы бесконечно.
func createOrchestrator(
	deps *runtimeDependencies,
	client *backend.Client,
	kafkaProducer *kafka.Producer,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) (*saga.Orchestrator, error) {
	sagaDeps := saga.Dependencies{
		Orders:         client.Orders(),
		Returns:        client.Returns(),
		Refunds:        client.Refunds(),
		Defects:        client.Defects(),
		Locker:         deps.locker,
		Journal:        deps.journal,
		Reconciliation: deps.reconciliation,
		Timeline:       deps.timelineRepo,
	}

	opts := []saga.Option{
		saga.WithMetrics(sagaMetrics),
		saga.WithLogger(logger.WithField("component", "saga")),
	}
	if kafkaProducer != nil {
		sagaDeps.Outbox = deps.outboxRepo
		opts = append(opts, saga.WithPublisher(kafkaProducer))
	}

	return saga.NewOrchestrator(sagaDeps, opts...)
}
