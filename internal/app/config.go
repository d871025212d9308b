package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

// EnvPrefix: префикс переменных окружения сервиса.
const EnvPrefix = "RETAILOPS"

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса возвратов.
type Config struct {
	GRPCAddr        string        `envconfig:"GRPC_ADDR"`
	MetricsAddr     string        `envconfig:"METRICS_ADDR"`
	LogLevel        string        `envconfig:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`

	BackendURL          string        `envconfig:"BACKEND_URL"`
	BackendToken        string        `envconfig:"BACKEND_TOKEN"`
	BackendTimeout      time.Duration `envconfig:"BACKEND_TIMEOUT"`
	BreakerMaxFailures  int           `envconfig:"BREAKER_MAX_FAILURES"`
	BreakerResetTimeout time.Duration `envconfig:"BREAKER_RESET_TIMEOUT"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE"`
	PostgresMaxConns    int    `envconfig:"POSTGRES_MAX_CONNS"`

	// RedisAddr включает распределённую блокировку заказов; пусто, блокировка в памяти процесса
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB"`
	LockTTL       time.Duration `envconfig:"LOCK_TTL"`

	// KafkaBrokers: список через запятую; пусто, события не публикуются
	KafkaBrokers    string `envconfig:"KAFKA_BROKERS"`
	KafkaClientID   string `envconfig:"KAFKA_CLIENT_ID"`
	KafkaMaxRetries int    `envconfig:"KAFKA_MAX_RETRIES"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY"`
	// OutboxMaxPending: порог backlog, после которого /healthz отвечает degraded
	OutboxMaxPending int `envconfig:"OUTBOX_MAX_PENDING"`

	RequireIdempotencyKey       bool          `envconfig:"REQUIRE_IDEMPOTENCY_KEY"`
	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE"`
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:        ":50051",
		MetricsAddr:     ":9090",
		LogLevel:        "info",
		ShutdownTimeout: 5 * time.Second,

		BackendURL:          "http://localhost:8000/api",
		BackendTimeout:      15 * time.Second,
		BreakerMaxFailures:  5,
		BreakerResetTimeout: 30 * time.Second,

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    20,

		LockTTL: 5 * time.Minute,

		KafkaClientID:   "retailops-returns",
		KafkaMaxRetries: 5,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxMaxPending:   1000,

		RequireIdempotencyKey:       true,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// LoadConfig накладывает переменные RETAILOPS_* поверх DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.GRPCAddr) == "" {
		errs = append(errs, errors.New("grpc addr is required"))
	}
	if strings.TrimSpace(c.BackendURL) == "" {
		errs = append(errs, errors.New("backend url is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.OutboxBatchSize < 0 || c.OutboxMaxAttempts < 0 || c.IdempotencyCleanupBatchSize < 0 || c.KafkaMaxRetries < 0 {
		errs = append(errs, errors.New("batch sizes and attempts must be non-negative"))
	}
	return errors.Join(errs...)
}

// Brokers разбирает KafkaBrokers в список адресов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
