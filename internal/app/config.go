package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// Переменные окружения, переопределяющие DefaultConfig.
const (
	envHTTPAddr                    = "CAFE_HTTP_ADDR"
	envGRPCAddr                    = "CAFE_GRPC_ADDR"
	envMetricsAddr                 = "CAFE_METRICS_ADDR"
	envStorageDriver               = "CAFE_STORAGE_DRIVER"
	envPostgresDSN                 = "CAFE_POSTGRES_DSN"
	envPostgresAutoMigrate         = "CAFE_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "CAFE_REDIS_ADDR"
	envKafkaBrokers                = "CAFE_KAFKA_BROKERS"
	envKafkaClientID               = "CAFE_KAFKA_CLIENT_ID"
	envKafkaTopic                  = "CAFE_KAFKA_TOPIC"
	envKafkaDLQTopic               = "CAFE_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval          = "CAFE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "CAFE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "CAFE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "CAFE_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "CAFE_OUTBOX_MAX_PENDING"
	envIdempotencyTTL              = "CAFE_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "CAFE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "CAFE_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envCartIdleTTL                 = "CAFE_CART_IDLE_TTL"
	envCheckoutRateLimit           = "CAFE_CHECKOUT_RATE_LIMIT"
	envTimezone                    = "CAFE_TIMEZONE"
	envSeedDemoData                = "CAFE_SEED_DEMO"
)

// Config описывает настройки запуска кассы.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// RedisAddr переносит ключи идемпотентности в Redis; если пусто, используется StorageDriver.
	RedisAddr string

	// KafkaBrokers: брокеры через запятую; пусто отключает публикацию событий.
	KafkaBrokers  string
	KafkaClientID string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending: размер backlog, выше которого health отдаёт degraded; 0 отключает.
	OutboxMaxPending int

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	CartIdleTTL       time.Duration
	CheckoutRateLimit int
	// Timezone задаёт границы "сегодня" для выручки; имя из базы IANA.
	Timezone     string
	SeedDemoData bool
}

// DefaultConfig возвращает настройки для локального запуска в памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaClientID: "cafe-service",
		KafkaTopic:    "cafe.sale.events",
		KafkaDLQTopic: "cafe.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxMaxPending:   1000,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 1000,

		CartIdleTTL:       30 * time.Minute,
		CheckoutRateLimit: 60,
		Timezone:          "Local",
	}
}

// Validate проверяет сочетания настроек, при которых запуск невозможен.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, fmt.Errorf("%s is required for postgres storage", envPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be > 0"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location разбирает Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Brokers возвращает список Kafka-брокеров без пустых элементов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// EnvLookup ищет переменную окружения; совместим с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfigFromEnv читает настройки из окружения процесса.
func LoadConfigFromEnv() (Config, []string) {
	return LoadConfig(os.LookupEnv)
}

// LoadConfig накладывает переменные окружения на DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию,
// а описание проблемы возвращается в warnings.
func LoadConfig(lookup EnvLookup) (Config, []string) {
	cfg := DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envRedisAddr, &cfg.RedisAddr)
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaClientID, &cfg.KafkaClientID)
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")
	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")
	duration(envCartIdleTTL, &cfg.CartIdleTTL, positiveDuration, "must be > 0")
	integer(envCheckoutRateLimit, &cfg.CheckoutRateLimit, nonNegative, "must be >= 0")
	str(envTimezone, &cfg.Timezone)
	boolean(envSeedDemoData, &cfg.SeedDemoData)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if valid != nil && !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	if valid != nil && !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}
