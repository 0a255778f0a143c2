package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcart/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shopcart/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/shopcart/internal/pricing"
	"github.com/vladislavdragonenkov/shopcart/internal/service/idempotency"
)

const (
	// StorageDriverMemory хранит корзины в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит корзины в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

const (
	EventsBrokerNone     = "none"
	EventsBrokerKafka    = "kafka"
	EventsBrokerRabbitMQ = "rabbitmq"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config описывает настройки запуска сервиса корзин.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	GRPCAddr    string // пустой отключает admin gRPC сервер

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	EventsBroker     string
	KafkaBrokers     []string
	KafkaTopic       string
	RabbitMQURL      string
	RabbitMQExchange string

	DiscountStacking pricing.Stacking

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// CORSOrigins пустой означает "разрешены все источники".
	CORSOrigins []string

	LogLevel  string
	LogFormat string
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8000",
		MetricsAddr:                 ":9090",
		GRPCAddr:                    ":50051",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		EventsBroker:                EventsBrokerNone,
		KafkaTopic:                  kafka.TopicCartEvents,
		RabbitMQExchange:            rabbitmq.DefaultExchange,
		DiscountStacking:            pricing.StackingAdditive,
		IdempotencyTTL:              idempotency.DefaultTTL,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
		LogLevel:                    log.InfoLevel.String(),
		LogFormat:                   LogFormatText,
	}
}

// LoadConfig читает .env (если файл есть) и переменные окружения поверх DefaultConfig.
// Уже выставленные переменные окружения приоритетнее значений из файла.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := DefaultConfig()
	var errs []error

	cfg.HTTPAddr = envString("CART_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("CART_METRICS_ADDR", cfg.MetricsAddr)
	if v, ok := os.LookupEnv("CART_GRPC_ADDR"); ok {
		cfg.GRPCAddr = strings.TrimSpace(v)
	}

	cfg.StorageDriver = strings.ToLower(envString("CART_STORAGE_DRIVER", cfg.StorageDriver))
	cfg.PostgresDSN = envString("CART_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("CART_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate, &errs)

	cfg.KafkaBrokers = envList("KAFKA_BROKERS")
	cfg.KafkaTopic = envString("CART_KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.RabbitMQURL = envString("RABBITMQ_URL", cfg.RabbitMQURL)
	cfg.RabbitMQExchange = envString("CART_RABBITMQ_EXCHANGE", cfg.RabbitMQExchange)
	cfg.EventsBroker = strings.ToLower(envString("CART_EVENTS_BROKER", defaultBroker(cfg)))

	stacking, err := pricing.ParseStacking(os.Getenv("CART_DISCOUNT_STACKING"))
	if err != nil {
		errs = append(errs, fmt.Errorf("CART_DISCOUNT_STACKING: %w", err))
	} else {
		cfg.DiscountStacking = stacking
	}

	cfg.IdempotencyTTL = envDuration("CART_IDEMPOTENCY_TTL", cfg.IdempotencyTTL, &errs)
	cfg.IdempotencyCleanupInterval = envDuration("CART_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval, &errs)
	cfg.IdempotencyCleanupBatchSize = envInt("CART_IDEMPOTENCY_CLEANUP_BATCH_SIZE", cfg.IdempotencyCleanupBatchSize, &errs)

	cfg.CORSOrigins = envList("CART_CORS_ORIGINS")

	cfg.LogLevel = strings.ToLower(envString("CART_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envString("CART_LOG_FORMAT", cfg.LogFormat))

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if strings.TrimSpace(c.MetricsAddr) == "" {
		errs = append(errs, errors.New("metrics addr is required"))
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

	switch c.EventsBroker {
	case EventsBrokerNone:
	case EventsBrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka brokers are required for kafka events broker"))
		}
	case EventsBrokerRabbitMQ:
		if strings.TrimSpace(c.RabbitMQURL) == "" {
			errs = append(errs, errors.New("rabbitmq url is required for rabbitmq events broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported events broker %q", c.EventsBroker))
	}

	if _, err := pricing.ParseStacking(string(c.DiscountStacking)); err != nil {
		errs = append(errs, err)
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}
	if c.IdempotencyCleanupInterval <= 0 {
		errs = append(errs, errors.New("idempotency cleanup interval must be positive"))
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup batch size must be positive"))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// ConfigureLogger применяет формат и уровень логирования к стандартному логгеру logrus.
func ConfigureLogger(cfg Config) {
	if cfg.LogFormat == LogFormatJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// defaultBroker выбирает брокер по заданным адресам, если CART_EVENTS_BROKER не указан.
func defaultBroker(cfg Config) string {
	switch {
	case len(cfg.KafkaBrokers) > 0:
		return EventsBrokerKafka
	case cfg.RabbitMQURL != "":
		return EventsBrokerRabbitMQ
	default:
		return EventsBrokerNone
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envBool(key string, fallback bool, errs *[]error) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func envInt(key string, fallback int, errs *[]error) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}
