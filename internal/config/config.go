package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageBackendMongo    = "mongo"
	StorageBackendPostgres = "postgres"

	VisitSinkDirect = "direct"
	VisitSinkKafka  = "kafka"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Storage   StorageConfig
	MongoDB   MongoDBConfig
	Postgres  PostgresConfig
	Shortener ShortenerConfig
	Visits    VisitsConfig
	Kafka     KafkaConfig
	Security  SecurityConfig
	OTel      OTelConfig
}

type AppConfig struct {
	Name     string
	Version  string
	Env      string
	LogLevel string
}

type ServerConfig struct {
	Port string
	Host string
}

type StorageConfig struct {
	Backend string // "mongo" or "postgres"
}

type MongoDBConfig struct {
	URI      string
	Database string
}

type PostgresConfig struct {
	DSN string
}

type ShortenerConfig struct {
	BaseURL        string
	CodeLength     int
	RedirectStatus int // 301 or 302
}

type VisitsConfig struct {
	Salt          string // per-deployment fingerprint salt
	Sink          string // "direct" or "kafka"
	QueueSize     int
	Workers       int
	RecordTimeout time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type SecurityConfig struct {
	APIKeys []string
}

type OTelConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		App: AppConfig{
			Name:     GetEnv("APP_NAME", "linksight"),
			Version:  GetEnv("APP_VERSION", "0.1.0"),
			Env:      GetEnv("APP_ENV", "development"),
			LogLevel: GetEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: GetEnv("APP_PORT", "8080"),
			Host: GetEnv("APP_HOST", "localhost"),
		},
		Storage: StorageConfig{
			Backend: GetEnv("STORAGE_BACKEND", StorageBackendMongo),
		},
		MongoDB: MongoDBConfig{
			URI:      GetEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: GetEnv("MONGODB_DATABASE", "linksight"),
		},
		Postgres: PostgresConfig{
			DSN: GetEnv("POSTGRES_DSN", DefaultPostgresDSN()),
		},
		Shortener: ShortenerConfig{
			BaseURL:        GetEnv("SHORTENER_BASE_URL", "http://localhost:8080"),
			CodeLength:     GetEnvInt("SHORT_CODE_LENGTH", 6),
			RedirectStatus: GetEnvInt("REDIRECT_STATUS", 302),
		},
		Visits: VisitsConfig{
			Salt:          GetEnv("VISIT_FINGERPRINT_SALT", ""),
			Sink:          GetEnv("VISIT_SINK", VisitSinkDirect),
			QueueSize:     GetEnvInt("VISIT_QUEUE_SIZE", 1024),
			Workers:       GetEnvInt("VISIT_WORKERS", 4),
			RecordTimeout: GetEnvDuration("VISIT_RECORD_TIMEOUT", 2*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: SplitCSV(GetEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   GetEnv("KAFKA_VISIT_TOPIC", "visits.recorded"),
			GroupID: GetEnv("KAFKA_VISIT_GROUP_ID", "visit-ledger"),
		},
		Security: SecurityConfig{
			APIKeys: SplitCSV(GetEnv("API_KEYS", "")),
		},
		OTel: OTelConfig{
			Enabled:  GetEnvBool("OTEL_ENABLED", false),
			Endpoint: GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		},
	}

	if cfg.Storage.Backend != StorageBackendMongo && cfg.Storage.Backend != StorageBackendPostgres {
		return nil, fmt.Errorf("STORAGE_BACKEND must be %q or %q (got %q)", StorageBackendMongo, StorageBackendPostgres, cfg.Storage.Backend)
	}
	if cfg.Visits.Sink != VisitSinkDirect && cfg.Visits.Sink != VisitSinkKafka {
		return nil, fmt.Errorf("VISIT_SINK must be %q or %q (got %q)", VisitSinkDirect, VisitSinkKafka, cfg.Visits.Sink)
	}
	if cfg.Shortener.RedirectStatus != 301 && cfg.Shortener.RedirectStatus != 302 {
		return nil, fmt.Errorf("REDIRECT_STATUS must be 301 or 302 (got %d)", cfg.Shortener.RedirectStatus)
	}
	if cfg.Shortener.CodeLength < 4 || cfg.Shortener.CodeLength > 32 {
		return nil, fmt.Errorf("SHORT_CODE_LENGTH must be between 4 and 32 (got %d)", cfg.Shortener.CodeLength)
	}
	if cfg.Visits.QueueSize <= 0 {
		return nil, fmt.Errorf("VISIT_QUEUE_SIZE must be > 0 (got %d)", cfg.Visits.QueueSize)
	}
	if cfg.Visits.Workers <= 0 {
		return nil, fmt.Errorf("VISIT_WORKERS must be > 0 (got %d)", cfg.Visits.Workers)
	}

	return cfg, nil
}
