package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/dunamismax/iopbridge/internal/storage"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	API         APIConfig
	Log         LogConfig
	Storage     StorageConfig
	Fetch       FetchConfig
	Marketplace MarketplaceConfig
	Webhook     WebhookConfig
	Queue       QueueConfig
	Worker      WorkerConfig
	Database    DatabaseConfig
	Tracing     TracingConfig
}

type APIConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
}

// ZerologLevel falls back to info for unknown names.
func (l LogConfig) ZerologLevel() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type StorageConfig struct {
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	Endpoint      string
	UseSSL        bool
	PublicBaseURL string
}

// ClientConfig maps the storage settings onto the object store client.
func (s StorageConfig) ClientConfig() storage.Config {
	return storage.Config{
		Endpoint:      s.Endpoint,
		Access:        s.AccessKey,
		Secret:        s.SecretKey,
		Bucket:        s.Bucket,
		Region:        s.Region,
		UseSSL:        s.UseSSL,
		PublicBaseURL: s.PublicBaseURL,
	}
}

type FetchConfig struct {
	MaxBytes int64
}

type MarketplaceConfig struct {
	URL       string
	AppKey    string
	AppSecret string
}

type WebhookConfig struct {
	URL           string
	SigningSecret string
	Timeout       time.Duration
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency int
	MetricsAddr string
}

type DatabaseConfig struct {
	DSN string
}

type TracingConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// Load reads ./.env when present, then resolves every key from the
// environment with defaults.
func Load() Config {
	// Missing or unreadable .env leaves the process environment as is.
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("IOPBRIDGE_API_ADDR", ":8000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AWS_S3_REGION", "us-east-1")
	v.SetDefault("AWS_S3_USE_SSL", true)
	v.SetDefault("FETCH_MAX_BYTES", int64(50<<20))
	v.SetDefault("WEBHOOK_TIMEOUT", 10*time.Second)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ASYNC_QUEUE", "default")
	v.SetDefault("WORKER_CONCURRENCY", max(2, runtime.NumCPU()))
	v.SetDefault("WORKER_METRICS_ADDR", ":9091")
	v.SetDefault("OTEL_TRACES_EXPORTER", "none")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "iopbridge")
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) Config {
	region := strings.TrimSpace(v.GetString("AWS_S3_REGION"))
	endpoint := strings.TrimSpace(v.GetString("AWS_S3_ENDPOINT"))
	if endpoint == "" {
		endpoint = "s3." + region + ".amazonaws.com"
	}

	return Config{
		API: APIConfig{
			Addr: v.GetString("IOPBRIDGE_API_ADDR"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Storage: StorageConfig{
			AccessKey:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretKey:     v.GetString("AWS_SECRET_ACCESS_KEY"),
			Bucket:        v.GetString("AWS_S3_BUCKET_NAME"),
			Region:        region,
			Endpoint:      endpoint,
			UseSSL:        v.GetBool("AWS_S3_USE_SSL"),
			PublicBaseURL: v.GetString("AWS_S3_PUBLIC_BASE_URL"),
		},
		Fetch: FetchConfig{
			MaxBytes: v.GetInt64("FETCH_MAX_BYTES"),
		},
		Marketplace: MarketplaceConfig{
			URL:       v.GetString("IOP_API_URL"),
			AppKey:    v.GetString("IOP_APP_KEY"),
			AppSecret: v.GetString("IOP_APP_SECRET"),
		},
		Webhook: WebhookConfig{
			URL:           v.GetString("WEBHOOK_URL"),
			SigningSecret: v.GetString("WEBHOOK_SIGNING_SECRET"),
			Timeout:       v.GetDuration("WEBHOOK_TIMEOUT"),
		},
		Queue: QueueConfig{
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			Name:          v.GetString("ASYNC_QUEUE"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
			MetricsAddr: v.GetString("WORKER_METRICS_ADDR"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("POSTGRES_DSN"),
		},
		Tracing: TracingConfig{
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
			Exporter:     v.GetString("OTEL_TRACES_EXPORTER"),
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			OTLPInsecure: v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		},
	}
}
