package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	AuthCookieSecure bool
	// NodeID seeds the snowflake generator; replicas must not share one.
	NodeID int64

	// PublicBaseURL is the externally reachable origin used to build provider redirect and callback URLs.
	PublicBaseURL string
	// AppDeepLink is where the redirect landing hands control back to the mobile client.
	AppDeepLink string

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBLogLevel        string
	DBSlowQuery       time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Firebase  FirebaseConfig
	Kafka     KafkaConfig
	Receipts  ReceiptConfig
	Payments  PaymentsConfig
	Admin     AdminConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	Metrics   MetricsExportConfig
}

// MetricsExportConfig pushes donation totals to an external Prometheus sink.
// Exporter is "prometheus_remote_write" or "prometheus_pushgateway".
type MetricsExportConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// TelemetryConfig feeds logging, tracing and otel metrics. The OTEL_* names
// follow the OpenTelemetry environment conventions.
type TelemetryConfig struct {
	DeploymentEnv   string
	LogLevel        string
	LogFormat       string
	OtelEnabled     bool
	MetricsEnabled  bool
	Endpoint        string
	TracesProtocol  string
	MetricsProtocol string
	SamplingRatio   float64
}

// RateLimitConfig bounds donor-facing writes and unauthenticated provider routes.
// Without RedisAddr every replica enforces the budgets on its own.
type RateLimitConfig struct {
	Enabled             bool
	DonationCreateRate  float64
	DonationCreateBurst int
	InboundRate         float64
	InboundBurst        int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type SchedulerConfig struct {
	Enabled      bool
	Interval     time.Duration
	JobTimeout   time.Duration
	BatchSize    int
	StalePending time.Duration
}

type FirebaseConfig struct {
	Enabled         bool
	CredentialsFile string
	ProjectID       string
	DonationTopic   string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ReceiptConfig struct {
	Bucket    string
	Region    string
	KeyPrefix string
}

// PaymentsConfig tunes the reconciliation core.
type PaymentsConfig struct {
	ProviderTimeout time.Duration
	RedirectTimeout time.Duration
	AsyncTimeout    time.Duration
	AsyncWorkers    int
	LockTTL         time.Duration
}

type AdminConfig struct {
	BootstrapEmail    string
	BootstrapPassword string
	SessionTTL        time.Duration
	SessionCookie     string
	// SessionRetention is how long expired or revoked sessions are kept before purging.
	SessionRetention time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "donara"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,
		NodeID:           int64(getenvInt("NODE_ID", 1)),
		PublicBaseURL:    strings.TrimRight(strings.TrimSpace(getenv("BACKEND_URL", "http://localhost:8080")), "/"),
		AppDeepLink:      strings.TrimSpace(getenv("APP_DEEP_LINK", "")),
		OTLPEndpoint:     getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "donara"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBLogLevel:        getenv("DATABASE_LOG_LEVEL", "warn"),
		DBSlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Firebase: FirebaseConfig{
			Enabled:         getenvBool("FIREBASE_ENABLED", true),
			CredentialsFile: strings.TrimSpace(getenv("FIREBASE_CREDENTIALS", "serviceAccountKey.json")),
			ProjectID:       strings.TrimSpace(getenv("FIREBASE_PROJECT_ID", "")),
			DonationTopic:   getenv("FIREBASE_DONATION_TOPIC", "donations"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_DONATION_TOPIC", "donation.settled"),
		},
		Receipts: ReceiptConfig{
			Bucket:    strings.TrimSpace(getenv("RECEIPT_BUCKET", "")),
			Region:    strings.TrimSpace(getenv("AWS_REGION", "ap-south-1")),
			KeyPrefix: getenv("RECEIPT_KEY_PREFIX", "receipts"),
		},
		Payments: PaymentsConfig{
			ProviderTimeout: getenvDuration("PAYMENT_PROVIDER_TIMEOUT", 15*time.Second),
			RedirectTimeout: getenvDuration("PAYMENT_REDIRECT_TIMEOUT", 8*time.Second),
			AsyncTimeout:    getenvDuration("PAYMENT_ASYNC_TIMEOUT", 30*time.Second),
			AsyncWorkers:    getenvInt("PAYMENT_ASYNC_WORKERS", 16),
			LockTTL:         getenvDuration("PAYMENT_LOCK_TTL", 10*time.Second),
		},
		Admin: AdminConfig{
			BootstrapEmail:    strings.TrimSpace(getenv("ADMIN_BOOTSTRAP_EMAIL", "")),
			BootstrapPassword: getenv("ADMIN_BOOTSTRAP_PASSWORD", ""),
			SessionTTL:        getenvDuration("ADMIN_SESSION_TTL", 12*time.Hour),
			SessionCookie:     strings.TrimSpace(getenv("ADMIN_SESSION_COOKIE", "_sid")),
			SessionRetention:  getenvDuration("ADMIN_SESSION_RETENTION", 7*24*time.Hour),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@donara.app"),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getenvBool("SCHEDULER_ENABLED", true),
			Interval:     getenvDuration("SCHEDULER_INTERVAL", 30*time.Second),
			JobTimeout:   getenvDuration("SCHEDULER_JOB_TIMEOUT", 2*time.Minute),
			BatchSize:    getenvInt("SCHEDULER_BATCH_SIZE", 50),
			StalePending: getenvDuration("SCHEDULER_STALE_PENDING", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:             getenvBool("RATE_LIMIT_ENABLED", true),
			DonationCreateRate:  getenvFloat("RATE_LIMIT_DONATION_CREATE_RATE", 0.2),
			DonationCreateBurst: getenvInt("RATE_LIMIT_DONATION_CREATE_BURST", 5),
			InboundRate:         getenvFloat("RATE_LIMIT_INBOUND_RATE", 50),
			InboundBurst:        getenvInt("RATE_LIMIT_INBOUND_BURST", 200),
		},
		Metrics: MetricsExportConfig{
			Enabled:   getenvBool("METRICS_EXPORT_ENABLED", false),
			Exporter:  strings.TrimSpace(getenv("METRICS_EXPORT_EXPORTER", "prometheus_pushgateway")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_EXPORT_ENDPOINT", "")),
			AuthToken: getenv("METRICS_EXPORT_AUTH_TOKEN", ""),
			Interval:  getenvDuration("METRICS_EXPORT_INTERVAL", time.Minute),
		},
	}
	cfg.Telemetry = loadTelemetry(cfg)

	return cfg
}

func loadTelemetry(cfg Config) TelemetryConfig {
	endpoint := getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	otelEnabled := getenvBool("OTEL_ENABLED", true)
	return TelemetryConfig{
		DeploymentEnv:   strings.TrimSpace(getenv("DEPLOYMENT_ENV", cfg.Environment)),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "json"),
		OtelEnabled:     otelEnabled,
		MetricsEnabled:  getenvBool("OTEL_METRICS_ENABLED", otelEnabled),
		Endpoint:        strings.TrimSpace(endpoint),
		TracesProtocol:  getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", protocol),
		MetricsProtocol: getenv("OTEL_EXPORTER_OTLP_METRICS_PROTOCOL", protocol),
		SamplingRatio:   getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
