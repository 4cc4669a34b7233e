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
	AppName      string
	AppVersion   string
	Environment  string
	HTTPAddr     string
	CookieSecure bool

	Observability ObservabilityConfig

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

	Currency string

	Stripe    StripeConfig
	PayPal    PayPalConfig
	Email     EmailConfig
	Tracking  TrackingConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
	Bootstrap BootstrapConfig

	ProgramConfigFile string
}

// ObservabilityConfig feeds the logger, tracer and meter providers.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
	Enabled       bool
}

type StripeConfig struct {
	WebhookSecret    string
	WebhookTolerance time.Duration
}

type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	EmailSubject string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
}

type TrackingConfig struct {
	IPHashSalt   string
	CookieDomain string
	CookieMaxAge time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	Limit         int
	Window        time.Duration
	SweepInterval time.Duration
	MaxKeys       int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type SchedulerConfig struct {
	Enabled            bool
	DispatchInterval   time.Duration
	DispatchBatchSize  int
	NotifyMaxAttempts  int
	PayoutAutoGenerate bool
	PayoutInterval     time.Duration
	JobTimeout         time.Duration
	LockTTL            time.Duration
}

type BootstrapConfig struct {
	AdminAPIKey string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	cookieSecure := environment == "production"
	if !cookieSecure {
		cookieSecure = getenvBool("COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "hightide"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       environment,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		CookieSecure:      cookieSecure,
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "hightide"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		Currency:          strings.ToLower(getenv("PAYOUT_CURRENCY", "usd")),
		Observability: loadObservability(),
		Stripe: StripeConfig{
			WebhookSecret:    strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			WebhookTolerance: getenvDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		PayPal: PayPalConfig{
			BaseURL:      strings.TrimRight(getenv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"), "/"),
			ClientID:     strings.TrimSpace(getenv("PAYPAL_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("PAYPAL_CLIENT_SECRET", "")),
			EmailSubject: getenv("PAYPAL_EMAIL_SUBJECT", "You have a payout"),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			From:         getenv("SMTP_FROM", "affiliates@localhost"),
		},
		Tracking: TrackingConfig{
			IPHashSalt:   getenv("TRACKING_IP_HASH_SALT", ""),
			CookieDomain: strings.TrimSpace(getenv("TRACKING_COOKIE_DOMAIN", "")),
			CookieMaxAge: getenvDuration("TRACKING_COOKIE_MAX_AGE", 90*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", true),
			Limit:         getenvInt("RATE_LIMIT_REQUESTS", 60),
			Window:        getenvDuration("RATE_LIMIT_WINDOW", time.Minute),
			SweepInterval: getenvDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
			MaxKeys:       getenvInt("RATE_LIMIT_MAX_KEYS", 100_000),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
		},
		Scheduler: SchedulerConfig{
			Enabled:            getenvBool("SCHEDULER_ENABLED", true),
			DispatchInterval:   getenvDuration("SCHEDULER_DISPATCH_INTERVAL", 30*time.Second),
			DispatchBatchSize:  getenvInt("SCHEDULER_DISPATCH_BATCH_SIZE", 50),
			NotifyMaxAttempts:  getenvInt("NOTIFY_MAX_ATTEMPTS", 8),
			PayoutAutoGenerate: getenvBool("PAYOUT_AUTO_GENERATE", false),
			PayoutInterval:     getenvDuration("SCHEDULER_PAYOUT_INTERVAL", 24*time.Hour),
			JobTimeout:         getenvDuration("SCHEDULER_JOB_TIMEOUT", 2*time.Minute),
			LockTTL:            getenvDuration("SCHEDULER_LOCK_TTL", 5*time.Minute),
		},
		Bootstrap: BootstrapConfig{
			AdminAPIKey: strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_API_KEY", "")),
		},
		ProgramConfigFile: strings.TrimSpace(getenv("PROGRAM_CONFIG_FILE", "")),
	}

	return cfg
}

func loadObservability() ObservabilityConfig {
	endpoint := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "")))
	return ObservabilityConfig{
		LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OTLPEndpoint:  endpoint,
		OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		// No collector, nothing to export to.
		Enabled: getenvBool("OTEL_ENABLED", endpoint != ""),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
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
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
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
	if err != nil {
		return def
	}
	return parsed
}
