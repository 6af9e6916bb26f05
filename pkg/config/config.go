package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config aggregates every environment-driven setting the services use.
type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	Paystack       PaystackConfig
	Mpesa          MpesaConfig
	Reconciliation ReconciliationConfig
	FeatureFlags   FeatureFlagsConfig
	GCP            GCPConfig
	PubSub         PubSubConfig
	Outbox         OutboxConfig
}

// Load parses the process environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LETRENTS_APP_ENV" required:"true"`
	Port         string `envconfig:"LETRENTS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LETRENTS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LETRENTS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LETRENTS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LETRENTS_DB_DSN"`
	Driver string `envconfig:"LETRENTS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LETRENTS_DB_HOST"`
	LegacyPort     int    `envconfig:"LETRENTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LETRENTS_DB_USER"`
	LegacyPassword string `envconfig:"LETRENTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"LETRENTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"LETRENTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LETRENTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LETRENTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LETRENTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LETRENTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LETRENTS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LETRENTS_REDIS_ADDR"`
	Password     string        `envconfig:"LETRENTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"LETRENTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LETRENTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LETRENTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LETRENTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LETRENTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LETRENTS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LETRENTS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LETRENTS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LETRENTS_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PaystackConfig carries the card/mobile-money aggregator credentials.
type PaystackConfig struct {
	SecretKey      string        `envconfig:"LETRENTS_PAYSTACK_SECRET_KEY"`
	IdempotencyTTL time.Duration `envconfig:"LETRENTS_PAYSTACK_IDEMPOTENCY_TTL" default:"72h"`
}

// MpesaConfig carries the bank mobile-money channel settings.
type MpesaConfig struct {
	ShortCode      string        `envconfig:"LETRENTS_MPESA_SHORT_CODE"`
	IdempotencyTTL time.Duration `envconfig:"LETRENTS_MPESA_IDEMPOTENCY_TTL" default:"72h"`
}

// ReconciliationConfig tunes the pull-based sweep.
type ReconciliationConfig struct {
	Interval       time.Duration `envconfig:"LETRENTS_RECONCILIATION_INTERVAL" default:"1h"`
	InvoiceBatch   int           `envconfig:"LETRENTS_RECONCILIATION_INVOICE_BATCH" default:"200"`
	ScanWindow     int           `envconfig:"LETRENTS_RECONCILIATION_SCAN_WINDOW" default:"50"`
	LockTTLMinutes int           `envconfig:"LETRENTS_RECONCILIATION_LOCK_TTL_MINUTES" default:"90"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LETRENTS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LETRENTS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"LETRENTS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"LETRENTS_PUBSUB_NOTIFICATION_TOPIC" default:"lr-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LETRENTS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LETRENTS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LETRENTS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
