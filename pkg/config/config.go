package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Workflow     WorkflowConfig
	Activity     ActivityConfig
	HTTP         HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Workflow.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AGRITRADE_APP_ENV" required:"true"`
	Port         string `envconfig:"AGRITRADE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AGRITRADE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"AGRITRADE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"AGRITRADE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AGRITRADE_SERVICE_KIND" default:"api"`
	// MetricsAddr is where cron-worker and outbox-publisher serve /metrics.
	// Empty disables the listener; the API serves /metrics on its router.
	MetricsAddr string `envconfig:"AGRITRADE_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"AGRITRADE_DB_DSN"`
	Driver string `envconfig:"AGRITRADE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AGRITRADE_DB_HOST"`
	LegacyPort     int    `envconfig:"AGRITRADE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AGRITRADE_DB_USER"`
	LegacyPassword string `envconfig:"AGRITRADE_DB_PASSWORD"`
	LegacyName     string `envconfig:"AGRITRADE_DB_NAME"`
	LegacySSLMode  string `envconfig:"AGRITRADE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AGRITRADE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AGRITRADE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AGRITRADE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AGRITRADE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"AGRITRADE_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AGRITRADE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AGRITRADE_REDIS_ADDR"`
	Password     string        `envconfig:"AGRITRADE_REDIS_PASSWORD"`
	DB           int           `envconfig:"AGRITRADE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AGRITRADE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AGRITRADE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AGRITRADE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AGRITRADE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AGRITRADE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"AGRITRADE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AGRITRADE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AGRITRADE_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AGRITRADE_AUTO_MIGRATE" default:"false"`
	// OutboxEnabled turns domain event emission off for deployments without Pub/Sub.
	OutboxEnabled bool `envconfig:"AGRITRADE_OUTBOX_ENABLED" default:"true"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"AGRITRADE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"AGRITRADE_GCP_CREDENTIALS_JSON"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"AGRITRADE_GCS_BUCKET_NAME" required:"true"`
	PublicBaseURL string `envconfig:"AGRITRADE_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
	MaxUploadMB   int    `envconfig:"AGRITRADE_MAX_UPLOAD_MB" default:"10"`
}

// MaxUploadBytes returns the multipart limit applied to voucher and signature uploads.
func (g GCSConfig) MaxUploadBytes() int64 {
	if g.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(g.MaxUploadMB) << 20
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"AGRITRADE_PUBSUB_DOMAIN_TOPIC" required:"true"`
	DomainSubscription string `envconfig:"AGRITRADE_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"AGRITRADE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"AGRITRADE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"AGRITRADE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"AGRITRADE_OUTBOX_RETENTION_DAYS" default:"30"`
	// DLQRetentionDays ages out dead letters on a longer window than delivered rows.
	DLQRetentionDays int `envconfig:"AGRITRADE_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

type WorkflowConfig struct {
	ReservationTTL        time.Duration `envconfig:"AGRITRADE_RESERVATION_TTL" default:"24h"`
	ReaperInterval        time.Duration `envconfig:"AGRITRADE_RESERVATION_REAPER_INTERVAL" default:"1h"`
	ReaperBatchSize       int           `envconfig:"AGRITRADE_RESERVATION_REAPER_BATCH_SIZE" default:"200"`
	ReaperLockTTL         time.Duration `envconfig:"AGRITRADE_RESERVATION_REAPER_LOCK_TTL" default:"10m"`
	ContractNumberRetries int           `envconfig:"AGRITRADE_CONTRACT_NUMBER_RETRIES" default:"3"`
}

func (w WorkflowConfig) validate() error {
	if w.ReservationTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvReservation)
	}
	if w.ReaperInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvReaperEvery)
	}
	return nil
}

type ActivityConfig struct {
	DefaultWindow time.Duration `envconfig:"AGRITRADE_ACTIVITY_DEFAULT_WINDOW" default:"1h"`
	Retention     time.Duration `envconfig:"AGRITRADE_ACTIVITY_RETENTION" default:"24h"`
	PruneInterval time.Duration `envconfig:"AGRITRADE_ACTIVITY_PRUNE_INTERVAL" default:"1m"`
}

type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"AGRITRADE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	UploadRateWindow   time.Duration `envconfig:"AGRITRADE_UPLOAD_RATE_WINDOW" default:"1m"`
	UploadRateLimit    int           `envconfig:"AGRITRADE_UPLOAD_RATE_LIMIT" default:"20"`
	ShutdownTimeout    time.Duration `envconfig:"AGRITRADE_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
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
