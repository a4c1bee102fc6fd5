package config

const EnvPrefix = "AGRITRADE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "AGRITRADE_APP_ENV"
	EnvPort         = "AGRITRADE_APP_PORT"
	EnvLogLevel     = "AGRITRADE_LOG_LEVEL"
	EnvServiceKind  = "AGRITRADE_SERVICE_KIND"
	EnvDBDSN        = "AGRITRADE_DB_DSN"
	EnvDBHost       = "AGRITRADE_DB_HOST"
	EnvDBUser       = "AGRITRADE_DB_USER"
	EnvDBName       = "AGRITRADE_DB_NAME"
	EnvRedisURL     = "AGRITRADE_REDIS_URL"
	EnvJWTSecret    = "AGRITRADE_JWT_SECRET"
	EnvJWTIssuer    = "AGRITRADE_JWT_ISSUER"
	EnvJWTExpMins   = "AGRITRADE_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID = "AGRITRADE_GCP_PROJECT_ID"
	EnvGCSBucket    = "AGRITRADE_GCS_BUCKET_NAME"
	EnvDomainTopic  = "AGRITRADE_PUBSUB_DOMAIN_TOPIC"
	EnvReservation  = "AGRITRADE_RESERVATION_TTL"
	EnvReaperEvery  = "AGRITRADE_RESERVATION_REAPER_INTERVAL"
	EnvActivityWin  = "AGRITRADE_ACTIVITY_DEFAULT_WINDOW"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
