package config

const EnvPrefix = "TILLSTOCK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv        = "TILLSTOCK_APP_ENV"
	EnvPort          = "TILLSTOCK_APP_PORT"
	EnvDBDSN         = "TILLSTOCK_DB_DSN"
	EnvDBHost        = "TILLSTOCK_DB_HOST"
	EnvDBUser        = "TILLSTOCK_DB_USER"
	EnvDBName        = "TILLSTOCK_DB_NAME"
	EnvDBPassword    = "TILLSTOCK_DB_PASSWORD"
	EnvRedisURL      = "TILLSTOCK_REDIS_URL"
	EnvJWTSecret     = "TILLSTOCK_JWT_SECRET"
	EnvJWTIssuer     = "TILLSTOCK_JWT_ISSUER"
	EnvStripeTimeout = "TILLSTOCK_STRIPE_TIMEOUT"
	EnvCacheTTL      = "TILLSTOCK_CACHE_ACCOUNT_STATUS_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
