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
	Stripe       StripeConfig
	Cache        CacheConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Stripe.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env           string   `envconfig:"TILLSTOCK_APP_ENV" required:"true"`
	Port          string   `envconfig:"TILLSTOCK_APP_PORT" required:"true"`
	LogLevel      string   `envconfig:"TILLSTOCK_LOG_LEVEL" default:"info"`
	LogWarnStack  bool     `envconfig:"TILLSTOCK_LOG_WARN_STACK" default:"false"`
	LogFormat     string   `envconfig:"TILLSTOCK_LOG_FORMAT" default:"json"`
	PublicBaseURL string   `envconfig:"TILLSTOCK_PUBLIC_BASE_URL" default:"http://localhost:3000"`
	CORSOrigins   []string `envconfig:"TILLSTOCK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TILLSTOCK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"TILLSTOCK_DB_DSN"`

	LegacyHost     string `envconfig:"TILLSTOCK_DB_HOST"`
	LegacyPort     int    `envconfig:"TILLSTOCK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TILLSTOCK_DB_USER"`
	LegacyPassword string `envconfig:"TILLSTOCK_DB_PASSWORD"`
	LegacyName     string `envconfig:"TILLSTOCK_DB_NAME"`
	LegacySSLMode  string `envconfig:"TILLSTOCK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TILLSTOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TILLSTOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TILLSTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TILLSTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this at warn level.
	SlowQueryThreshold time.Duration `envconfig:"TILLSTOCK_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TILLSTOCK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TILLSTOCK_REDIS_ADDR"`
	Password     string        `envconfig:"TILLSTOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"TILLSTOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TILLSTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TILLSTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TILLSTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TILLSTOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TILLSTOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only carries what is needed to verify access tokens; issuance lives elsewhere.
type JWTConfig struct {
	Secret string        `envconfig:"TILLSTOCK_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"TILLSTOCK_JWT_ISSUER" required:"true"`
	Leeway time.Duration `envconfig:"TILLSTOCK_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TILLSTOCK_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey               string        `envconfig:"TILLSTOCK_STRIPE_API_KEY"`
	Secret               string        `envconfig:"TILLSTOCK_STRIPE_SECRET"`
	Env                  string        `envconfig:"TILLSTOCK_STRIPE_ENV" default:"test"`
	Timeout              time.Duration `envconfig:"TILLSTOCK_STRIPE_TIMEOUT" default:"10s"`
	WebhookTolerance     time.Duration `envconfig:"TILLSTOCK_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
	MaxRetries           uint64        `envconfig:"TILLSTOCK_STRIPE_MAX_RETRIES" default:"3"`
	RetryBaseDelay       time.Duration `envconfig:"TILLSTOCK_STRIPE_RETRY_BASE_DELAY" default:"200ms"`
	RetryMaxDelay        time.Duration `envconfig:"TILLSTOCK_STRIPE_RETRY_MAX_DELAY" default:"3s"`
	ConnectCountry       string        `envconfig:"TILLSTOCK_STRIPE_CONNECT_COUNTRY" default:"US"`
	Currency             string        `envconfig:"TILLSTOCK_STRIPE_CURRENCY" default:"usd"`
	SuccessURL           string        `envconfig:"TILLSTOCK_STRIPE_SUCCESS_URL"`
	CancelURL            string        `envconfig:"TILLSTOCK_STRIPE_CANCEL_URL"`
	OnboardingReturnURL  string        `envconfig:"TILLSTOCK_STRIPE_ONBOARDING_RETURN_URL"`
	OnboardingRefreshURL string        `envconfig:"TILLSTOCK_STRIPE_ONBOARDING_REFRESH_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (s StripeConfig) validate() error {
	if s.Timeout < 0 {
		return fmt.Errorf("%s must not be negative", EnvStripeTimeout)
	}
	if s.RetryBaseDelay < 0 || s.RetryMaxDelay < 0 {
		return fmt.Errorf("stripe retry delays must not be negative")
	}
	return nil
}

// CacheConfig controls the TTLs of the read-through gateway cache.
type CacheConfig struct {
	AccountStatusTTL   time.Duration `envconfig:"TILLSTOCK_CACHE_ACCOUNT_STATUS_TTL" default:"60s"`
	CheckoutSessionTTL time.Duration `envconfig:"TILLSTOCK_CACHE_CHECKOUT_SESSION_TTL" default:"30s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TILLSTOCK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TILLSTOCK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	StockTopic   string `envconfig:"TILLSTOCK_PUBSUB_STOCK_TOPIC" default:"tillstock-stock-events"`
	OrdersTopic  string `envconfig:"TILLSTOCK_PUBSUB_ORDERS_TOPIC" default:"tillstock-order-events"`
	EmulatorHost string `envconfig:"PUBSUB_EMULATOR_HOST"`
	// CreateTopics creates missing topics on start; meant for the emulator.
	CreateTopics bool `envconfig:"TILLSTOCK_PUBSUB_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TILLSTOCK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TILLSTOCK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TILLSTOCK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"TILLSTOCK_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"TILLSTOCK_CRON_INTERVAL" default:"15m"`
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
