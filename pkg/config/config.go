package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Wallet       WalletConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Wallet.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RAFFLEBOX_APP_ENV" required:"true"`
	Port         string `envconfig:"RAFFLEBOX_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RAFFLEBOX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RAFFLEBOX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"RAFFLEBOX_DB_DSN"`
	Driver string `envconfig:"RAFFLEBOX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RAFFLEBOX_DB_HOST"`
	LegacyPort     int    `envconfig:"RAFFLEBOX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RAFFLEBOX_DB_USER"`
	LegacyPassword string `envconfig:"RAFFLEBOX_DB_PASSWORD"`
	LegacyName     string `envconfig:"RAFFLEBOX_DB_NAME"`
	LegacySSLMode  string `envconfig:"RAFFLEBOX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RAFFLEBOX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RAFFLEBOX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RAFFLEBOX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RAFFLEBOX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RAFFLEBOX_REDIS_URL"`
	Address      string        `envconfig:"RAFFLEBOX_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"RAFFLEBOX_REDIS_PASSWORD"`
	DB           int           `envconfig:"RAFFLEBOX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RAFFLEBOX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RAFFLEBOX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RAFFLEBOX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RAFFLEBOX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RAFFLEBOX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RAFFLEBOX_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RAFFLEBOX_JWT_ISSUER" default:"rafflebox"`
	ExpirationMinutes int    `envconfig:"RAFFLEBOX_JWT_EXPIRATION_MINUTES" default:"60"`
}

// WalletConfig carries the commission/withdrawal business constants.
type WalletConfig struct {
	DefaultRateBps     int           `envconfig:"RAFFLEBOX_WALLET_DEFAULT_RATE_BPS" default:"1000"`
	MinWithdrawal      string        `envconfig:"RAFFLEBOX_WALLET_MIN_WITHDRAWAL" default:"100.00"`
	SummaryCacheTTL    time.Duration `envconfig:"RAFFLEBOX_WALLET_SUMMARY_CACHE_TTL" default:"30s"`
	ProbeCacheTTL      time.Duration `envconfig:"RAFFLEBOX_WALLET_PROBE_CACHE_TTL" default:"1h"`
	RecomputeBatchSize int           `envconfig:"RAFFLEBOX_WALLET_RECOMPUTE_BATCH_SIZE" default:"200"`
	RecomputeInterval  time.Duration `envconfig:"RAFFLEBOX_WALLET_RECOMPUTE_INTERVAL" default:"15m"`

	minWithdrawal decimal.Decimal
}

func (w *WalletConfig) validate() error {
	min, err := decimal.NewFromString(strings.TrimSpace(w.MinWithdrawal))
	if err != nil {
		return fmt.Errorf("invalid %s_WALLET_MIN_WITHDRAWAL %q: %w", strings.ToUpper(EnvPrefix), w.MinWithdrawal, err)
	}
	if min.IsNegative() {
		return fmt.Errorf("minimum withdrawal must not be negative, got %s", min)
	}
	w.minWithdrawal = min
	return nil
}

// MinWithdrawalAmount returns the parsed minimum withdrawal in display units.
func (w WalletConfig) MinWithdrawalAmount() decimal.Decimal {
	if !w.minWithdrawal.IsZero() {
		return w.minWithdrawal
	}
	if min, err := decimal.NewFromString(strings.TrimSpace(w.MinWithdrawal)); err == nil {
		return min
	}
	return decimal.Zero
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"RAFFLEBOX_AUTO_MIGRATE" default:"false"`
	UseSQLite   bool `envconfig:"RAFFLEBOX_USE_SQLITE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RAFFLEBOX_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RAFFLEBOX_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RAFFLEBOX_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PayoutTopic        string `envconfig:"RAFFLEBOX_PUBSUB_PAYOUT_TOPIC" default:"rb-payout-requests"`
	PayoutSubscription string `envconfig:"RAFFLEBOX_PUBSUB_PAYOUT_SUBSCRIPTION"`
}

// Enabled reports whether event publishing is configured at all. Local development
// runs without a GCP project and withdrawal submissions are logged instead.
func (p PubSubConfig) Enabled(gcp GCPConfig) bool {
	return strings.TrimSpace(gcp.ProjectID) != "" && strings.TrimSpace(p.PayoutTopic) != ""
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
