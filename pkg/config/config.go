package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Cart store modes select which implementation of the upstream cart
// contract the service runs against.
const (
	CartStoreModeRemote = "remote"
	CartStoreModeRedis  = "redis"
	CartStoreModeDB     = "db"
)

type Config struct {
	App       AppConfig
	Engine    EngineConfig
	CartStore CartStoreConfig
	Catalog   CatalogConfig
	Voucher   VoucherConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.CartStore.validate(); err != nil {
		return nil, err
	}
	if cfg.CartStore.Mode == CartStoreModeDB {
		if err := cfg.DB.EnsureDSN(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// EngineConfig tunes the cart resolution/mutation engine.
type EngineConfig struct {
	DebounceWindow   time.Duration `envconfig:"STOREFRONT_ENGINE_DEBOUNCE_WINDOW" default:"500ms"`
	OrphanPurgeDelay time.Duration `envconfig:"STOREFRONT_ENGINE_ORPHAN_PURGE_DELAY" default:"2s"`
	CommitTimeout    time.Duration `envconfig:"STOREFRONT_ENGINE_COMMIT_TIMEOUT" default:"10s"`
	SessionIdleTTL   time.Duration `envconfig:"STOREFRONT_ENGINE_SESSION_IDLE_TTL" default:"30m"`
}

type CartStoreConfig struct {
	Mode     string        `envconfig:"STOREFRONT_CARTSTORE_MODE" default:"remote"`
	BaseURL  string        `envconfig:"STOREFRONT_CARTSTORE_BASE_URL"`
	Timeout  time.Duration `envconfig:"STOREFRONT_CARTSTORE_TIMEOUT" default:"10s"`
	RedisTTL time.Duration `envconfig:"STOREFRONT_CARTSTORE_REDIS_TTL" default:"720h"`
}

func (c CartStoreConfig) validate() error {
	switch c.Mode {
	case CartStoreModeRemote:
		if c.BaseURL == "" {
			return fmt.Errorf("cart store base url is required in remote mode")
		}
		if _, err := url.Parse(c.BaseURL); err != nil {
			return fmt.Errorf("invalid cart store base url: %w", err)
		}
	case CartStoreModeRedis, CartStoreModeDB:
	default:
		return fmt.Errorf("unknown cart store mode %q", c.Mode)
	}
	return nil
}

type CatalogConfig struct {
	BaseURL  string        `envconfig:"STOREFRONT_CATALOG_BASE_URL" required:"true"`
	Timeout  time.Duration `envconfig:"STOREFRONT_CATALOG_TIMEOUT" default:"10s"`
	CacheTTL time.Duration `envconfig:"STOREFRONT_CATALOG_CACHE_TTL" default:"30s"`
}

type VoucherConfig struct {
	BaseURL string        `envconfig:"STOREFRONT_VOUCHER_BASE_URL"`
	Timeout time.Duration `envconfig:"STOREFRONT_VOUCHER_TIMEOUT" default:"10s"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// EnsureDSN backfills DSN from the discrete host/user settings when it was
// not provided directly.
func (d *DBConfig) EnsureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Driver == "sqlite" {
		return fmt.Errorf("database DSN is required for sqlite")
	}
	if d.LegacyHost == "" || d.LegacyUser == "" || d.LegacyName == "" {
		return fmt.Errorf("database DSN or host/user/name are required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.LegacyHost, d.LegacyPort, d.LegacyUser, d.LegacyPassword, d.LegacyName, d.LegacySSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis connection is configured at all.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}
