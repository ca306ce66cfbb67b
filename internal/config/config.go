package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	Identifiers IdentifierConfig  `mapstructure:"identifiers"`
	Inventory   InventoryConfig   `mapstructure:"inventory"`
	Lookup      LookupConfig      `mapstructure:"lookup"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	CORS        CORSConfig        `mapstructure:"cors"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	Log         LogConfig         `mapstructure:"log"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	Mode           string        `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type StorageConfig struct {
	// Driver is postgres or memory.
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Channel      string        `mapstructure:"channel"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	// ClaimLease is how long a claimed event stays hidden from other workers.
	ClaimLease    time.Duration `mapstructure:"claim_lease"`
	Retention     time.Duration `mapstructure:"retention"`
}

type IdentifierConfig struct {
	Prefix string `mapstructure:"prefix"`
	// Scope is monthly or global.
	Scope string `mapstructure:"scope"`
}

type InventoryConfig struct {
	LowStockThreshold int `mapstructure:"low_stock_threshold"`
}

type LookupConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type AuthConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Secret      string        `mapstructure:"secret"`
	Issuer      string        `mapstructure:"issuer"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
	Users       []StaffUser   `mapstructure:"users"`
}

// StaffUser is a console login. PasswordHash is a bcrypt hash.
type StaffUser struct {
	Username     string `mapstructure:"username"`
	Name         string `mapstructure:"name"`
	Role         string `mapstructure:"role"`
	PasswordHash string `mapstructure:"password_hash"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is console or json.
	Format string `mapstructure:"format"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	Namespace         string `mapstructure:"namespace"`
}

// Secrets are read from the environment only and override the file.
type Secrets struct {
	DBPassword   string `envconfig:"DB_PASSWORD"`
	JWTSecret    string `envconfig:"JWT_SECRET"`
	RedisURL     string `envconfig:"REDIS_URL"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
}

const envPrefix = "EHR"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "kmc_ehr")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "kmc-ehr-events")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Minute)
	v.SetDefault("outbox.claim_lease", 5*time.Minute)
	v.SetDefault("outbox.retention", 7*24*time.Hour)

	v.SetDefault("identifiers.prefix", "KMC")
	v.SetDefault("identifiers.scope", "monthly")
	v.SetDefault("inventory.low_stock_threshold", 10)
	v.SetDefault("lookup.cache_ttl", 10*time.Minute)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "kmc-ehr")
	v.SetDefault("auth.token_expiry", 12*time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"})

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "billing@kmc.local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.namespace", "kmc_ehr")
}

// LoadConfig reads config.yml from the usual locations (or path, when set),
// applies EHR_* environment overrides and then the secrets.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var secrets Secrets
	if err := envconfig.Process(envPrefix, &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	cfg.applySecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s Secrets) {
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	if s.JWTSecret != "" {
		c.Auth.Secret = s.JWTSecret
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
	if s.SMTPPassword != "" {
		c.SMTP.Password = s.SMTPPassword
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Identifiers.Scope {
	case "monthly", "global":
	default:
		return fmt.Errorf("unknown identifier scope %q", c.Identifiers.Scope)
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return errors.New("auth is enabled but no JWT secret is set")
	}
	if c.Inventory.LowStockThreshold < 0 {
		return errors.New("inventory.low_stock_threshold cannot be negative")
	}
	return nil
}
