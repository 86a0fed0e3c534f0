package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ModeSandbox = "sandbox"
	ModeLive    = "live"
	// ModeMock serves orders from an in-memory processor for local runs.
	ModeMock = "mock"

	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"

	LedgerNone     = "none"
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	PayPal        PayPalConfig        `mapstructure:"paypal"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	PublicURL          string        `mapstructure:"public_url"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	EnableDiagnostics  bool          `mapstructure:"enable_diagnostics"`
	CORS               CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// PayPalConfig holds the processor credentials and order defaults. It is the
// only place credentials come from; nothing below the bootstrap reads the
// environment.
type PayPalConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Mode         string        `mapstructure:"mode"`
	BaseURL      string        `mapstructure:"base_url"`
	Currency     string        `mapstructure:"currency"`
	BrandName    string        `mapstructure:"brand_name"`
	ReturnURL    string        `mapstructure:"return_url"`
	CancelURL    string        `mapstructure:"cancel_url"`
	LandingPage  string        `mapstructure:"landing_page"`
	UserAction   string        `mapstructure:"user_action"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// HasCredentials reports whether both halves of the client credentials are set.
func (c *PayPalConfig) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max_len"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnectRetries  uint          `mapstructure:"connect_retries"`
	// AutoMigrate applies pending ledger migrations when the API starts.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL               string        `mapstructure:"url"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    uint          `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// BreakerConfig tunes the circuit breaker in front of the processor.
type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// legacyEnv maps config keys to the plain variable names deployments already use.
var legacyEnv = map[string][]string{
	"paypal.client_id":     {"PAYPAL_CLIENT_ID"},
	"paypal.client_secret": {"PAYPAL_CLIENT_SECRET", "PAYPAL_SECRET"},
	"paypal.base_url":      {"PAYPAL_BASE_URL"},
	"paypal.mode":          {"PAYPAL_MODE"},
	"server.port":          {"PORT"},
	"server.public_url":    {"PUBLIC_URL"},
	"database.url":         {"DATABASE_URL"},
	"redis.url":            {"REDIS_URL"},
}

const envPrefix = "PAYPAL_RELAY"

// Load reads a .env file if present, then configuration from the environment
// and an optional config.yaml.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paypal-relay")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// resolve fills values derived from other settings.
func (c *Config) resolve() {
	c.PayPal.Mode = strings.ToLower(strings.TrimSpace(c.PayPal.Mode))
	if c.PayPal.BaseURL == "" {
		if c.PayPal.Mode == ModeLive {
			c.PayPal.BaseURL = LiveBaseURL
		} else {
			c.PayPal.BaseURL = SandboxBaseURL
		}
	}
	c.PayPal.BaseURL = strings.TrimRight(c.PayPal.BaseURL, "/")
	c.PayPal.Currency = strings.ToUpper(c.PayPal.Currency)

	public := strings.TrimRight(c.Server.PublicURL, "/")
	if c.PayPal.ReturnURL == "" && public != "" {
		c.PayPal.ReturnURL = public + "/success"
	}
	if c.PayPal.CancelURL == "" && public != "" {
		c.PayPal.CancelURL = public + "/cancel"
	}
	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_per_minute must not be negative"))
	}

	switch c.PayPal.Mode {
	case ModeSandbox, ModeLive, ModeMock:
	default:
		errs = append(errs, fmt.Errorf("paypal.mode must be one of %s, %s, %s, got %q", ModeSandbox, ModeLive, ModeMock, c.PayPal.Mode))
	}
	if u, err := url.Parse(c.PayPal.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("paypal.base_url must be an absolute URL, got %q", c.PayPal.BaseURL))
	}
	if len(c.PayPal.Currency) != 3 {
		errs = append(errs, fmt.Errorf("paypal.currency must be a 3-letter code, got %q", c.PayPal.Currency))
	}
	if c.PayPal.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("paypal.timeout must be positive"))
	}

	switch c.Ledger.Driver {
	case LedgerNone:
	case LedgerPostgres:
		if c.Database.URL == "" && c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.url or database.host is required for the postgres ledger"))
		}
		if c.Database.URL == "" && c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	case LedgerRedis:
		if c.Redis.URL == "" && c.Redis.Port <= 0 {
			errs = append(errs, fmt.Errorf("redis.port must be positive"))
		}
		if c.Ledger.Stream == "" {
			errs = append(errs, fmt.Errorf("ledger.stream is required for the redis ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.driver must be one of none, postgres, redis, got %q", c.Ledger.Driver))
	}

	if c.Breaker.FailureThreshold == 0 {
		errs = append(errs, fmt.Errorf("breaker.failure_threshold must be positive"))
	}
	if c.Breaker.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("breaker.timeout must be positive"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "45s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "40s")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.rate_limit_per_minute", 60)
	v.SetDefault("server.enable_diagnostics", true)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// PayPal defaults
	v.SetDefault("paypal.client_id", "")
	v.SetDefault("paypal.client_secret", "")
	v.SetDefault("paypal.mode", ModeSandbox)
	v.SetDefault("paypal.base_url", "")
	v.SetDefault("paypal.currency", "PHP")
	v.SetDefault("paypal.brand_name", "")
	v.SetDefault("paypal.return_url", "")
	v.SetDefault("paypal.cancel_url", "")
	v.SetDefault("paypal.landing_page", "LOGIN")
	v.SetDefault("paypal.user_action", "PAY_NOW")
	v.SetDefault("paypal.timeout", "30s")

	// Ledger defaults
	v.SetDefault("ledger.driver", LedgerNone)
	v.SetDefault("ledger.stream", "ledger:payments")
	v.SetDefault("ledger.max_len", 0)

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "relay")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "relay")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.auto_migrate", false)

	// Redis defaults
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Breaker defaults
	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.failure_threshold", 5)

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)
}

// DatabaseDSN returns DATABASE_URL when set, otherwise a key/value DSN.
func (c *DatabaseConfig) DatabaseDSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL returns a postgres:// URL suitable for golang-migrate.
func (c *DatabaseConfig) MigrationURL() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
