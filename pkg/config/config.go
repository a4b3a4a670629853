package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// as well as integer nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Authz         AuthzConfig         `yaml:"authz"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Audit         AuditConfig         `yaml:"audit"`
	Uploads       UploadsConfig       `yaml:"uploads"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// Health/metrics server runs on a separate port for k8s probes.
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration. Redis is optional: with no address
// configured the service runs without the distributed decision cache and
// falls back to in-memory rate limiting behavior.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AuthzConfig holds authorization evaluator settings
type AuthzConfig struct {
	CacheEnabled bool          `yaml:"cache_enabled"`
	CacheTTL     Duration `yaml:"cache_ttl"`
	CacheSize    int           `yaml:"cache_size"`
}

// RateLimitConfig holds request rate limit settings
type RateLimitConfig struct {
	Enabled            bool          `yaml:"enabled"`
	AnonymousPerWindow int           `yaml:"anonymous_per_window"`
	UserPerWindow      int           `yaml:"user_per_window"`
	Window             Duration `yaml:"window"`
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// DBEnabled writes audit events to the audit_logs table.
	DBEnabled bool `yaml:"db_enabled"`
	// FilePath, when set, also appends NDJSON events to this file.
	FilePath    string `yaml:"file_path"`
	FileMaxSize int64  `yaml:"file_max_size"`
	// RetentionDays controls how far back the janitor keeps db events.
	RetentionDays int `yaml:"retention_days"`
}

// UploadsConfig holds attachment storage settings
type UploadsConfig struct {
	// Backend is either "filesystem" or "s3".
	Backend        string `yaml:"backend"`
	FilesystemRoot string `yaml:"filesystem_root"`

	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// ObservabilityConfig holds logging, metrics and tracing settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// DefaultConfig returns the configuration defaults before file and
// environment overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(5 * time.Minute),
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 10,
		},
		Authz: AuthzConfig{
			CacheEnabled: true,
			CacheTTL:     Duration(30 * time.Second),
			CacheSize:    4096,
		},
		RateLimit: RateLimitConfig{
			Enabled:            true,
			AnonymousPerWindow: 60,
			UserPerWindow:      600,
			Window:             Duration(time.Minute),
		},
		Audit: AuditConfig{
			DBEnabled:     true,
			FileMaxSize:   100 * 1024 * 1024,
			RetentionDays: 90,
		},
		Uploads: UploadsConfig{
			Backend:        "filesystem",
			FilesystemRoot: "/var/lib/platemill/uploads",
			S3Region:       "us-east-1",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			MetricsEnabled:     true,
			OTelEnabled:        false,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "platemill",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds configuration in three layers: defaults, an optional
// YAML file named by PLATEMILL_CONFIG_FILE, and PLATEMILL_* environment
// variables. Later layers win.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("PLATEMILL_CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	// Server
	cfg.Server.Host = getEnv("PLATEMILL_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("PLATEMILL_PORT", cfg.Server.Port)
	cfg.Server.HealthPort = getEnv("PLATEMILL_HEALTH_PORT", cfg.Server.HealthPort)
	cfg.Server.ReadTimeout = getEnvDuration("PLATEMILL_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("PLATEMILL_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("PLATEMILL_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("PLATEMILL_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	// Database
	cfg.Database.URL = getEnv("PLATEMILL_POSTGRES_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = getEnvInt("PLATEMILL_POSTGRES_MAX_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("PLATEMILL_POSTGRES_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("PLATEMILL_POSTGRES_CONN_LIFETIME", cfg.Database.ConnMaxLifetime)

	// Redis
	cfg.Redis.Addr = getEnv("PLATEMILL_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("PLATEMILL_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("PLATEMILL_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getEnvInt("PLATEMILL_REDIS_POOL_SIZE", cfg.Redis.PoolSize)

	// Authz
	cfg.Authz.CacheEnabled = getEnvBool("PLATEMILL_AUTHZ_CACHE_ENABLED", cfg.Authz.CacheEnabled)
	cfg.Authz.CacheTTL = getEnvDuration("PLATEMILL_AUTHZ_CACHE_TTL", cfg.Authz.CacheTTL)
	cfg.Authz.CacheSize = getEnvInt("PLATEMILL_AUTHZ_CACHE_SIZE", cfg.Authz.CacheSize)

	// Rate limiting
	cfg.RateLimit.Enabled = getEnvBool("PLATEMILL_RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.AnonymousPerWindow = getEnvInt("PLATEMILL_RATE_LIMIT_ANONYMOUS", cfg.RateLimit.AnonymousPerWindow)
	cfg.RateLimit.UserPerWindow = getEnvInt("PLATEMILL_RATE_LIMIT_USER", cfg.RateLimit.UserPerWindow)
	cfg.RateLimit.Window = getEnvDuration("PLATEMILL_RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	// Audit
	cfg.Audit.DBEnabled = getEnvBool("PLATEMILL_AUDIT_DB_ENABLED", cfg.Audit.DBEnabled)
	cfg.Audit.FilePath = getEnv("PLATEMILL_AUDIT_FILE", cfg.Audit.FilePath)
	cfg.Audit.FileMaxSize = getEnvInt64("PLATEMILL_AUDIT_FILE_MAX_SIZE", cfg.Audit.FileMaxSize)
	cfg.Audit.RetentionDays = getEnvInt("PLATEMILL_AUDIT_RETENTION_DAYS", cfg.Audit.RetentionDays)

	// Uploads
	cfg.Uploads.Backend = getEnv("PLATEMILL_UPLOADS_BACKEND", cfg.Uploads.Backend)
	cfg.Uploads.FilesystemRoot = getEnv("PLATEMILL_UPLOADS_ROOT", cfg.Uploads.FilesystemRoot)
	cfg.Uploads.S3Endpoint = getEnv("PLATEMILL_S3_ENDPOINT", cfg.Uploads.S3Endpoint)
	cfg.Uploads.S3Region = getEnv("PLATEMILL_S3_REGION", cfg.Uploads.S3Region)
	cfg.Uploads.S3Bucket = getEnv("PLATEMILL_S3_BUCKET", cfg.Uploads.S3Bucket)
	cfg.Uploads.S3AccessKey = getEnv("PLATEMILL_S3_ACCESS_KEY", cfg.Uploads.S3AccessKey)
	cfg.Uploads.S3SecretKey = getEnv("PLATEMILL_S3_SECRET_KEY", cfg.Uploads.S3SecretKey)
	cfg.Uploads.S3UsePathStyle = getEnvBool("PLATEMILL_S3_USE_PATH_STYLE", cfg.Uploads.S3UsePathStyle)

	// Observability
	cfg.Observability.LogLevel = getEnv("PLATEMILL_LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = getEnv("PLATEMILL_LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.MetricsEnabled = getEnvBool("PLATEMILL_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.OTelEnabled = getEnvBool("PLATEMILL_OTEL_ENABLED", cfg.Observability.OTelEnabled)
	cfg.Observability.OTelEndpoint = getEnv("PLATEMILL_OTEL_ENDPOINT", cfg.Observability.OTelEndpoint)
	cfg.Observability.OTelServiceName = getEnv("PLATEMILL_OTEL_SERVICE_NAME", cfg.Observability.OTelServiceName)
	cfg.Observability.OTelServiceVersion = getEnv("PLATEMILL_OTEL_SERVICE_VERSION", cfg.Observability.OTelServiceVersion)
	cfg.Observability.OTelInsecure = getEnvBool("PLATEMILL_OTEL_INSECURE", cfg.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Authz.CacheEnabled {
		if c.Authz.CacheTTL <= 0 {
			return fmt.Errorf("authz cache TTL must be positive")
		}
		if c.Authz.CacheSize <= 0 {
			return fmt.Errorf("authz cache size must be positive")
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	switch c.Uploads.Backend {
	case "filesystem":
		if c.Uploads.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem uploads")
		}
	case "s3":
		if c.Uploads.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 uploads")
		}
	default:
		return fmt.Errorf("invalid uploads backend: %s (must be filesystem or s3)", c.Uploads.Backend)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return Duration(duration)
		}
	}
	return defaultValue
}
