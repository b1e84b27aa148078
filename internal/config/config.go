// Package config provides configuration management for the stories server.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	CORS    CORSConfig    `mapstructure:"cors"`

	// BaseURL is the public origin used to build story public_uri values.
	BaseURL string `mapstructure:"base_url"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds object store settings.
type StorageConfig struct {
	// Backend is "s3" or "memory". The memory backend is for local development only.
	Backend string          `mapstructure:"backend"`
	S3      S3StorageConfig `mapstructure:"s3"`
}

// S3StorageConfig holds S3-compatible endpoint settings.
type S3StorageConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	UsePathStyle    bool          `mapstructure:"use_path_style"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds identity provider settings.
type AuthConfig struct {
	// UserInfoURL is the OIDC userinfo endpoint used to validate bearer tokens.
	UserInfoURL string `mapstructure:"userinfo_url"`

	// Timeout bounds a single userinfo call.
	Timeout time.Duration `mapstructure:"timeout"`

	// IdentityCacheTTL caches validated identities by token fingerprint. Zero disables caching.
	IdentityCacheTTL time.Duration `mapstructure:"identity_cache_ttl"`
}

// LimitsConfig holds per-user quotas and upload ceilings.
type LimitsConfig struct {
	MaxSessionsPerUser int `mapstructure:"max_sessions_per_user"`
	MaxStoriesPerUser  int `mapstructure:"max_stories_per_user"`
	MaxUploadSizeMB    int `mapstructure:"max_upload_size_mb"`

	// InflateRatio bounds the decompressed size of a session upload relative to the upload limit.
	InflateRatio int `mapstructure:"inflate_ratio"`
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c LimitsConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

// CacheConfig holds identity cache settings.
type CacheConfig struct {
	// Backend is "none", "memory" or "redis".
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CORSConfig holds cross-origin settings for the web client.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// FrontendURL is appended to AllowedOrigins when set.
	FrontendURL string `mapstructure:"frontend_url"`
}

// Origins returns the effective allowed origins.
func (c CORSConfig) Origins() []string {
	origins := make([]string, 0, len(c.AllowedOrigins)+1)
	origins = append(origins, c.AllowedOrigins...)
	if c.FrontendURL != "" {
		origins = append(origins, strings.TrimRight(c.FrontendURL, "/"))
	}
	return origins
}

// legacyEnv maps config keys to the environment variable names earlier
// deployments of the service used.
var legacyEnv = map[string]string{
	"storage.s3.endpoint":          "MINIO_ENDPOINT",
	"storage.s3.bucket":            "MINIO_BUCKET",
	"storage.s3.access_key_id":     "MINIO_ACCESS_KEY",
	"storage.s3.secret_access_key": "MINIO_SECRET_KEY",
	"storage.s3.use_ssl":           "MINIO_SECURE",
	"auth.userinfo_url":            "OIDC_USERINFO_URL",
	"base_url":                     "BASE_URL",
	"limits.max_sessions_per_user": "MAX_SESSIONS_PER_USER",
	"limits.max_stories_per_user":  "MAX_STORIES_PER_USER",
	"limits.max_upload_size_mb":    "MAX_UPLOAD_SIZE_MB",
	"cors.frontend_url":            "FRONTEND_URL",
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with STORIES_ and use _ as separator;
// the unprefixed legacy names in legacyEnv are honoured as well.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("STORIES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		prefixed := "STORIES_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("error binding env %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/stories")
	}

	// Config file is optional; defaults and env vars are enough to run.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Storage defaults
	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.s3.endpoint", "localhost:9000")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "root")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_ssl", false)
	v.SetDefault("storage.s3.use_path_style", true)
	v.SetDefault("storage.s3.timeout", 30*time.Second)

	// Auth defaults
	v.SetDefault("auth.userinfo_url", "https://login.aai.lifescience-ri.eu/oidc/userinfo")
	v.SetDefault("auth.timeout", 5*time.Second)
	v.SetDefault("auth.identity_cache_ttl", time.Duration(0))

	// Limits
	v.SetDefault("limits.max_sessions_per_user", 100)
	v.SetDefault("limits.max_stories_per_user", 100)
	v.SetDefault("limits.max_upload_size_mb", 50)
	v.SetDefault("limits.inflate_ratio", 20)

	// Cache defaults
	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 10)
	v.SetDefault("cache.redis.dial_timeout", 5*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "https://stories.molstar.org"})
	v.SetDefault("cors.frontend_url", "")

	v.SetDefault("base_url", "https://stories.molstar.org")
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Storage.Backend {
	case "s3":
		if c.Storage.S3.Endpoint == "" {
			return fmt.Errorf("storage.s3.endpoint is required for s3 backend")
		}
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for s3 backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be 's3' or 'memory'")
	}

	if c.Auth.UserInfoURL == "" {
		return fmt.Errorf("auth.userinfo_url is required")
	}
	if c.Auth.Timeout <= 0 {
		return fmt.Errorf("auth.timeout must be positive")
	}
	if c.Auth.IdentityCacheTTL < 0 {
		return fmt.Errorf("auth.identity_cache_ttl must not be negative")
	}

	if c.Limits.MaxSessionsPerUser < 0 || c.Limits.MaxStoriesPerUser < 0 {
		return fmt.Errorf("limits.max_*_per_user must not be negative")
	}
	if c.Limits.MaxUploadSizeMB < 1 {
		return fmt.Errorf("limits.max_upload_size_mb must be at least 1")
	}
	if c.Limits.InflateRatio < 1 {
		return fmt.Errorf("limits.inflate_ratio must be at least 1")
	}

	validCaches := map[string]bool{"none": true, "memory": true, "redis": true}
	if !validCaches[c.Cache.Backend] {
		return fmt.Errorf("cache.backend must be 'none', 'memory' or 'redis'")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
