package domain

import (
	"time"
)

// Config represents the main application configuration.
type Config struct {
	Environment string            `mapstructure:"environment"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Inference   InferenceConfig   `mapstructure:"inference"`
	Auth        AuthConfig        `mapstructure:"auth"`
	YouTube     YouTubeConfig     `mapstructure:"youtube"`
	Translation TranslationConfig `mapstructure:"translation"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig represents the primary PostgreSQL connection.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents Redis configuration.
type CacheConfig struct {
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	VideoTTL   time.Duration `mapstructure:"video_ttl"`
}

// StorageConfig represents the private object-storage service holding
// injury image blobs.
type StorageConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	ServiceKey string        `mapstructure:"service_key"`
	Bucket     string        `mapstructure:"bucket"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// InferenceConfig represents the multimodal inference endpoint. The
// timeout is deliberately long: the serverless endpoint loads multi-GB
// models on its first request after an idle period.
type InferenceConfig struct {
	EndpointURL string        `mapstructure:"endpoint_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// LegacySingleImage controls whether the outbound payload carries the
	// older single image_base64 field alongside images_base64. Older
	// deployments of the endpoint read only the singular field.
	LegacySingleImage bool `mapstructure:"legacy_single_image"`
	// ModelVersion is stamped on every persisted analysis row.
	ModelVersion string `mapstructure:"model_version"`
}

// AuthConfig represents JWT verification settings. JWKSBaseURL is the
// identity provider base; the JWKS document is served under
// /auth/v1/.well-known/jwks.json.
type AuthConfig struct {
	JWKSBaseURL string        `mapstructure:"jwks_base_url"`
	KeyCacheTTL time.Duration `mapstructure:"key_cache_ttl"`
}

// YouTubeConfig represents the YouTube Data API client settings.
type YouTubeConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      int           `mapstructure:"rate_limit"`
	CandidateCount int           `mapstructure:"candidate_count"`
}

// TranslationConfig represents the serverless NLLB translation endpoint.
type TranslationConfig struct {
	EndpointURL string        `mapstructure:"endpoint_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ProgressConfig selects and configures the progress store backend.
type ProgressConfig struct {
	// Backend is "postgres" or "sqlite".
	Backend     string `mapstructure:"backend"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
