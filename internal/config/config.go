package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/rehabflow-backend/internal/domain"
)

// Manager loads and validates application configuration using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/rehabflow-backend/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("REHABFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal configuration into struct
	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	viper.SetDefault("environment", "development")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	// The request and write timeouts must exceed the inference timeout or
	// every cold-start analysis would be cut off mid-flight.
	viper.SetDefault("server.request_timeout", "150s")
	viper.SetDefault("server.write_timeout", "180s")
	viper.SetDefault("server.allowed_origins", []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
		"http://rehabflow-frontend:3000",
	})

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "rehabflow")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "./migrations")

	// Cache defaults
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.video_ttl", "6h")

	// Storage defaults
	viper.SetDefault("storage.base_url", "")
	viper.SetDefault("storage.service_key", "")
	viper.SetDefault("storage.bucket", "injury-images")
	viper.SetDefault("storage.timeout", "30s")

	// Inference defaults. The 120s timeout covers the endpoint's model
	// cold start after idle periods.
	viper.SetDefault("inference.endpoint_url", "")
	viper.SetDefault("inference.timeout", "120s")
	viper.SetDefault("inference.legacy_single_image", true)
	viper.SetDefault("inference.model_version",
		"blip:Salesforce/blip-image-captioning-large+medgemma:google/medgemma-4b-it")

	// Auth defaults
	viper.SetDefault("auth.jwks_base_url", "")
	viper.SetDefault("auth.key_cache_ttl", "1h")

	// YouTube defaults
	viper.SetDefault("youtube.api_key", "")
	viper.SetDefault("youtube.base_url", "https://www.googleapis.com/youtube/v3")
	viper.SetDefault("youtube.timeout", "10s")
	viper.SetDefault("youtube.rate_limit", 10)
	viper.SetDefault("youtube.candidate_count", 10)

	// Translation defaults
	viper.SetDefault("translation.endpoint_url", "")
	viper.SetDefault("translation.timeout", "60s")

	// Progress store defaults
	viper.SetDefault("progress.backend", "postgres")
	viper.SetDefault("progress.postgres_dsn", "")
	viper.SetDefault("progress.sqlite_path", "./data/progress.db")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Validate database configuration
	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	// Validate cache configuration
	if config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required")
	}

	// The inference endpoint is the one external service the product
	// cannot run without.
	if config.Inference.EndpointURL == "" {
		return fmt.Errorf("inference endpoint URL is required")
	}
	if config.Inference.Timeout <= 0 {
		return fmt.Errorf("inference timeout must be positive")
	}

	switch config.Progress.Backend {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid progress backend: %s", config.Progress.Backend)
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
