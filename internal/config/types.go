package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Registry     RegistryConfig     `yaml:"registry" mapstructure:"registry"`
	Patterns     PatternsConfig     `yaml:"patterns" mapstructure:"patterns"`
	Redaction    RedactionConfig    `yaml:"redaction" mapstructure:"redaction"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	WebSocket    WebSocketConfig    `yaml:"websocket" mapstructure:"websocket"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// RegistryConfig contains alias registry persistence configuration
type RegistryConfig struct {
	MappingFile string         `yaml:"mapping_file" mapstructure:"mapping_file"`
	Database    DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// DatabaseConfig contains PostgreSQL registry store configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// PatternsConfig contains structured-identifier detector configuration.
// The catalog is loaded once at startup and treated as immutable.
type PatternsConfig struct {
	Enabled []string      `yaml:"enabled" mapstructure:"enabled"`
	Custom  []PatternRule `yaml:"custom" mapstructure:"custom"`
}

// PatternRule defines a single custom pattern rule
type PatternRule struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Expr        string `yaml:"expr" mapstructure:"expr"`
	Placeholder string `yaml:"placeholder" mapstructure:"placeholder"`
	Scope       string `yaml:"scope" mapstructure:"scope"` // document or global
}

// RedactionConfig contains replacement engine configuration
type RedactionConfig struct {
	Technique    string `yaml:"technique" mapstructure:"technique"` // consistent, random, pattern-only, hybrid
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	HybridRandom bool   `yaml:"hybrid_random" mapstructure:"hybrid_random"`
}

// VerificationConfig contains leak verifier configuration
type VerificationConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	MinPartialLength int  `yaml:"min_partial_length" mapstructure:"min_partial_length"`
	CheckPatterns    bool `yaml:"check_patterns" mapstructure:"check_patterns"`
}

// CacheConfig contains Redis redaction cache configuration
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Path     string `yaml:"path" mapstructure:"path"`
		MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
		Compress bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	Events  struct {
		BroadcastRedactions    bool `yaml:"broadcast_redactions" mapstructure:"broadcast_redactions"`
		BroadcastVerifications bool `yaml:"broadcast_verifications" mapstructure:"broadcast_verifications"`
		BroadcastRegistry      bool `yaml:"broadcast_registry" mapstructure:"broadcast_registry"`
		BroadcastConnections   bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
		BroadcastSystem        bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
	} `yaml:"events" mapstructure:"events"`
}

// RateLimitConfig contains per-client request rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Registry: RegistryConfig{
			MappingFile: "mappings/registry.json",
			Database: DatabaseConfig{
				Enabled:         false,
				DatabaseURL:     "postgres://localhost:5432/textveil?sslmode=disable",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
		},
		Patterns: PatternsConfig{
			Enabled: []string{"all"},
		},
		Redaction: RedactionConfig{
			Technique:    "hybrid",
			Workers:      4,
			HybridRandom: false,
		},
		Verification: VerificationConfig{
			Enabled:          true,
			MinPartialLength: 4,
			CheckPatterns:    true,
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     time.Hour,
			KeyPrefix:      "textveil",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Path:    "/ws",
		},
		RateLimit: RateLimitConfig{
			Enabled:        false,
			RequestsPerSec: 10,
			Burst:          20,
		},
	}

	cfg.Logging.File.Path = "logs/veild.log"
	cfg.Logging.File.MaxSize = 100 // MB
	cfg.Logging.File.MaxAge = 30   // days
	cfg.Logging.File.Compress = true

	cfg.WebSocket.Events.BroadcastRedactions = true
	cfg.WebSocket.Events.BroadcastVerifications = true
	cfg.WebSocket.Events.BroadcastRegistry = true
	cfg.WebSocket.Events.BroadcastConnections = true
	cfg.WebSocket.Events.BroadcastSystem = true

	return cfg
}
