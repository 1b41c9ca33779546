package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=console json"`

	StorageDriver  string        `mapstructure:"storage_driver" yaml:"storage_driver" validate:"oneof=sqlite mongo"`
	DatabasePath   string        `mapstructure:"database_path" yaml:"database_path" validate:"required_if=StorageDriver sqlite"`
	MongoURI       string        `mapstructure:"mongo_uri" yaml:"mongo_uri" validate:"required_if=StorageDriver mongo"`
	MongoDatabase  string        `mapstructure:"mongo_database" yaml:"mongo_database" validate:"required_if=StorageDriver mongo"`
	StorageTimeout time.Duration `mapstructure:"storage_timeout" yaml:"storage_timeout" validate:"gte=0"`
	HistoryLimit   int           `mapstructure:"history_limit" yaml:"history_limit" validate:"gte=0,lte=10000"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl" validate:"gt=0"`

	UploadDir       string `mapstructure:"upload_dir" yaml:"upload_dir" validate:"required"`
	MaxUploadBytes  int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes" validate:"gte=0"`
	StaticDir       string `mapstructure:"static_dir" yaml:"static_dir"`
	MaxMessageBytes int64  `mapstructure:"max_message_bytes" yaml:"max_message_bytes" validate:"gte=0"`

	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute" validate:"gte=0"`
	RedisAddr          string `mapstructure:"redis_addr" yaml:"redis_addr"`

	NATSURL           string `mapstructure:"nats_url" yaml:"nats_url"`
	NATSSubjectPrefix string `mapstructure:"nats_subject_prefix" yaml:"nats_subject_prefix"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":3000",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		StorageDriver:      "sqlite",
		DatabasePath:       "famchat.db",
		MongoDatabase:      "famchat",
		StorageTimeout:     5 * time.Second,
		HistoryLimit:       100,
		JWTSecret:          "change-me-in-production",
		JWTIssuer:          "famchat",
		JWTAudience:        "famchat",
		JWTTTL:             7 * 24 * time.Hour,
		UploadDir:          "uploads",
		MaxUploadBytes:     50 << 20,
		MaxMessageBytes:    1 << 20,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 60,
		NATSSubjectPrefix:  "famchat",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the fields exposed as command-line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.StorageDriver != "" {
		c.StorageDriver = other.StorageDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
