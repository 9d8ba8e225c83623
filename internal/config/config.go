package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// Real-time pipeline tuning.
	MaxMessageBytes int           `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	OutboxSize      int           `mapstructure:"outbox_size" yaml:"outbox_size"`
	DedupTTL        time.Duration `mapstructure:"dedup_ttl" yaml:"dedup_ttl"`
	TypingTTL       time.Duration `mapstructure:"typing_ttl" yaml:"typing_ttl"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RedisAddr enables the cross-instance fan-out bridge when non-empty.
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`

	// Capabilities enables optional collaborators at startup
	// (recognized: "push", "search", "bots").
	Capabilities []string `mapstructure:"capabilities" yaml:"capabilities"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "bonfire.db",
		LogLevel:          "info",
		LogFormat:         "console",
		JWTSecret:         "",
		JWTIssuer:         "bonfire",
		JWTAudience:       "bonfire-clients",
		MaxMessageBytes:   4096,
		OutboxSize:        64,
		DedupTTL:          5 * time.Minute,
		TypingTTL:         6 * time.Second,
		SweepInterval:     2 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
}
