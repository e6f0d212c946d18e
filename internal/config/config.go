// Package config loads service configuration from defaults, an optional
// YAML file, an optional environment file, and environment variables, in
// that order of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config contains all configuration for the phalerum API service.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Compiler CompilerConfig `yaml:"compiler"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" default:"json"`
	Debug  bool   `yaml:"debug" env:"DEBUG" default:"false"`
}

// ConfigureZerolog applies the configured global log level.
func (c *LogConfig) ConfigureZerolog() {
	level := zerolog.InfoLevel
	if c.Debug {
		level = zerolog.DebugLevel
	} else {
		switch strings.ToLower(c.Level) {
		case "trace":
			level = zerolog.TraceLevel
		case "debug":
			level = zerolog.DebugLevel
		case "info":
			level = zerolog.InfoLevel
		case "warn", "warning":
			level = zerolog.WarnLevel
		case "error":
			level = zerolog.ErrorLevel
		case "fatal":
			level = zerolog.FatalLevel
		case "panic":
			level = zerolog.PanicLevel
		}
	}
	zerolog.SetGlobalLevel(level)
}

// ServerConfig configures the HTTP listener and the advertised API URL.
type ServerConfig struct {
	Host    string `yaml:"host" env:"PHALERUM_HOST" default:"0.0.0.0"`
	Port    int    `yaml:"port" env:"PHALERUM_PORT" default:"8080"`
	BaseURL string `yaml:"base_url" env:"BASE_URL" default:"http://localhost:8080"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	DSN   string `yaml:"dsn" env:"DATABASE_URL" default:"file:./phalerum.db"`
	Debug bool   `yaml:"debug" env:"DATABASE_DEBUG" default:"false"`
}

// AuthConfig configures credential handling and session issuance. The
// signing key pair and the at-rest encryption key are loaded once at
// startup and passed by reference; they are never process globals.
type AuthConfig struct {
	PrivateKeyFile string        `yaml:"private_key_file" env:"JWT_PRIVATE_KEY_FILE" default:"certificates/key.pem"`
	PublicKeyFile  string        `yaml:"public_key_file" env:"JWT_PUBLIC_KEY_FILE" default:"certificates/public.pem"`
	EncryptionKey  string        `yaml:"-" env:"ENC_KEY"`
	SessionTTL     time.Duration `yaml:"session_ttl" default:"2h"`
	FailureDelay   time.Duration `yaml:"failure_delay" default:"80ms"`
	TOTPIssuer     string        `yaml:"totp_issuer" default:"phalerum"`
}

// CompilerConfig configures the agent build pipeline.
type CompilerConfig struct {
	SourceDir string        `yaml:"source_dir" default:"agents-linux"`
	OutputDir string        `yaml:"output_dir" default:"compiling"`
	Workers   int           `yaml:"workers" default:"2"`
	Timeout   time.Duration `yaml:"timeout" default:"2m"`
}

// Load reads configuration from the given files and the environment.
func Load(configFile, envFile string) (*Config, error) {
	cfg := &Config{}

	loader := NewLoader(LoaderOptions{
		ConfigFile:      configFile,
		EnvironmentFile: envFile,
		ServiceName:     "phalerum",
	})

	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks required and security-sensitive settings.
func (c *Config) Validate() error {
	if c.Auth.EncryptionKey == "" {
		return fmt.Errorf("ENC_KEY environment variable is required")
	}
	if len(c.Auth.EncryptionKey) != 64 {
		return fmt.Errorf("ENC_KEY must be 64 hex characters (32 bytes)")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Compiler.Workers < 1 {
		return fmt.Errorf("compiler workers must be at least 1")
	}
	return nil
}

// ListenAddress returns the address the HTTP server binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
