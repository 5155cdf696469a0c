// Package config provides configuration management for voicectl.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kandev/voicectl/internal/common/logger"
)

// Config holds all configuration sections for voicectl.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"readTimeout"`     // in seconds
	WriteTimeout    int    `mapstructure:"writeTimeout"`    // in seconds
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"` // in seconds
}

// EngineConfig holds the realtime engine identity every worker joins with.
type EngineConfig struct {
	AppID   string `mapstructure:"appId"`
	AppCert string `mapstructure:"appCert"`
}

// AgentConfig holds worker process settings.
type AgentConfig struct {
	// BinaryPath is the executable started for each worker. Empty means the
	// running voicectl binary, re-executed with the "agent" sub-command.
	BinaryPath string `mapstructure:"binaryPath"`

	// ShutdownTimeout bounds how long controller shutdown waits for one worker
	// to exit after SIGKILL, in seconds. 0 waits indefinitely.
	ShutdownTimeout int `mapstructure:"shutdownTimeout"`

	// InstructionsFile is an optional YAML file of language -> system instruction.
	InstructionsFile string `mapstructure:"instructionsFile"`

	// WritePCM enables the PCM capture sink inside workers.
	WritePCM bool `mapstructure:"writePcm"`

	// PCMDir is where workers write PCM captures.
	PCMDir string `mapstructure:"pcmDir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the in-memory bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// DatabaseConfig selects the optional session history store.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // "", sqlite, postgres
	Path     string `mapstructure:"path"`   // sqlite file
	DSN      string `mapstructure:"dsn"`    // postgres connection string
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ShutdownTimeoutDuration returns the HTTP drain timeout as a time.Duration.
func (s *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// ShutdownTimeoutDuration returns the per-worker shutdown wait as a time.Duration.
func (a *AgentConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(a.ShutdownTimeout) * time.Second
}

// LoggerConfig converts the logging section for logger.NewLogger.
func (l LoggingConfig) LoggerConfig() logger.LoggingConfig {
	return logger.LoggingConfig{
		Level:      l.Level,
		Format:     l.Format,
		OutputPath: l.OutputPath,
	}
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.shutdownTimeout", 30)

	v.SetDefault("engine.appId", "")
	v.SetDefault("engine.appCert", "")

	v.SetDefault("agent.binaryPath", "")
	v.SetDefault("agent.shutdownTimeout", 10)
	v.SetDefault("agent.instructionsFile", "")
	v.SetDefault("agent.writePcm", false)
	v.SetDefault("agent.pcmDir", ".")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logger.DetectFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Empty URL means use the in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "voicectl")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("database.driver", "")
	v.SetDefault("database.path", "./data/voicectl.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.minConns", 2)
}

// Load reads configuration from environment variables, config file, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified directory or default locations.
// Environment variables use the VOICECTL_ prefix; the engine credentials and the
// listening port are also read from AGORA_APP_ID, AGORA_APP_CERT and SERVER_PORT.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("VOICECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("engine.appId", "AGORA_APP_ID", "VOICECTL_ENGINE_APP_ID")
	_ = v.BindEnv("engine.appCert", "AGORA_APP_CERT", "VOICECTL_ENGINE_APP_CERT")
	_ = v.BindEnv("server.port", "SERVER_PORT", "VOICECTL_SERVER_PORT")
	_ = v.BindEnv("agent.writePcm", "WRITE_RTC_PCM", "VOICECTL_AGENT_WRITE_PCM")
	_ = v.BindEnv("agent.binaryPath", "VOICECTL_AGENT_BINARY_PATH")
	_ = v.BindEnv("agent.shutdownTimeout", "VOICECTL_AGENT_SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("agent.instructionsFile", "VOICECTL_AGENT_INSTRUCTIONS_FILE")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/voicectl/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks the settings every mode needs. The engine app id is checked
// by the server and agent commands, not here, so tooling can load config without it.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Agent.ShutdownTimeout < 0 {
		errs = append(errs, "agent.shutdownTimeout must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	switch cfg.Database.Driver {
	case "":
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required when database.driver is sqlite")
		}
	case "postgres":
		if cfg.Database.DSN == "" {
			errs = append(errs, "database.dsn is required when database.driver is postgres")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite, postgres")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// RequireEngine reports whether the engine identity needed to spawn workers is set.
func (c *Config) RequireEngine() error {
	if c.Engine.AppID == "" {
		return fmt.Errorf("AGORA_APP_ID must be set in the environment")
	}
	return nil
}
