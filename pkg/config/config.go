// Package config provides YAML-based configuration loading for ferry.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/AriBhuiya/ferry/pkg/errs"
)

// EnvPrefix is the prefix for environment overrides, e.g. FERRY_LOG_LEVEL=debug.
const EnvPrefix = "FERRY"

// Config is the root application configuration.
type Config struct {
	// AppName is the logical application name used in logs and metrics.
	AppName string `mapstructure:"app_name"`

	Log       LogConfig       `mapstructure:"log"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Transport TransportConfig `mapstructure:"transport"`
	Serve     ServeConfig     `mapstructure:"serve"`
	Session   SessionConfig   `mapstructure:"session"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "ferry",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stderr"},
			Development: false,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/ferry.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Discovery: DefaultDiscovery(),
		Transport: DefaultTransport(),
		Serve:     DefaultServe(),
		Session:   SessionConfig{Codec: "cbor"},
		Metrics:   MetricsConfig{Enabled: false, Listen: "127.0.0.1:9464", Namespace: "ferry"},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// A .env file in the working directory is loaded into the process
// environment first when present.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller-supplied viper instance, so command-line flags
// bound to v take precedence over file and environment values.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errs.E(errs.KindConfig, "config.load", fmt.Errorf("read .env: %w", err))
	}

	cfg := Default()

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path == "" {
		if envPath := os.Getenv(EnvPrefix + "_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ferry")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ferry"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errs.E(errs.KindConfig, "config.load", fmt.Errorf("read config: %w", err))
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.E(errs.KindConfig, "config.load", fmt.Errorf("decode config: %w", err))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seed defaults for viper so env-only configs work
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	v.SetDefault("discovery.backend", cfg.Discovery.Backend)
	v.SetDefault("discovery.service_type", cfg.Discovery.ServiceType)
	v.SetDefault("discovery.domain", cfg.Discovery.Domain)
	v.SetDefault("discovery.poll_interval_ms", cfg.Discovery.PollIntervalMS)
	v.SetDefault("discovery.browse_interval_ms", cfg.Discovery.BrowseIntervalMS)

	v.SetDefault("transport.kind", cfg.Transport.Kind)
	v.SetDefault("transport.verify", cfg.Transport.Verify)
	v.SetDefault("transport.fingerprint", cfg.Transport.Fingerprint)
	v.SetDefault("transport.max_message_bytes", cfg.Transport.MaxMessageBytes)
	v.SetDefault("transport.handshake_timeout_ms", cfg.Transport.HandshakeTimeoutMS)
	v.SetDefault("transport.idle_timeout_ms", cfg.Transport.IdleTimeoutMS)
	v.SetDefault("transport.linger_ms", cfg.Transport.LingerMS)

	v.SetDefault("serve.host", cfg.Serve.Host)
	v.SetDefault("serve.port", cfg.Serve.Port)
	v.SetDefault("serve.name", cfg.Serve.Name)
	v.SetDefault("serve.dir", cfg.Serve.Dir)
	v.SetDefault("serve.once", cfg.Serve.Once)

	v.SetDefault("session.codec", cfg.Session.Codec)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)
}

func (c *Config) validate() error {
	const op = "config.validate"
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		c.Log.Level = lvl
	default:
		return errs.Errorf(errs.KindConfig, op, "invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	if strings.TrimSpace(c.AppName) == "" {
		c.AppName = "ferry"
	}

	if err := c.Discovery.validate(); err != nil {
		return errs.E(errs.KindConfig, op, err)
	}
	if err := c.Transport.validate(); err != nil {
		return errs.E(errs.KindConfig, op, err)
	}
	if err := c.Serve.validate(); err != nil {
		return errs.E(errs.KindConfig, op, err)
	}

	c.Session.Codec = strings.ToLower(strings.TrimSpace(c.Session.Codec))
	switch c.Session.Codec {
	case "":
		c.Session.Codec = "cbor"
	case "cbor", "json", "proto":
	default:
		return errs.Errorf(errs.KindConfig, op, "invalid session.codec: %q", c.Session.Codec)
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		return errs.Errorf(errs.KindConfig, op, "metrics.listen is required when metrics are enabled")
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
