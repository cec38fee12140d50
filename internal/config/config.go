// Package config loads the settings of the conduit command from a YAML file
// and CONDUIT_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RobertWHurst/conduit"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, so server.addr is
// read from CONDUIT_SERVER_ADDR.
const EnvPrefix = "CONDUIT"

var (
	ErrConfigReadFailed = errors.New("config: read failed")
	ErrConfigInvalid    = errors.New("config: invalid")
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Path            string        `mapstructure:"path"`
	Origins         []string      `mapstructure:"origins"`
	UpgradeTimeout  time.Duration `mapstructure:"upgrade_timeout"`
	MessageTimeout  time.Duration `mapstructure:"message_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	MalformedPolicy string        `mapstructure:"malformed_policy"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout or file
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
	Color      bool   `mapstructure:"color"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

var defaults = map[string]any{
	"server.addr":             ":8080",
	"server.path":             "/ws",
	"server.origins":          []string{},
	"server.upgrade_timeout":  10 * time.Second,
	"server.message_timeout":  0,
	"server.write_timeout":    5 * time.Second,
	"server.shutdown_timeout": 10 * time.Second,
	"server.read_limit":       32768,
	"server.malformed_policy": "drop",

	"logger.level":       "info",
	"logger.format":      "json",
	"logger.output":      "stdout",
	"logger.file_path":   "logs/conduit.log",
	"logger.max_size":    100,
	"logger.max_backups": 3,
	"logger.max_age":     7,
	"logger.compress":    false,
	"logger.color":       false,
	"logger.stacktrace":  true,

	"metrics.enabled":   true,
	"metrics.path":      "/metrics",
	"metrics.namespace": "conduit",
}

// Load reads the config file at path, if any, applies environment overrides
// and fills in defaults for everything left unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigReadFailed, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigReadFailed, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, ok := conduit.ParseMalformedPolicy(c.Server.MalformedPolicy); !ok {
		return fmt.Errorf("%w: unknown malformed_policy %q", ErrConfigInvalid, c.Server.MalformedPolicy)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("%w: server.path must start with /", ErrConfigInvalid)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("%w: metrics.path must start with /", ErrConfigInvalid)
	}
	return nil
}

// ServerOptions translates the server section into conduit options.
func (c ServerConfig) ServerOptions() []conduit.Option {
	policy, _ := conduit.ParseMalformedPolicy(c.MalformedPolicy)
	return []conduit.Option{
		conduit.WithOrigins(c.Origins...),
		conduit.WithUpgradeTimeout(c.UpgradeTimeout),
		conduit.WithMessageTimeout(c.MessageTimeout),
		conduit.WithWriteTimeout(c.WriteTimeout),
		conduit.WithReadLimit(c.ReadLimit),
		conduit.WithMalformedPolicy(policy),
	}
}
