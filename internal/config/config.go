// Package config loads vixgo's runtime configuration via viper, covering
// every recognized key from the external interfaces section plus the
// executor's own sizing knobs.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/vixgo/vixgo/pkg/logger"
)

// Config holds every recognized configuration value for an embedded vixgo
// server.
type Config struct {
	ServerPort           int `mapstructure:"server_port"`
	ServerRequestTimeout int `mapstructure:"server_request_timeout_ms"`
	ServerIOThreads      int `mapstructure:"server_io_threads"`

	LoggingAsync          bool `mapstructure:"logging_async"`
	LoggingQueueMax       int  `mapstructure:"logging_queue_max"`
	LoggingDropOnOverflow bool `mapstructure:"logging_drop_on_overflow"`

	WAFMode         string `mapstructure:"waf_mode"`
	WAFMaxTargetLen int    `mapstructure:"waf_max_target_len"`
	WAFMaxBodyBytes int64  `mapstructure:"waf_max_body_bytes"`

	SessionTimeoutSec int `mapstructure:"session_timeout_sec"`

	ExecutorMinThreads  int `mapstructure:"executor_min_threads"`
	ExecutorMaxThreads  int `mapstructure:"executor_max_threads"`
	ExecutorMaxPeriodic int `mapstructure:"executor_max_periodic"`
	ExecutorQueueSize   int `mapstructure:"executor_queue_size"`
}

// Load reads configuration from a config file (if present) and environment
// overrides, applying SetDefault-per-key followed by ReadInConfig +
// Unmarshal. A missing config file is tolerated — every key has a
// workable default.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("vix")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("VIX")
	v.AutomaticEnv()

	v.SetDefault("server_port", 8080)
	v.SetDefault("server_request_timeout_ms", 30_000)
	v.SetDefault("server_io_threads", 0)

	v.SetDefault("logging_async", false)
	v.SetDefault("logging_queue_max", 10_000)
	v.SetDefault("logging_drop_on_overflow", true)

	v.SetDefault("waf_mode", "basic")
	v.SetDefault("waf_max_target_len", 8192)
	v.SetDefault("waf_max_body_bytes", int64(10*1024*1024))

	v.SetDefault("session_timeout_sec", 60)

	v.SetDefault("executor_min_threads", 0)
	v.SetDefault("executor_max_threads", 0)
	v.SetDefault("executor_max_periodic", 64)
	v.SetDefault("executor_queue_size", 10_000)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.logResolved(v.ConfigFileUsed())
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ServerPort != 0 && (c.ServerPort < 1024 || c.ServerPort > 65535) {
		return fmt.Errorf("server_port must be 0 (ephemeral) or within 1024-65535, got %d", c.ServerPort)
	}
	switch c.WAFMode {
	case "off", "basic", "strict":
	default:
		return fmt.Errorf("waf_mode must be one of off/basic/strict, got %q", c.WAFMode)
	}
	if c.ExecutorMaxThreads < 0 {
		return fmt.Errorf("executor_max_threads must be >= 0, got %d", c.ExecutorMaxThreads)
	}
	return nil
}

func (c *Config) logResolved(source string) {
	if source != "" {
		logger.Info("configuration loaded from %s", source)
	} else {
		logger.Info("configuration loaded from defaults and environment")
	}
	logger.Info("  server_port: %d", c.ServerPort)
	logger.Info("  server_request_timeout_ms: %d", c.ServerRequestTimeout)
	logger.Info("  server_io_threads: %d (0 = auto)", c.ServerIOThreads)
	logger.Info("  waf_mode: %s", c.WAFMode)
	logger.Info("  session_timeout_sec: %d", c.SessionTimeoutSec)
	logger.Info("  executor_max_threads: %d (0 = auto)", c.ExecutorMaxThreads)
}
