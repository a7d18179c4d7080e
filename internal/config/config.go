package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dgnsrekt/cargoviz-realtime/internal/notify"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Session  SessionConfig  `mapstructure:"session"`
	Server   ServerConfig   `mapstructure:"server"`
	Notify   notify.Config  `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type APIConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Backend       string `mapstructure:"backend"` // "http" or "mock"
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryDelayMs  int    `mapstructure:"retry_delay_ms"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

type RealtimeConfig struct {
	Endpoint             string `mapstructure:"endpoint"`
	MaxReconnectAttempts int    `mapstructure:"max_reconnect_attempts"`
	ReconnectDelayMs     int    `mapstructure:"reconnect_delay_ms"`
	ThrottleMs           int    `mapstructure:"throttle_ms"`
	ThrottlePolicy       string `mapstructure:"throttle_policy"` // "drop" or "coalesce"
	HistorySize          int    `mapstructure:"history_size"`
	PongWaitSec          int    `mapstructure:"pong_wait_sec"`
}

type SessionConfig struct {
	File string `mapstructure:"file"`
}

// ServerConfig is the local status/view HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c APIConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c RealtimeConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMs) * time.Millisecond
}

func (c RealtimeConfig) ThrottleWindow() time.Duration {
	return time.Duration(c.ThrottleMs) * time.Millisecond
}

func (c RealtimeConfig) PongWait() time.Duration {
	return time.Duration(c.PongWaitSec) * time.Second
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "cargoviz", "session.json")
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	// Set defaults
	v.SetDefault("api.base_url", "https://api.cargoviz.com/api")
	v.SetDefault("api.backend", BackendHTTP)
	v.SetDefault("api.timeout_sec", 10)
	v.SetDefault("api.retry_count", 3)
	v.SetDefault("api.retry_delay_ms", 500)
	v.SetDefault("api.rate_per_second", 10)
	v.SetDefault("realtime.endpoint", "wss://api.cargoviz.com/ws")
	v.SetDefault("realtime.max_reconnect_attempts", 5)
	v.SetDefault("realtime.reconnect_delay_ms", 1000)
	v.SetDefault("realtime.throttle_ms", 200)
	v.SetDefault("realtime.throttle_policy", PolicyDrop)
	v.SetDefault("realtime.history_size", 100)
	v.SetDefault("realtime.pong_wait_sec", 60)
	v.SetDefault("session.file", defaultSessionFile())
	v.SetDefault("server.addr", "127.0.0.1:8090")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "truck")
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("CARGOVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Keys without a default are not picked up by AutomaticEnv on Unmarshal
	_ = v.BindEnv("notify.topic", "CARGOVIZ_NOTIFY_TOPIC")
	_ = v.BindEnv("notify.token", "CARGOVIZ_NOTIFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("cargoviz")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}
	return v
}

// readConfig reads the config file if there is one. It reports whether a
// file was found.
func readConfig(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("reading config: %w", err)
	}
	return true, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func Load(configPath string) (*Config, error) {
	v := newViper(configPath)
	if _, err := readConfig(v); err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch loads the configuration and, when it came from a file, re-reads it
// on every change. onChange receives only configs that pass validation; an
// invalid edit is logged and the previous config stays in effect.
func Watch(configPath string, logger *zap.Logger, onChange func(*Config)) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := newViper(configPath)
	found, err := readConfig(v)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if !found {
		logger.Debug("no config file found, hot reload disabled")
		return cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			logger.Warn("ignoring invalid config change",
				zap.String("file", e.Name),
				zap.Error(err),
			)
			return
		}
		logger.Info("config reloaded", zap.String("file", e.Name))
		onChange(next)
	})
	v.WatchConfig()

	return cfg, nil
}

func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.API.Backend != BackendHTTP && c.API.Backend != BackendMock {
		errs.Add("api.backend", fmt.Sprintf("%q is not one of %s, %s", c.API.Backend, BackendHTTP, BackendMock))
	}
	if c.API.Backend == BackendHTTP && c.API.BaseURL == "" {
		errs.Add("api.base_url", "required for the http backend (set CARGOVIZ_API_BASE_URL)")
	}
	if c.API.TimeoutSec < 1 {
		errs.Add("api.timeout_sec", "must be >= 1")
	}
	if c.API.RetryCount < 0 {
		errs.Add("api.retry_count", "must be >= 0")
	}
	if c.API.RatePerSecond < 1 {
		errs.Add("api.rate_per_second", "must be >= 1")
	}

	if !validEndpoint(c.Realtime.Endpoint) {
		errs.Add("realtime.endpoint", fmt.Sprintf("%q must be a ws:// or wss:// URL", c.Realtime.Endpoint))
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		errs.Add("realtime.max_reconnect_attempts", "must be >= 0")
	}
	if c.Realtime.ReconnectDelayMs < 1 {
		errs.Add("realtime.reconnect_delay_ms", "must be >= 1")
	}
	if c.Realtime.ThrottleMs < 0 {
		errs.Add("realtime.throttle_ms", "must be >= 0")
	}
	if c.Realtime.ThrottlePolicy != PolicyDrop && c.Realtime.ThrottlePolicy != PolicyCoalesce {
		errs.Add("realtime.throttle_policy", fmt.Sprintf("%q is not one of %s, %s", c.Realtime.ThrottlePolicy, PolicyDrop, PolicyCoalesce))
	}
	if c.Realtime.HistorySize < 1 {
		errs.Add("realtime.history_size", "must be >= 1")
	}

	if c.Session.File == "" {
		errs.Add("session.file", "required")
	}

	if !ValidLogLevels[c.Logging.Level] {
		errs.Add("logging.level", fmt.Sprintf("%q is not a valid level", c.Logging.Level))
	}

	if err := c.Notify.Validate(); err != nil {
		errs.Add("notify", err.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validEndpoint(endpoint string) bool {
	return strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://")
}
