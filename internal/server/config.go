// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat relay.
package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	HistorySize     int
	HistoryReplay   bool
	SendQueueSize   int
	Env             string
	LogLevel        string
	ShutdownTimeout time.Duration
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultBurst           = 5
	defaultRefillInterval  = time.Second
	defaultSendQueueSize   = 256
	defaultShutdownTimeout = 10 * time.Second
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		HistorySize:     chat.DefaultHistorySize,
		HistoryReplay:   true,
		SendQueueSize:   defaultSendQueueSize,
		Env:             "production",
		LogLevel:        "info",
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// Sanitize replaces unset or invalid values with defaults and normalizes the
// origin list. It returns the cleaned copy.
func (cfg Config) Sanitize() Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = chat.DefaultHistorySize
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaultSendQueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig reads the optional config file at path and then the environment
// (SERVER_PORT, ALLOWED_ORIGINS, MAX_MESSAGE_SIZE, RATE_LIMIT_BURST,
// RATE_LIMIT_REFILL_INTERVAL, HISTORY_SIZE, HISTORY_REPLAY, SEND_QUEUE_SIZE,
// APP_ENV, LOG_LEVEL, SHUTDOWN_TIMEOUT). Environment values win. Unset or
// invalid values fall back to defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	def := defaultConfig()

	v.SetDefault("server_port", def.Port)
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("rate_limit_burst", def.RateLimit.Burst)
	v.SetDefault("rate_limit_refill_interval", "1")
	v.SetDefault("history_size", def.HistorySize)
	v.SetDefault("history_replay", def.HistoryReplay)
	v.SetDefault("send_queue_size", def.SendQueueSize)
	v.SetDefault("app_env", def.Env)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("shutdown_timeout", "10")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := Config{
		Port:            v.GetString("server_port"),
		AllowedOrigins:  parseOrigins(v.GetStringSlice("allowed_origins")),
		MaxMessageSize:  v.GetInt64("max_message_size"),
		HistorySize:     v.GetInt("history_size"),
		HistoryReplay:   v.GetBool("history_replay"),
		SendQueueSize:   v.GetInt("send_queue_size"),
		Env:             v.GetString("app_env"),
		LogLevel:        v.GetString("log_level"),
		ShutdownTimeout: parseSeconds(v.GetString("shutdown_timeout"), def.ShutdownTimeout),
		RateLimit: RateLimitConfig{
			Burst:          v.GetInt("rate_limit_burst"),
			RefillInterval: parseSeconds(v.GetString("rate_limit_refill_interval"), def.RateLimit.RefillInterval),
		},
	}

	sanitized := cfg.Sanitize()
	return &sanitized, nil
}

// parseOrigins flattens comma-separated entries, which is how the list
// arrives from the environment.
func parseOrigins(values []string) []string {
	var origins []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

// parseSeconds accepts a whole number of seconds or a Go duration string.
func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
