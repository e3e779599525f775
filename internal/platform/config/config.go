package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	InstanceID  string `env:"INSTANCE_ID"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// UserHeader carries the user id the gateway already authenticated.
	UserHeader string `env:"USER_HEADER" default:"X-User-ID"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"20s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" default:"5s"`

	SendRateLimit float64 `env:"SEND_RATE_LIMIT" default:"5"`
	SendRateBurst int     `env:"SEND_RATE_BURST" default:"10"`

	MaxStreams         int64   `env:"MAX_STREAMS" default:"10000"`
	StreamConnectRate  float64 `env:"STREAM_CONNECT_RATE" default:"1"`
	StreamConnectBurst int     `env:"STREAM_CONNECT_BURST" default:"5"`

	// AllowedOrigins is a comma-separated list of browser origins allowed to
	// open WebSocket streams. Empty allows any origin.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"USER_HEADER":  cfg.UserHeader,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.HeartbeatInterval <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be positive")
	}
	if cfg.WriteTimeout <= 0 {
		return errors.New("WRITE_TIMEOUT must be positive")
	}
	if cfg.SendRateLimit <= 0 || cfg.SendRateBurst < 1 {
		return errors.New("SEND_RATE_LIMIT must be positive and SEND_RATE_BURST at least 1")
	}

	if cfg.MaxStreams < 1 {
		return errors.New("MAX_STREAMS must be at least 1")
	}
	if cfg.StreamConnectRate <= 0 || cfg.StreamConnectBurst < 1 {
		return errors.New("STREAM_CONNECT_RATE must be positive and STREAM_CONNECT_BURST at least 1")
	}

	if cfg.IsProduction() {
		if mode := sslMode(cfg.DatabaseURL); mode == "" || mode == "disable" {
			return fmt.Errorf("DATABASE_URL must set sslmode in production, got %q", mode)
		}
	}

	return nil
}

// Origins returns AllowedOrigins split into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimSuffix(o, "/"))
		}
	}
	return origins
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
