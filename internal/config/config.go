package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the chat client service.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"chat-client"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8184"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	StreamAPIURL      string        `env:"STREAM_API_URL" envDefault:"http://localhost:8080"`
	PushChannelURL    string        `env:"PUSH_CHANNEL_URL" envDefault:"http://localhost:8090"`
	PersistenceAPIURL string        `env:"PERSISTENCE_API_URL" envDefault:"http://localhost:8082"`
	UserID            string        `env:"CHAT_USER_ID"`
	ConnectTimeout    time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`

	SendMaxRetries       int           `env:"SEND_MAX_RETRIES" envDefault:"3"`
	SendRetryDelay       time.Duration `env:"SEND_RETRY_DELAY" envDefault:"1s"`
	PushReconnectDelay   time.Duration `env:"PUSH_RECONNECT_DELAY" envDefault:"2s"`
	PushReconnectRetries int           `env:"PUSH_RECONNECT_RETRIES" envDefault:"5"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, fmt.Errorf("CHAT_USER_ID is required")
	}

	if cfg.SendMaxRetries < 0 {
		cfg.SendMaxRetries = 3
	}

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
