package config

import (
	"fmt"
	"time"
)

// Config is the complete shopd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Engine        EngineConfig        `koanf:"engine"`
	Services      ServicesConfig      `koanf:"services"`
	Redis         RedisConfig         `koanf:"redis"`
	NATS          NATSConfig          `koanf:"nats"`
	Agent         AgentConfig         `koanf:"agent"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// EngineConfig configures the reasoning provider client.
type EngineConfig struct {
	APIKey            Secret   `koanf:"api_key"`
	Model             string   `koanf:"model"`
	BaseURL           string   `koanf:"base_url"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Burst             int      `koanf:"burst"`
	MaxRetries        int      `koanf:"max_retries"`
}

// ServicesConfig holds the base URLs of the commerce domain services.
type ServicesConfig struct {
	ProductURL   string   `koanf:"product_url"`
	ReviewURL    string   `koanf:"review_url"`
	OrderURL     string   `koanf:"order_url"`
	InventoryURL string   `koanf:"inventory_url"`
	Timeout      Duration `koanf:"timeout"`
	MaxRetries   int      `koanf:"max_retries"`
}

// RedisConfig configures session context persistence.
type RedisConfig struct {
	URL         string   `koanf:"url"`
	ContextTTL  Duration `koanf:"context_ttl"`
	CartTTL     Duration `koanf:"cart_ttl"`
	ApprovalTTL Duration `koanf:"approval_ttl"`
}

// NATSConfig configures the event publisher.
type NATSConfig struct {
	URL     string `koanf:"url"`
	Enabled bool   `koanf:"enabled"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	MaxIterations int `koanf:"max_iterations"`
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	Enabled        bool   `koanf:"enabled"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
	Endpoint       string `koanf:"endpoint"`
	Insecure       bool   `koanf:"insecure"`
	LogLevel       string `koanf:"log_level"`
	LogFormat      string `koanf:"log_format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Engine.Model == "" {
		cfg.Engine.Model = "gpt-4o-mini"
	}
	if cfg.Engine.Timeout == 0 {
		cfg.Engine.Timeout = Duration(30 * time.Second)
	}
	if cfg.Engine.RequestsPerSecond == 0 {
		cfg.Engine.RequestsPerSecond = 5
	}
	if cfg.Engine.Burst == 0 {
		cfg.Engine.Burst = 10
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = 2
	}

	if cfg.Services.ProductURL == "" {
		cfg.Services.ProductURL = "http://localhost:8081"
	}
	if cfg.Services.ReviewURL == "" {
		cfg.Services.ReviewURL = "http://localhost:8082"
	}
	if cfg.Services.OrderURL == "" {
		cfg.Services.OrderURL = "http://localhost:8083"
	}
	if cfg.Services.InventoryURL == "" {
		cfg.Services.InventoryURL = "http://localhost:8084"
	}
	if cfg.Services.Timeout == 0 {
		cfg.Services.Timeout = Duration(10 * time.Second)
	}
	if cfg.Services.MaxRetries == 0 {
		cfg.Services.MaxRetries = 3
	}

	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Redis.ContextTTL == 0 {
		cfg.Redis.ContextTTL = Duration(time.Hour)
	}
	if cfg.Redis.CartTTL == 0 {
		cfg.Redis.CartTTL = Duration(2 * time.Hour)
	}
	if cfg.Redis.ApprovalTTL == 0 {
		cfg.Redis.ApprovalTTL = Duration(5 * time.Minute)
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}

	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 15
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "shopd"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}
}

// Validate checks configuration consistency. Defaults are applied before
// validation, so only genuinely invalid values fail here.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Engine.APIKey.IsSet() {
		return fmt.Errorf("engine.api_key is required")
	}
	if c.Engine.RequestsPerSecond < 0 {
		return fmt.Errorf("engine.requests_per_second cannot be negative")
	}
	if c.Agent.MaxIterations < 3 {
		return fmt.Errorf("agent.max_iterations must be at least 3, got %d", c.Agent.MaxIterations)
	}
	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("observability.log_level must be one of debug, info, warn, error; got %q", c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("observability.log_format must be json or console, got %q", c.Observability.LogFormat)
	}
	return nil
}
