package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Output formats accepted in the output section.
var validOutputFormats = map[string]bool{
	"pdf":  true,
	"png":  true,
	"jpeg": true,
	"tiff": true,
	"ps":   true,
	"raw":  true,
}

var validColorDepths = map[string]bool{
	"24bit": true,
	"8bit":  true,
	"1bit":  true,
}

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Listener ListenerConfig `yaml:"listener"`
	Spooler  SpoolerConfig  `yaml:"spooler"`
	Output   OutputConfig   `yaml:"output"`
	Renderer RendererConfig `yaml:"renderer"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// ListenerConfig holds the raw TCP print listener configuration
type ListenerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// SpoolerConfig holds the print spooler queue polling configuration
type SpoolerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	PrinterName     string        `yaml:"printer_name"`
	SpoolDir        string        `yaml:"spool_dir"`
	ControlDir      string        `yaml:"control_dir"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	StableThreshold int           `yaml:"stable_threshold"`
	MaxWait         time.Duration `yaml:"max_wait"`
}

// OutputConfig holds conversion output configuration
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	TempDir    string `yaml:"temp_dir"`
	Format     string `yaml:"format"`
	DPI        int    `yaml:"dpi"`
	ColorDepth string `yaml:"color_depth"`
}

// RendererConfig holds renderer executable discovery and invocation settings
type RendererConfig struct {
	SearchPaths []string      `yaml:"search_paths"`
	Timeout     time.Duration `yaml:"timeout"`
}

// APIConfig holds the HTTP status API configuration
type APIConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Port            int           `yaml:"port"`
	RecentJobs      int           `yaml:"recent_jobs"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the optional PostgreSQL job history configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RabbitMQConfig holds the optional completion event publishing configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.Listener.Enabled && !c.Spooler.Enabled {
		return fmt.Errorf("at least one ingestion source (listener or spooler) must be enabled")
	}

	if c.Listener.Enabled {
		if c.Listener.Port < MinPort || c.Listener.Port > MaxPort {
			return fmt.Errorf("invalid listener port: %d (must be between %d and %d)", c.Listener.Port, MinPort, MaxPort)
		}
	}

	if c.Spooler.Enabled {
		if c.Spooler.PrinterName == "" {
			return fmt.Errorf("spooler printer name is required")
		}
		if c.Spooler.SpoolDir == "" {
			return fmt.Errorf("spooler spool_dir is required")
		}
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output dir is required")
	}

	if c.Output.Format != "" && !validOutputFormats[c.Output.Format] {
		return fmt.Errorf("invalid output format: %q", c.Output.Format)
	}

	if c.Output.ColorDepth != "" && !validColorDepths[c.Output.ColorDepth] {
		return fmt.Errorf("invalid color depth: %q", c.Output.ColorDepth)
	}

	if c.Output.DPI < 0 {
		return fmt.Errorf("output dpi must not be negative")
	}

	if c.API.Enabled {
		if c.API.Port < MinPort || c.API.Port > MaxPort {
			return fmt.Errorf("invalid api port: %d (must be between %d and %d)", c.API.Port, MinPort, MaxPort)
		}
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	}

	return nil
}
