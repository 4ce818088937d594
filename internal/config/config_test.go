package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, "papertrap", cfg.App.Name)
				assert.Equal(t, 9100, cfg.Listener.Port)
				assert.Equal(t, 10*time.Second, cfg.Listener.IdleTimeout)
				assert.Equal(t, "Virtual Printer", cfg.Spooler.PrinterName)
				assert.Equal(t, 5, cfg.Spooler.StableThreshold)
				assert.Equal(t, "pdf", cfg.Output.Format)
				assert.Equal(t, 300, cfg.Output.DPI)
				assert.Equal(t, 60*time.Second, cfg.Renderer.Timeout)
				assert.Equal(t, "print_events", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "papertrap_db", cfg.Database.Database)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Listener: ListenerConfig{Enabled: true, Host: "0.0.0.0", Port: 9100},
		Spooler: SpoolerConfig{
			Enabled:     true,
			PrinterName: "Virtual Printer",
			SpoolDir:    "/var/spool/papertrap",
		},
		Output: OutputConfig{
			Dir:        "/var/lib/papertrap/output",
			Format:     "pdf",
			DPI:        300,
			ColorDepth: "24bit",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "no ingestion source enabled",
			mutate: func(c *Config) {
				c.Listener.Enabled = false
				c.Spooler.Enabled = false
			},
			wantErr:   true,
			errString: "at least one ingestion source",
		},
		{
			name: "listener port too low",
			mutate: func(c *Config) {
				c.Listener.Port = 0
			},
			wantErr:   true,
			errString: "invalid listener port",
		},
		{
			name: "listener port too high",
			mutate: func(c *Config) {
				c.Listener.Port = 70000
			},
			wantErr:   true,
			errString: "invalid listener port",
		},
		{
			name: "disabled listener skips port check",
			mutate: func(c *Config) {
				c.Listener.Enabled = false
				c.Listener.Port = 0
			},
			wantErr: false,
		},
		{
			name: "spooler without printer name",
			mutate: func(c *Config) {
				c.Spooler.PrinterName = ""
			},
			wantErr:   true,
			errString: "spooler printer name is required",
		},
		{
			name: "spooler without spool dir",
			mutate: func(c *Config) {
				c.Spooler.SpoolDir = ""
			},
			wantErr:   true,
			errString: "spooler spool_dir is required",
		},
		{
			name: "missing output dir",
			mutate: func(c *Config) {
				c.Output.Dir = ""
			},
			wantErr:   true,
			errString: "output dir is required",
		},
		{
			name: "unknown output format",
			mutate: func(c *Config) {
				c.Output.Format = "docx"
			},
			wantErr:   true,
			errString: "invalid output format",
		},
		{
			name: "unknown color depth",
			mutate: func(c *Config) {
				c.Output.ColorDepth = "16bit"
			},
			wantErr:   true,
			errString: "invalid color depth",
		},
		{
			name: "api enabled without valid port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 0
			},
			wantErr:   true,
			errString: "invalid api port",
		},
		{
			name: "database enabled without host",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Port = 5432
				c.Database.Database = "papertrap_db"
			},
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name: "database enabled without name",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Host = "localhost"
				c.Database.Port = 5432
			},
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name: "rabbitmq enabled without host",
			mutate: func(c *Config) {
				c.RabbitMQ.Enabled = true
				c.RabbitMQ.Port = 5672
				c.RabbitMQ.Exchange.Name = "print_events"
			},
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name: "rabbitmq enabled without exchange name",
			mutate: func(c *Config) {
				c.RabbitMQ.Enabled = true
				c.RabbitMQ.Host = "localhost"
				c.RabbitMQ.Port = 5672
			},
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.NoError(t, err)
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid listener port")
	})

	t.Run("load config with missing output dir", func(t *testing.T) {
		cfg, err := Load("testdata/missing_output_dir.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output dir is required")
	})
}
