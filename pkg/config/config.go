// Package config loads gateway configuration from a JSON file with
// environment overrides applied on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the full gateway configuration.
type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	Storage StorageConfig `json:"storage"`
	Device  DeviceConfig  `json:"device"`
	Webhook WebhookConfig `json:"webhook"`
	Broker  BrokerConfig  `json:"broker"`
	Blob    BlobConfig    `json:"blob"`
	Logging LoggingConfig `json:"logging"`
}

// GatewayConfig holds session lifecycle tuning.
type GatewayConfig struct {
	// RetryDelaySeconds is the pause before rebuilding a socket after a
	// stream error.
	RetryDelaySeconds int `json:"retry_delay_seconds"`
	// CloseTimeoutSeconds bounds how long a socket teardown may block.
	CloseTimeoutSeconds int `json:"close_timeout_seconds"`
	// RestoreOnBoot restarts every session with stored credentials.
	RestoreOnBoot bool `json:"restore_on_boot"`
	// PrintQR additionally renders pairing codes on the terminal.
	PrintQR bool `json:"print_qr"`
}

// StorageConfig selects the session/credential persistence backend.
type StorageConfig struct {
	Type        string `json:"type"` // "file" or "postgres"
	FilePath    string `json:"file_path,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
	SSLEnabled  bool   `json:"ssl_enabled,omitempty"`
}

// DeviceConfig selects the protocol device store backend.
type DeviceConfig struct {
	Type        string `json:"type"` // "sqlite" or "postgres"
	Path        string `json:"path,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
}

// WebhookConfig configures the HTTP delivery sink.
type WebhookConfig struct {
	DefaultURL string `json:"default_url,omitempty"`
	Secret     string `json:"secret,omitempty"`
}

// BrokerConfig configures the AMQP delivery sink.
type BrokerConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

// BlobConfig configures media attachment storage.
type BlobConfig struct {
	Type      string `json:"type"` // "filesystem" or "s3"
	BasePath  string `json:"base_path,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	UseSSL    bool   `json:"use_ssl,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `json:"level"`
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wagateway", "config.json")
}

// DefaultDataDir returns the standard data directory.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wagateway")
}

// DefaultConfig returns a config with working local defaults.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Gateway: GatewayConfig{
			RetryDelaySeconds:   5,
			CloseTimeoutSeconds: 10,
			RestoreOnBoot:       true,
		},
		Storage: StorageConfig{
			Type:     "file",
			FilePath: filepath.Join(dataDir, "data"),
		},
		Device: DeviceConfig{
			Type: "sqlite",
			Path: filepath.Join(dataDir, "devices.db"),
		},
		Broker: BrokerConfig{
			Exchange: "wagateway",
		},
		Blob: BlobConfig{
			Type:     "filesystem",
			BasePath: filepath.Join(dataDir, "media"),
			BaseURL:  "http://localhost/media",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist, and applies environment overrides on top.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run: defaults plus environment only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as indented JSON.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "file":
		if c.Storage.FilePath == "" {
			return fmt.Errorf("storage.file_path is required for file storage")
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url is required for postgres storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	switch c.Device.Type {
	case "sqlite":
		if c.Device.Path == "" {
			return fmt.Errorf("device.path is required for sqlite device store")
		}
	case "postgres":
		if c.Device.DatabaseURL == "" {
			return fmt.Errorf("device.database_url is required for postgres device store")
		}
	default:
		return fmt.Errorf("unsupported device store type: %s", c.Device.Type)
	}

	if c.Broker.Enabled && c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required when the broker sink is enabled")
	}
	return nil
}
