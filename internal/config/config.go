package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	KUB             KUBConfig  `yaml:"kub"`
	WaterStatistics bool       `yaml:"water_statistics,omitempty"` // Double-count wastewater into the water statistic
	Timezone        string     `yaml:"timezone,omitempty"`         // IANA zone for statistic timestamps (default: America/New_York)
	RefreshInterval string     `yaml:"refresh_interval,omitempty"` // Daemon refresh interval (default: 12h)
	MetricsAddr     string     `yaml:"metrics_addr,omitempty"`     // Prometheus listen address (default: :9184)
	MQTT            MQTTConfig `yaml:"mqtt,omitempty"`
	HomeAssistant   HAConfig   `yaml:"home_assistant,omitempty"`
}

// KUBConfig holds the KUB account credentials
type KUBConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTConfig holds the MQTT broker configuration for snapshot publishing
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`                 // e.g., "mqtt.local:1883"
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // Default: "kubscraper"
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`   // e.g., "http://yourdomain.local:8123"
	Token   string `yaml:"token"` // Long-lived access token
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// GetLocation returns the time zone statistic timestamps are zoned into.
// KUB is in Knoxville, so the default is Eastern time.
func (c *Config) GetLocation() (*time.Location, error) {
	tz := c.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", tz, err)
	}
	return loc, nil
}

// GetRefreshInterval returns the daemon refresh interval. KUB publishes
// usage with roughly a day's delay, so the default polls twice a day.
func (c *Config) GetRefreshInterval() (time.Duration, error) {
	if c.RefreshInterval == "" {
		return 12 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		return 0, fmt.Errorf("parsing refresh_interval %q: %w", c.RefreshInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("refresh_interval must be positive, got %q", c.RefreshInterval)
	}
	return d, nil
}

// GetMetricsAddr returns the Prometheus listen address
func (c *Config) GetMetricsAddr() string {
	if c.MetricsAddr == "" {
		return ":9184"
	}
	return c.MetricsAddr
}

// GetTopicPrefix returns the MQTT topic prefix
func (c *MQTTConfig) GetTopicPrefix() string {
	if c.TopicPrefix == "" {
		return "kubscraper"
	}
	return c.TopicPrefix
}
