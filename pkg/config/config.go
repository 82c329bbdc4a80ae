// Package config loads the pedrobook configuration from a .pedrobook.json
// file, with environment-variable fallback for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the pedrobook configuration
type Config struct {
	Model    ModelConfig    `json:"model"`
	Provider ProviderConfig `json:"provider"`
	Mail     MailConfig     `json:"mail"`
	Database DatabaseConfig `json:"database"`
	Roster   RosterConfig   `json:"roster"`
}

// ModelConfig points at the language-oracle server.
type ModelConfig struct {
	ServerURL   string  `json:"server_url"`
	ModelName   string  `json:"model_name"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// ProviderConfig holds booking-provider API settings.
type ProviderConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// MailConfig holds confirmation-email settings.
type MailConfig struct {
	SenderEmail string `json:"sender_email"`
}

// DatabaseConfig holds the optional transcript store settings. An empty DSN
// disables transcript recording.
type DatabaseConfig struct {
	DSN string `json:"dsn,omitempty"`
}

// RosterConfig points at the roster file the CLI loads.
type RosterConfig struct {
	Path string `json:"path"`
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadDefault attempts to load .pedrobook.json from current directory or home
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(".pedrobook.json"); err == nil {
		return Load(".pedrobook.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homePath := filepath.Join(home, ".pedrobook.json")
		if _, err := os.Stat(homePath); err == nil {
			return Load(homePath)
		}
	}

	return nil, fmt.Errorf("no .pedrobook.json found in current directory or home")
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Model.ServerURL == "" {
		c.Model.ServerURL = "http://localhost:11434"
	}
	if c.Model.Temperature == 0 {
		c.Model.Temperature = 0.2
	}
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = 1024
	}
	if c.Roster.Path == "" {
		c.Roster.Path = "roster.yaml"
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.Model.ModelName == "" {
		return fmt.Errorf("model.model_name is required")
	}
	if c.Mail.SenderEmail == "" {
		return fmt.Errorf("mail.sender_email is required")
	}
	return nil
}

// ResolveAPIKey retrieves the booking provider API key: the config file
// first, then the BOOKING_API_KEY environment variable (supports `op run`).
func (c *Config) ResolveAPIKey() (string, error) {
	if c.Provider.APIKey != "" {
		return c.Provider.APIKey, nil
	}
	if apiKey := os.Getenv("BOOKING_API_KEY"); apiKey != "" {
		return apiKey, nil
	}
	return "", fmt.Errorf("no API key found in config or BOOKING_API_KEY env var")
}
