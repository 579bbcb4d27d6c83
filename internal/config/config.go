// Package config loads and validates the proxy's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AuthConfig describes the optional credential-gated authentication block.
type AuthConfig struct {
	Enabled bool              `yaml:"enabled"`
	Type    string            `yaml:"type"`
	Realm   string            `yaml:"realm"`
	Users   map[string]string `yaml:"users,omitempty"`
}

// Config is the immutable, validated proxy configuration.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	Protocols []string `yaml:"protocols"`

	MaxConnections    int `yaml:"max_connections"`
	ConnectionTimeout int `yaml:"connection_timeout"`
	IdleTimeout       int `yaml:"idle_timeout"`
	BufferSize        int `yaml:"buffer_size"`

	LogLevel  string `yaml:"log_level"`
	AccessLog bool   `yaml:"access_log"`
	LogFile   string `yaml:"log_file,omitempty"`

	Auth *AuthConfig `yaml:"auth,omitempty"`
}

var validProtocols = map[string]bool{"http": true, "https": true, "socks5": true}

var validLogLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true,
}

// Default returns the default configuration, matching the values an
// unconfigured easyproxy instance would use.
func Default() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              7899,
		Protocols:         []string{"http", "https", "socks5"},
		MaxConnections:    1000,
		ConnectionTimeout: 30,
		IdleTimeout:       300,
		BufferSize:        8192,
		LogLevel:          "INFO",
		AccessLog:         true,
	}
}

// Load reads and validates a YAML configuration file, filling in defaults
// for any field the file omits entirely.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a configuration that the proxy cannot safely start with.
// It must be called, and must succeed, before any socket is opened.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be >= 1, got %d", c.MaxConnections)
	}
	if c.ConnectionTimeout < 1 {
		return fmt.Errorf("connection_timeout must be >= 1, got %d", c.ConnectionTimeout)
	}
	if c.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be >= 1, got %d", c.IdleTimeout)
	}
	if c.BufferSize < 512 {
		return fmt.Errorf("buffer_size must be >= 512, got %d", c.BufferSize)
	}
	if !validLogLevels[strings.ToUpper(c.LogLevel)] {
		return fmt.Errorf("log_level must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL, got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToUpper(c.LogLevel)

	if len(c.Protocols) == 0 {
		c.Protocols = Default().Protocols
	}
	normalized := make([]string, len(c.Protocols))
	for i, p := range c.Protocols {
		lower := strings.ToLower(p)
		if !validProtocols[lower] {
			return fmt.Errorf("unsupported protocol %q (supported: http, https, socks5)", p)
		}
		normalized[i] = lower
	}
	c.Protocols = normalized

	if c.Auth != nil && c.Auth.Enabled {
		switch c.Auth.Type {
		case "":
			c.Auth.Type = "basic"
		case "basic", "none":
		default:
			return fmt.Errorf("auth.type must be basic or none, got %q", c.Auth.Type)
		}
		if c.Auth.Realm == "" {
			c.Auth.Realm = "EasyProxy"
		}
		if c.Auth.Type == "basic" {
			for user, pass := range c.Auth.Users {
				if user == "" {
					return fmt.Errorf("auth.users contains an empty username")
				}
				if pass == "" {
					return fmt.Errorf("auth.users: password for %q must not be empty", user)
				}
			}
		}
	}

	return nil
}

// HasProtocol reports whether name (case-insensitive) is among the
// configured protocols.
func (c *Config) HasProtocol(name string) bool {
	name = strings.ToLower(name)
	for _, p := range c.Protocols {
		if p == name {
			return true
		}
	}
	return false
}

// Save writes the configuration to path as YAML, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
