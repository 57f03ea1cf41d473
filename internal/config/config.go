// Package config handles ReplyDesk configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/replydesk/config.yaml, /etc/replydesk/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "replydesk", "config.yaml"))
	}

	paths = append(paths, "/etc/replydesk/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all ReplyDesk configuration.
type Config struct {
	Listen    ListenConfig   `yaml:"listen"`
	IMAP      IMAPConfig     `yaml:"imap"`
	Gemini    GeminiConfig   `yaml:"gemini"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"`
}

// ListenConfig defines the web server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8484
}

// IMAPConfig holds mail server connection parameters. Credentials are
// deliberately absent: the address and app password are entered in the
// browser per session and never read from disk.
type IMAPConfig struct {
	// Host is the IMAP server hostname. Default: "imap.gmail.com".
	Host string `yaml:"host"`

	// Port is the IMAP server port. Default: 993 (IMAPS).
	Port int `yaml:"port"`

	// FetchLimit caps how many unread messages a single fetch returns.
	// Default: 5.
	FetchLimit int `yaml:"fetch_limit"`
}

// GeminiConfig defines generation service settings. The API key may be
// provided here via environment expansion (e.g. ${GEMINI_API_KEY}) as a
// convenience; the browser form value, when present, takes precedence.
// There is no embedded default key.
type GeminiConfig struct {
	Model  string `yaml:"model"`   // Default: "gemini-2.5-flash"
	APIKey string `yaml:"api_key"` // Optional; typically ${GEMINI_API_KEY}
}

// PipelineConfig defines drafting pipeline settings.
type PipelineConfig struct {
	// RequestsPerMinute is the ceiling on generation service calls.
	// Calls beyond the ceiling wait; they are never dropped. Default: 3.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8484},
		IMAP: IMAPConfig{
			Host:       "imap.gmail.com",
			Port:       993,
			FetchLimit: 5,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Pipeline: PipelineConfig{
			RequestsPerMinute: 3,
		},
	}
}

// applyDefaults fills zero-value fields with sensible defaults. A YAML
// file that sets a section but omits a field should still get the
// defaults for the omitted field.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8484
	}
	if c.IMAP.Host == "" {
		c.IMAP.Host = "imap.gmail.com"
	}
	if c.IMAP.Port == 0 {
		c.IMAP.Port = 993
	}
	if c.IMAP.FetchLimit == 0 {
		c.IMAP.FetchLimit = 5
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-flash"
	}
	if c.Pipeline.RequestsPerMinute == 0 {
		c.Pipeline.RequestsPerMinute = 3
	}
}

// Validate checks that the configuration is internally consistent.
// Returns an error describing the first problem found.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if c.IMAP.Port < 1 || c.IMAP.Port > 65535 {
		return fmt.Errorf("imap.port %d out of range (1-65535)", c.IMAP.Port)
	}
	if c.IMAP.FetchLimit < 1 {
		return fmt.Errorf("imap.fetch_limit must be at least 1")
	}
	if c.Pipeline.RequestsPerMinute < 1 {
		return fmt.Errorf("pipeline.requests_per_minute must be at least 1")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}
