package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Listen.Port != 8484 {
		t.Errorf("listen.port = %d", cfg.Listen.Port)
	}
	if cfg.IMAP.Host != "imap.gmail.com" || cfg.IMAP.Port != 993 {
		t.Errorf("imap defaults = %+v", cfg.IMAP)
	}
	if cfg.IMAP.FetchLimit != 5 {
		t.Errorf("fetch_limit = %d", cfg.IMAP.FetchLimit)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q", cfg.Gemini.Model)
	}
	if cfg.Gemini.APIKey != "" {
		t.Error("there must be no default API key")
	}
	if cfg.Pipeline.RequestsPerMinute != 3 {
		t.Errorf("requests_per_minute = %d", cfg.Pipeline.RequestsPerMinute)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "imap:\n  host: mail.example.org\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IMAP.Host != "mail.example.org" {
		t.Errorf("host = %q", cfg.IMAP.Host)
	}
	// Omitted fields in a present section still get defaults.
	if cfg.IMAP.Port != 993 || cfg.IMAP.FetchLimit != 5 {
		t.Errorf("imap = %+v, want defaults for omitted fields", cfg.IMAP)
	}
	if cfg.Listen.Port != 8484 {
		t.Errorf("listen.port = %d", cfg.Listen.Port)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "expanded-key")
	path := writeConfig(t, "gemini:\n  api_key: ${TEST_GEMINI_KEY}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gemini.APIKey != "expanded-key" {
		t.Errorf("api_key = %q, want environment expansion", cfg.Gemini.APIKey)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "imap: [not a mapping\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected YAML error")
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("explicit path must exist")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults ok", func(c *Config) {}, false},
		{"bad listen port", func(c *Config) { c.Listen.Port = 70000 }, true},
		{"bad imap port", func(c *Config) { c.IMAP.Port = 0 }, true},
		{"zero fetch limit", func(c *Config) { c.IMAP.FetchLimit = 0 }, true},
		{"zero rpm", func(c *Config) { c.Pipeline.RequestsPerMinute = 0 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"json log format", func(c *Config) { c.LogFormat = "json" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	attr := slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(LevelTrace)}
	got := ReplaceLogLevelNames(nil, attr)
	if got.Value.String() != "TRACE" {
		t.Errorf("trace renders as %q", got.Value.String())
	}

	attr = slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(slog.LevelInfo)}
	got = ReplaceLogLevelNames(nil, attr)
	if got.Value.Any().(slog.Level) != slog.LevelInfo {
		t.Error("non-trace levels must pass through unchanged")
	}
}
