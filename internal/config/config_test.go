package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.MaxAssetBytes != 25*1024*1024 {
		t.Errorf("expected 25 MiB ceiling, got %d", cfg.MaxAssetBytes)
	}
	if cfg.STTProvider != "openai" {
		t.Errorf("expected openai provider, got %s", cfg.STTProvider)
	}
	if cfg.CaptureMode != "local" {
		t.Errorf("expected local capture mode, got %s", cfg.CaptureMode)
	}
	if len(cfg.CaptureOrigins) != 0 {
		t.Errorf("no capture origin should be allowed by default, got %v", cfg.CaptureOrigins)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WORKERS", "4")
	t.Setenv("STT_PROVIDER", "OpenAI")
	t.Setenv("CAPTURE_MODE", " Remote ")
	t.Setenv("CAPTURE_ALLOWED_ORIGINS", "https://a.example, http://localhost:5173")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" || cfg.Workers != 4 || cfg.STTProvider != "openai" || cfg.CaptureMode != "remote" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if want := []string{"https://a.example", "http://localhost:5173"}; !reflect.DeepEqual(cfg.CaptureOrigins, want) {
		t.Errorf("origins = %q, want %q", cfg.CaptureOrigins, want)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabscribe.yaml")
	body := "port: \"7070\"\ntarget_language: fr\nqueue_size: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7070" || cfg.TargetLanguage != "fr" || cfg.QueueSize != 3 {
		t.Errorf("file values not applied: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad provider", func(c *Config) { c.STTProvider = "fpt" }, "STTProvider"},
		{"non-ascii placeholder", func(c *Config) { c.ASCIIPlaceholder = "[omis é]" }, "ASCIIPlaceholder"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "Workers"},
		{"bucket without region", func(c *Config) { c.ExportS3Bucket = "b" }, "ExportS3Region"},
		{"google without key", func(c *Config) { c.STTProvider = "google" }, "GOOGLE_STT_KEY_FILE"},
		{"unknown capture mode", func(c *Config) { c.CaptureMode = "browser" }, "CaptureMode"},
		{"access key without secret", func(c *Config) { c.ExportS3AccessKey = "AKIA" }, "ExportS3SecretKey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
