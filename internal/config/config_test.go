package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Validate(GetDefaults()); err != nil {
		t.Fatalf("defaults failed validation: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"aggressive mode", func(c *Config) { c.Redaction.Mode = "aggressive" }, false},
		{"unknown mode", func(c *Config) { c.Redaction.Mode = "reckless" }, true},
		{"no categories", func(c *Config) { c.Redaction.Categories = nil }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad ner backend", func(c *Config) { c.NER.Enabled = true; c.NER.Backend = "grpc" }, true},
		{"disabled ner ignores backend", func(c *Config) { c.NER.Backend = "grpc" }, false},
		{"threshold out of range", func(c *Config) { c.OCR.Threshold = 300 }, true},
		{"bad export format", func(c *Config) { c.Export.Formats = []string{"odt"} }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
redaction:
  mode: aggressive
  categories: [ssn, credit_card]
  ocr_tolerance: true
server:
  port: 9090
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redaction.Mode != "aggressive" || !cfg.Redaction.OCRTolerance {
		t.Errorf("Unexpected redaction section %+v", cfg.Redaction)
	}
	if len(cfg.Redaction.Categories) != 2 || cfg.Server.Port != 9090 {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if cfg.OCR.Workers != GetDefaults().OCR.Workers {
		t.Errorf("Expected untouched sections to keep defaults, got %+v", cfg.OCR)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDACTOR_REDACTION_MODE", "aggressive")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redaction.Mode != "aggressive" {
		t.Errorf("Mode = %q, want env override", cfg.Redaction.Mode)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("redaction:\n  mode: reckless\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Expected an invalid mode to fail loading")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected a missing explicit config file to fail")
	}
}
