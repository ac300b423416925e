package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Log.Level != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Scan.Concurrency != 1 || cfg.Scan.MaxPages != 10 || cfg.Scan.PageSize != 500 ||
		cfg.Scan.After != "2024/01/01" || cfg.Scan.NotableLimit != 5 {
		t.Fatalf("unexpected scan defaults: %+v", cfg.Scan)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Fatalf("allowed origins = %v", cfg.Server.AllowedOrigins)
	}
	if !strings.HasSuffix(cfg.Store.Path, "rejectiondash.db") {
		t.Fatalf("store path = %s", cfg.Store.Path)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
scan:
  concurrency: 4
  max_pages: 3
  after: 2023/06/01
server:
  allowed_origins:
    - https://dash.example.com
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REJECTIONDASH_SCAN_MAX_PAGES", "7")
	t.Setenv("REJECTIONDASH_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scan.Concurrency != 4 || cfg.Scan.After != "2023/06/01" {
		t.Fatalf("file values not applied: %+v", cfg.Scan)
	}
	if cfg.Scan.MaxPages != 7 || cfg.Log.Level != "debug" {
		t.Fatalf("env values not applied: max_pages=%d level=%s", cfg.Scan.MaxPages, cfg.Log.Level)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://dash.example.com" {
		t.Fatalf("allowed origins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scan:\n  concurrency: 0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "scan.concurrency") {
		t.Fatalf("expected concurrency error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{Scan: ScanConfig{Concurrency: 2, MaxPages: 10, PageSize: 500, After: "2024/01/01", NotableLimit: 5}}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"page size too big", func(c *Config) { c.Scan.PageSize = 501 }, "scan.page_size"},
		{"no pages", func(c *Config) { c.Scan.MaxPages = 0 }, "scan.max_pages"},
		{"notable over five", func(c *Config) { c.Scan.NotableLimit = 6 }, "scan.notable_limit"},
		{"dashed date", func(c *Config) { c.Scan.After = "2024-01-01" }, "scan.after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("error = %v, want mention of %s", err, tt.field)
			}
		})
	}
}
