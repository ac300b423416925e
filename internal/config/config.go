// Package config loads the dashboard settings from an optional YAML file and
// REJECTIONDASH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "REJECTIONDASH"

type LogConfig struct {
	Level string `mapstructure:"level"`
	// File receives the log in terminal mode so it does not draw over the UI.
	File string `mapstructure:"file"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ScanConfig struct {
	Concurrency  int    `mapstructure:"concurrency"`
	MaxPages     int    `mapstructure:"max_pages"`
	PageSize     int64  `mapstructure:"page_size"`
	After        string `mapstructure:"after"`
	NotableLimit int    `mapstructure:"notable_limit"`
}

type AuthConfig struct {
	ClientSecretPath string `mapstructure:"client_secret_path"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the top-level application configuration.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
	Scan   ScanConfig   `mapstructure:"scan"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Store  StoreConfig  `mapstructure:"store"`
}

// DefaultConfigDir returns ~/.config/rejectiondash.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".rejectiondash")
	}
	return filepath.Join(home, ".config", "rejectiondash")
}

// DefaultConfigPath returns the config file read when none is given.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(dir, "rejectiondash.log"))
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("scan.concurrency", 1)
	v.SetDefault("scan.max_pages", 10)
	v.SetDefault("scan.page_size", 500)
	v.SetDefault("scan.after", "2024/01/01")
	v.SetDefault("scan.notable_limit", 5)
	v.SetDefault("auth.client_secret_path", filepath.Join(dir, "client_secret.json"))
	v.SetDefault("store.path", filepath.Join(dir, "rejectiondash.db"))
}

// Load reads configuration from the YAML file at path (the default path when
// empty) and the environment, and validates the result. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var afterDate = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)

// Validate rejects values a scan cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Scan.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("scan.concurrency must be at least 1, got %d", c.Scan.Concurrency))
	}
	if c.Scan.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("scan.max_pages must be at least 1, got %d", c.Scan.MaxPages))
	}
	if c.Scan.PageSize < 1 || c.Scan.PageSize > 500 {
		errs = append(errs, fmt.Errorf("scan.page_size must be between 1 and 500, got %d", c.Scan.PageSize))
	}
	if c.Scan.NotableLimit < 1 || c.Scan.NotableLimit > 5 {
		errs = append(errs, fmt.Errorf("scan.notable_limit must be between 1 and 5, got %d", c.Scan.NotableLimit))
	}
	if !afterDate.MatchString(c.Scan.After) {
		errs = append(errs, fmt.Errorf("scan.after must look like YYYY/MM/DD, got %q", c.Scan.After))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
