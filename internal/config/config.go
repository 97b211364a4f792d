// Package config loads and validates the medlens configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultLimit      = 1000
	DefaultMaxRecords = 50000

	defaultCacheTTL   = 7 * 24 * time.Hour
	defaultCatalogTTL = 24 * time.Hour
	defaultTimeout    = 60 * time.Second
)

// Environment variables that override file values.
const (
	EnvAppToken = "SOCRATA_APP_TOKEN"
	EnvCacheDir = "MEDLENS_CACHE_DIR"
)

// fileConfig mirrors the expected medlens TOML schema.
type fileConfig struct {
	AppToken          string        `toml:"app_token"`
	CacheDir          string        `toml:"cache_dir"`
	BulkDir           string        `toml:"bulk_dir"`
	DefaultLimit      int           `toml:"default_limit"`
	MaxRecords        int           `toml:"max_records"`
	CacheTTLSeconds   int           `toml:"cache_ttl_seconds"`
	CatalogTTLSeconds int           `toml:"catalog_ttl_seconds"`
	HTTPTimeout       int           `toml:"http_timeout_seconds"`
	Logging           loggingConfig `toml:"logging"`
}

type loggingConfig struct {
	Verbose bool `toml:"verbose"`
	JSON    bool `toml:"json"`
}

// Config is the fully-resolved configuration used by the rest of the
// application.
type Config struct {
	AppToken     string
	CacheDir     string
	BulkDir      string
	DefaultLimit int
	MaxRecords   int
	CacheTTL     time.Duration
	CatalogTTL   time.Duration
	HTTPTimeout  time.Duration
	Verbose      bool
	JSONLogs     bool
}

// LoadOptions tunes config loading behavior.
type LoadOptions struct {
	// Strict turns unknown-key warnings into errors.
	Strict bool
}

// Result wraps a loaded configuration alongside any non-fatal warnings.
type Result struct {
	Config   Config
	Warnings []string
}

// Default resolves a configuration from defaults and the environment alone.
func Default() (Config, error) {
	res, err := load(nil, "", LoadOptions{})
	return res.Config, err
}

// Load reads path, validates it, applies environment overrides, and resolves
// defaults. An empty path skips the file entirely.
func Load(path string, opts LoadOptions) (Result, error) {
	if path == "" {
		return load(nil, "", opts)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	return load(data, path, opts)
}

func load(data []byte, path string, opts LoadOptions) (Result, error) {
	var res Result
	var cfg fileConfig

	if data != nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return res, fmt.Errorf("%s: %w", path, err)
		}
		unknownKeys, err := collectUnknownKeys(data)
		if err != nil {
			return res, fmt.Errorf("%s: %w", path, err)
		}
		if len(unknownKeys) > 0 {
			slices.Sort(unknownKeys)
			message := fmt.Sprintf("%s: unknown configuration keys: %s", path, strings.Join(unknownKeys, ", "))
			if opts.Strict {
				return res, errors.New(message)
			}
			res.Warnings = append(res.Warnings, message)
		}
	}

	if token := os.Getenv(EnvAppToken); token != "" {
		cfg.AppToken = token
	}
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		cfg.CacheDir = dir
	}

	if cfg.CacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return res, fmt.Errorf("resolve cache dir: %w", err)
		}
		cfg.CacheDir = filepath.Join(base, "medlens")
	}
	if cfg.BulkDir == "" {
		cfg.BulkDir = filepath.Join(cfg.CacheDir, "bulk")
	}

	if cfg.DefaultLimit < 0 || cfg.MaxRecords < 0 || cfg.CacheTTLSeconds < 0 ||
		cfg.CatalogTTLSeconds < 0 || cfg.HTTPTimeout < 0 {
		return res, fmt.Errorf("%s: negative values are not allowed", pathOrDefaults(path))
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxRecords == 0 {
		cfg.MaxRecords = DefaultMaxRecords
	}
	if cfg.DefaultLimit > cfg.MaxRecords {
		return res, fmt.Errorf("%s: default_limit (%d) exceeds max_records (%d)",
			pathOrDefaults(path), cfg.DefaultLimit, cfg.MaxRecords)
	}

	res.Config = Config{
		AppToken:     cfg.AppToken,
		CacheDir:     cfg.CacheDir,
		BulkDir:      cfg.BulkDir,
		DefaultLimit: cfg.DefaultLimit,
		MaxRecords:   cfg.MaxRecords,
		CacheTTL:     secondsOr(cfg.CacheTTLSeconds, defaultCacheTTL),
		CatalogTTL:   secondsOr(cfg.CatalogTTLSeconds, defaultCatalogTTL),
		HTTPTimeout:  secondsOr(cfg.HTTPTimeout, defaultTimeout),
		Verbose:      cfg.Logging.Verbose,
		JSONLogs:     cfg.Logging.JSON,
	}
	return res, nil
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func pathOrDefaults(path string) string {
	if path == "" {
		return "configuration"
	}
	return path
}

func collectUnknownKeys(data []byte) ([]string, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	known := map[string]struct{}{
		"app_token":            {},
		"cache_dir":            {},
		"bulk_dir":             {},
		"default_limit":        {},
		"max_records":          {},
		"cache_ttl_seconds":    {},
		"catalog_ttl_seconds":  {},
		"http_timeout_seconds": {},
		"logging":              {},
	}

	unknown := make([]string, 0)
	for key := range raw {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	return unknown, nil
}
