// Package config loads and validates the guard's JSON-like configuration
// object (spec §6). The loader itself is a deliberately thin external
// collaborator: it reads the file, applies defaults, and validates the
// required fields, the same shape as peng-shun-AssetsWarden's
// config.LoadConfig, adapted from YAML to JSON per §6's object format.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

const (
	defaultCachePath = "cache/cache.sqlite"
	cacheEnvVar      = "FILEGUARD_CACHE"

	// Defaults chosen to be reasonable placeholders; real deployments are
	// expected to tune these via the statistic/simulation harness.
	defaultCacheCapacityBytes     = 64 << 20 // 64MB
	defaultMaxFileSizeSyncScan    = 10 << 20 // 10MB
)

// WatchMode selects whether watch_target is a single path or an entire
// mount.
type WatchMode string

const (
	WatchModePath  WatchMode = "path"
	WatchModeMount WatchMode = "mount"
)

// Statistical holds the options specific to statistic mode.
type Statistical struct {
	DurationSec int `json:"duration_sec"`
}

// rawConfig mirrors the JSON wire shape exactly, including the
// string-or-array leniency for patterns and the two accepted spellings
// of the cache-size field.
type rawConfig struct {
	WatchMode             WatchMode       `json:"watch_mode"`
	WatchTarget           string          `json:"watch_target"`
	Patterns              json.RawMessage `json:"patterns"`
	CacheCapacityBytes    string          `json:"cache_capacity_bytes"`
	CacheMaxSize          string          `json:"cache_max_size"`
	MaxFileSizeSyncScan   string          `json:"max_file_size_sync_scan"`
	Statistical           Statistical     `json:"statistical"`
}

// Config is the validated, fully-resolved configuration used by the rest
// of the system.
type Config struct {
	WatchMode           WatchMode
	WatchTarget         string
	Patterns            []string
	CacheCapacityBytes  int64
	MaxFileSizeSyncScan int64
	Statistical         Statistical
	CachePath           string
}

// Load reads, parses, applies defaults to, and validates the config file
// at path. The FILEGUARD_CACHE environment variable, if set, overrides
// the cache file path (§6 "Environment").
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg, err := resolve(raw)
	if err != nil {
		return nil, err
	}

	if override := os.Getenv(cacheEnvVar); override != "" {
		cfg.CachePath = override
	}
	return cfg, nil
}

func resolve(raw rawConfig) (*Config, error) {
	cfg := &Config{
		WatchMode:           raw.WatchMode,
		WatchTarget:         raw.WatchTarget,
		CacheCapacityBytes:  defaultCacheCapacityBytes,
		MaxFileSizeSyncScan: defaultMaxFileSizeSyncScan,
		Statistical:         raw.Statistical,
		CachePath:           defaultCachePath,
	}

	if cfg.WatchMode != WatchModePath && cfg.WatchMode != WatchModeMount {
		return nil, fmt.Errorf("config: watch_mode must be %q or %q, got %q", WatchModePath, WatchModeMount, raw.WatchMode)
	}
	if cfg.WatchTarget == "" || !filepath.IsAbs(cfg.WatchTarget) {
		return nil, fmt.Errorf("config: watch_target must be a non-empty absolute path")
	}

	patterns, err := parsePatterns(raw.Patterns)
	if err != nil {
		return nil, err
	}
	cfg.Patterns = patterns

	sizeField := raw.CacheCapacityBytes
	if sizeField == "" {
		sizeField = raw.CacheMaxSize
	}
	if sizeField != "" {
		n, err := parseSize(sizeField)
		if err != nil {
			return nil, fmt.Errorf("config: cache_capacity_bytes: %w", err)
		}
		cfg.CacheCapacityBytes = n
	}

	if raw.MaxFileSizeSyncScan != "" {
		n, err := parseSize(raw.MaxFileSizeSyncScan)
		if err != nil {
			return nil, fmt.Errorf("config: max_file_size_sync_scan: %w", err)
		}
		cfg.MaxFileSizeSyncScan = n
	}

	return cfg, nil
}

// parsePatterns accepts either a JSON array of strings or a single
// string, and tolerates an absent/empty field as "allow-all".
func parsePatterns(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil, nil
		}
		return []string{single}, nil
	}

	return nil, fmt.Errorf("config: patterns must be a string or array of strings")
}

// parseSize parses a human size string restricted to the K/KB/M/MB
// units §6 allows. humanize.ParseBytes accepts a wider unit set (and
// both IEC/SI forms), so the unit is checked against the allowed
// subset first.
func parseSize(s string) (int64, error) {
	if !hasAllowedUnit(s) {
		return 0, fmt.Errorf("unsupported size unit in %q (only K, KB, M, MB allowed)", s)
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return int64(n), nil
}

func hasAllowedUnit(s string) bool {
	for _, suffix := range []string{"KB", "MB", "K", "M"} {
		if hasSuffixFold(s, suffix) {
			return true
		}
	}
	return false
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := range tail {
		a, b := tail[i], suffix[i]
		if a >= 'a' && a <= 'z' {
			a -= 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
