// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Defaults applied by LoadFromEnv.
const (
	DefaultCacheDir           = "./caches"
	DefaultReportDBPath       = "./ddl-cache.sqlite"
	DefaultScanTimeout        = 30 * time.Second
	DefaultRefreshParallelism = 4
	DefaultRefreshTimeout     = 5 * time.Minute
)

// Config holds the settings shared by every ddl-cache command.
type Config struct {
	DatabaseURL  string // PostgreSQL connection string holding the cache columns
	CacheDir     string // directory of YAML cache rules (default "./caches")
	ReportDBPath string // SQLite file for scan reports (default "./ddl-cache.sqlite")
	LogLevel     string // log level: debug, info, warn, error (default "info")

	// Scanning
	ScanTimeout time.Duration // per-column query budget (default 30s)

	// Refreshing
	RefreshParallelism int           // concurrent updates within one level (default 4)
	RefreshRate        float64       // update statements per second, 0 = unlimited
	RefreshTimeout     time.Duration // per-statement budget (default 5m)

	// AuditSchedule is a standard 5-field cron spec; empty disables
	// scheduled audits.
	AuditSchedule string

	// Aggregators lists aggregate functions recognized in addition to the
	// built-in ones.
	Aggregators []string

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadFromEnv loads configuration from environment variables. Unparseable
// numeric values fall back to their defaults with a warning; an invalid
// AUDIT_SCHEDULE is an error.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		CacheDir:      os.Getenv("CACHE_DIR"),
		ReportDBPath:  os.Getenv("REPORT_DB_PATH"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AuditSchedule: strings.TrimSpace(os.Getenv("AUDIT_SCHEDULE")),
	}

	cfg.ScanTimeout = cfg.parseDuration("SCAN_TIMEOUT", DefaultScanTimeout)
	cfg.RefreshTimeout = cfg.parseDuration("REFRESH_TIMEOUT", DefaultRefreshTimeout)

	cfg.RefreshParallelism = DefaultRefreshParallelism
	if v := os.Getenv("REFRESH_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RefreshParallelism = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("REFRESH_PARALLELISM=%q is not a positive integer, using %d", v, DefaultRefreshParallelism))
		}
	}
	if v := os.Getenv("REFRESH_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.RefreshRate = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("REFRESH_RATE=%q is not a non-negative number, refresh is unthrottled", v))
		}
	}

	if v := os.Getenv("AGGREGATORS"); v != "" {
		names := strings.Split(v, ",")
		for i := range names {
			names[i] = strings.ToLower(strings.TrimSpace(names[i]))
		}
		cfg.Aggregators = compactNonEmpty(names)
	}

	// Defaults
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}
	if cfg.ReportDBPath == "" {
		cfg.ReportDBPath = DefaultReportDBPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AuditSchedule != "" {
		if _, err := cron.ParseStandard(cfg.AuditSchedule); err != nil {
			return nil, fmt.Errorf("AUDIT_SCHEDULE %q: %w", cfg.AuditSchedule, err)
		}
	}

	return cfg, nil
}

func (c *Config) parseDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a positive duration, using %s", key, v, def))
		return def
	}
	return d
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes matching surrounding double or single quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
