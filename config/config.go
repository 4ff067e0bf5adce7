// Package config loads the fluidframe.yaml project file, applies
// FLUIDFRAME_* environment overrides and builds the process logger.
package config

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file the CLI looks for in the working directory.
const DefaultPath = "fluidframe.yaml"

// Config holds the full fluidframe configuration.
type Config struct {
	Listen            string          `yaml:"listen"`
	Title             string          `yaml:"title"`
	Reload            bool            `yaml:"reload"`
	BuildDir          string          `yaml:"build_dir"`
	SrcDir            string          `yaml:"src_dir"`
	Scripts           []string        `yaml:"scripts"`
	Styles            []string        `yaml:"styles"`
	SessionSecret     string          `yaml:"session_secret"`
	SecureCookies     bool            `yaml:"secure_cookies"`
	StateDB           string          `yaml:"state_db"`
	StateRetention    time.Duration   `yaml:"state_retention"`
	LogLevel          string          `yaml:"log_level"`
	LogFile           string          `yaml:"log_file"`
	SanitizeFragments bool            `yaml:"sanitize_fragments"`
	Metrics           MetricsConfig   `yaml:"metrics"`
	Watch             WatchConfig     `yaml:"watch"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

// WatchConfig configures hot reload polling.
type WatchConfig struct {
	Dir        string        `yaml:"dir"`
	Extensions []string      `yaml:"extensions"`
	Interval   time.Duration `yaml:"interval"`
	Debounce   time.Duration `yaml:"debounce"`
}

// RateLimitConfig limits event route calls per client. MaxRequests 0
// disables it.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// MetricsConfig controls event timing datapoints written to the state
// database.
type MetricsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention time.Duration `yaml:"retention"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8000",
		Title:    "Fluidframe App",
		Reload:   true,
		BuildDir: "fluidframe",
		SrcDir:   "src",
		Scripts: []string{
			"/public/scripts/dependency_manager.js",
			"https://cdnjs.cloudflare.com/ajax/libs/htmx/2.0.2/htmx.min.js",
		},
		Styles: []string{
			"https://cdnjs.cloudflare.com/ajax/libs/tailwindcss/2.2.19/tailwind.min.css",
		},
		StateDB:  ".fluidframe/state.db",
		LogLevel: "info",
		Watch: WatchConfig{
			Extensions: []string{".go", ".html", ".css", ".js", ".yaml"},
			Interval:   500 * time.Millisecond,
			Debounce:   300 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{Window: time.Minute},
		Metrics:   MetricsConfig{Enabled: true, Retention: 7 * 24 * time.Hour},

		// Matches the session cookie lifetime.
		StateRetention: 7 * 24 * time.Hour,
	}
}

// LoadConfig reads a YAML config file over DefaultConfig, then applies
// environment overrides. Unknown keys are an error. A missing file at
// DefaultPath is not: defaults and environment apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from FLUIDFRAME_* variables read through
// getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	env := func(key string, dst *string) {
		if v := getenv("FLUIDFRAME_" + key); v != "" {
			*dst = v
		}
	}
	env("LISTEN", &c.Listen)
	env("TITLE", &c.Title)
	env("SESSION_SECRET", &c.SessionSecret)
	env("STATE_DB", &c.StateDB)
	env("LOG_LEVEL", &c.LogLevel)
	env("LOG_FILE", &c.LogFile)
	env("BUILD_DIR", &c.BuildDir)
	env("SRC_DIR", &c.SrcDir)
	if v := getenv("FLUIDFRAME_RELOAD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Reload = b
		}
	}
	if v := getenv("FLUIDFRAME_METRICS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Metrics.Enabled = b
		}
	}
	if v := getenv("PORT"); v != "" && getenv("FLUIDFRAME_LISTEN") == "" {
		host, _, err := net.SplitHostPort(c.Listen)
		if err != nil {
			host = ""
		}
		c.Listen = net.JoinHostPort(host, v)
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.BuildDir == "" {
		return fmt.Errorf("build_dir is required")
	}
	if c.SrcDir == "" {
		return fmt.Errorf("src_dir is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Reload && c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be > 0")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be >= 0")
	}
	if c.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("rate_limit.max_requests must be >= 0")
	}
	if c.RateLimit.MaxRequests > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be > 0")
	}
	if c.StateRetention < 0 || c.Metrics.Retention < 0 {
		return fmt.Errorf("retention must be >= 0")
	}
	return nil
}

// WatchDir is the directory polled for hot reload: watch.dir, or src_dir.
func (c *Config) WatchDir() string {
	if c.Watch.Dir != "" {
		return c.Watch.Dir
	}
	return c.SrcDir
}

// SessionKey derives the 32-byte session signing key from session_secret
// via SHA-256. Without a secret a random key is generated, so sessions do
// not survive a restart.
func (c *Config) SessionKey() []byte {
	if c.SessionSecret == "" {
		key := make([]byte, 32)
		rand.Read(key)
		return key
	}
	sum := sha256.Sum256([]byte(c.SessionSecret))
	return sum[:]
}

// ParseLevel maps a log_level value to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unsupported log_level %q (use debug, info, warn or error)", s)
}

// Logger builds the process logger: a text handler on w, fanned out to a
// JSON handler appending to log_file when one is configured. The returned
// close function releases the file.
func (c *Config) Logger(w io.Writer) (*slog.Logger, func() error, error) {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	handlers := []slog.Handler{slog.NewTextHandler(w, opts)}
	closeFn := func() error { return nil }

	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closeFn = f.Close
	}
	return slog.New(slogmulti.Fanout(handlers...)), closeFn, nil
}
