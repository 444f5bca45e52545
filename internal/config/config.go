// Package config loads hyperdb configuration from a YAML file.
//
// Values start from Default, are overlaid by the file, and are finally
// overridden by command-line flags in the CLI. ${VAR} and ${VAR:-default}
// in backend.path expand from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/store"
)

// Backend kinds.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config is the complete configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	// Kind is memory, sqlite or badger.
	Kind string `yaml:"kind"`

	// Path is the sqlite database file or the badger directory.
	Path string `yaml:"path"`

	// SyncWrites trades write throughput for durability.
	SyncWrites bool `yaml:"sync_writes"`
}

// StoreConfig configures the atom store.
type StoreConfig struct {
	// UnorderedLinkTypes are link types queried regardless of target order.
	UnorderedLinkTypes []string `yaml:"unordered_link_types"`

	// MaxDepth bounds link nesting.
	MaxDepth int `yaml:"max_depth"`

	// MaxArity bounds targets per link.
	MaxArity int `yaml:"max_arity"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Kind: BackendMemory,
		},
		Store: StoreConfig{
			UnorderedLinkTypes: append([]string(nil), store.DefaultUnorderedTypes...),
			MaxDepth:           atom.DefaultMaxDepth,
			MaxArity:           store.DefaultMaxArity,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// LoadFile reads path over the defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Backend.Path = expandVars(cfg.Backend.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend.Kind {
	case BackendMemory:
	case BackendSQLite, BackendBadger:
		if c.Backend.Path == "" {
			errs = append(errs, fmt.Errorf("backend.path is required for %s", c.Backend.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid backend.kind: %q", c.Backend.Kind))
	}

	if c.Store.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("store.max_depth must be positive, got %d", c.Store.MaxDepth))
	}
	if c.Store.MaxArity <= 0 {
		errs = append(errs, fmt.Errorf("store.max_arity must be positive, got %d", c.Store.MaxArity))
	}
	for i, typ := range c.Store.UnorderedLinkTypes {
		if strings.TrimSpace(typ) == "" {
			errs = append(errs, fmt.Errorf("store.unordered_link_types[%d] is empty", i))
		}
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log.format: %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log.level: %q", s)
	}
	return level, nil
}

// NewLogger builds the logger described by c.Log, writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// StoreOptions converts the store section to store.Options.
func (c *Config) StoreOptions(logger *slog.Logger, metrics *store.Metrics) store.Options {
	unordered := c.Store.UnorderedLinkTypes
	if unordered == nil {
		unordered = []string{}
	}
	return store.Options{
		UnorderedTypes: unordered,
		MaxDepth:       c.Store.MaxDepth,
		MaxArity:       c.Store.MaxArity,
		Logger:         logger,
		Metrics:        metrics,
	}
}
