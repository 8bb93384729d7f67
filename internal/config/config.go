// Package config holds the supertask server and engine configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds configuration for the supertask HTTP server.
type ServerConfig struct {
	Addr      string `toml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `toml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `toml:"log_format"` // Log format: text, json
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// EngineConfig holds the scheduler tunables.
type EngineConfig struct {
	Concurrency int           `toml:"concurrency"` // Jobs dispatched per tick (default 1000)
	Timeout     time.Duration `toml:"timeout"`     // Slot reclaim timeout (default 1s)
	// Reclaim frees a job's concurrency slot once Timeout elapses, even if
	// the job has not completed.
	Reclaim           bool `toml:"reclaim"`
	Strict            bool `toml:"strict"`             // Require a callback on every invocation
	OptimizationLevel int  `toml:"optimization_level"` // 0-3
	OptimizationFlags uint `toml:"optimization_flags"`
	BacklogHint       int  `toml:"backlog_hint"` // Initial backlog capacity
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Concurrency:       1000,
		Timeout:           time.Second,
		OptimizationLevel: 1,
	}
}

// Validate reports settings the engine cannot run with.
func (c EngineConfig) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	case c.OptimizationLevel < 0 || c.OptimizationLevel > 3:
		return fmt.Errorf("optimization level must be 0-3, got %d", c.OptimizationLevel)
	case c.BacklogHint < 0:
		return fmt.Errorf("backlog hint must not be negative, got %d", c.BacklogHint)
	}
	return nil
}

// Config is the full supertask configuration file.
type Config struct {
	Server   ServerConfig `toml:"server"`
	Engine   EngineConfig `toml:"engine"`
	Manifest string       `toml:"manifest"` // Task manifest to load at startup
	Watch    bool         `toml:"watch"`    // Re-apply the manifest when it changes
	Path     string       `toml:"-"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: DefaultServerConfig(),
		Engine: DefaultEngineConfig(),
	}
}

// Load reads a TOML file over the defaults. Keys absent from the file keep
// their default values; unknown keys are an error.
func Load(path string) (Config, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	cfg := Default()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Engine.Validate(); err != nil {
		return Config{}, fmt.Errorf("engine config: %w", err)
	}
	if cfg.Manifest != "" && !filepath.IsAbs(cfg.Manifest) {
		cfg.Manifest = filepath.Join(filepath.Dir(resolved), cfg.Manifest)
	}
	cfg.Path = resolved
	return cfg, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")
	return filepath.Join(home, trimmed), nil
}
