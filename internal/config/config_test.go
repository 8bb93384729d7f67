package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "supertask.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr != ":8080" || cfg.Server.LogLevel != "info" || cfg.Server.LogFormat != "text" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Engine.Concurrency != 1000 || cfg.Engine.Timeout != time.Second {
		t.Errorf("engine defaults = %+v", cfg.Engine)
	}
	if err := cfg.Engine.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
manifest = "tasks.yaml"
watch = true

[server]
addr = ":9090"

[engine]
concurrency = 8
timeout = "250ms"
reclaim = true
optimization_level = 3
optimization_flags = 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel lost its default: %q", cfg.Server.LogLevel)
	}
	e := cfg.Engine
	if e.Concurrency != 8 || e.Timeout != 250*time.Millisecond || !e.Reclaim || e.OptimizationLevel != 3 || e.OptimizationFlags != 5 {
		t.Errorf("engine = %+v", e)
	}
	if !cfg.Watch {
		t.Error("Watch = false")
	}
	if want := filepath.Join(filepath.Dir(path), "tasks.yaml"); cfg.Manifest != want {
		t.Errorf("Manifest = %q, want %q", cfg.Manifest, want)
	}
	if cfg.Path != path {
		t.Errorf("Path = %q", cfg.Path)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[engine]\nturbo = true\n", "unknown config keys: engine.turbo"},
		{"invalid concurrency", "[engine]\nconcurrency = 0\n", "concurrency must be at least 1"},
		{"invalid level", "[engine]\noptimization_level = 7\n", "optimization level must be 0-3"},
		{"bad toml", "[engine\n", "decode config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error")
	}
}
