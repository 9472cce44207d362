// Package config loads, defaults and validates the supervisor configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cuemby/burrow/pkg/ipc"
	"github.com/cuemby/burrow/pkg/types"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultPort      = 8080
	DefaultEnv       = "development"
	DefaultFramework = "demo"
)

// EnvVar overrides the default environment name
const EnvVar = "BURROW_ENV"

// debugField carries the debug setting, which may be a boolean or a level name
type debugField struct {
	Debug any `yaml:"debug" toml:"debug"`
}

// Load reads a configuration file. The format is chosen by extension:
// .yaml/.yml or .toml. An empty path returns an empty configuration.
// Defaults are not applied.
func Load(path string) (*types.ClusterConfig, error) {
	cfg := &types.ClusterConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var debug debugField
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &debug); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if _, err := toml.Decode(string(data), &debug); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
	}

	cfg.Debug, err = debugString(debug.Debug)
	if err != nil {
		return nil, fmt.Errorf("invalid debug value in %s: %w", path, err)
	}
	return cfg, nil
}

func debugString(v any) (string, error) {
	switch d := v.(type) {
	case nil:
		return "", nil
	case bool:
		return strconv.FormatBool(d), nil
	case string:
		return d, nil
	default:
		return "", fmt.Errorf("want boolean or level name, got %T", v)
	}
}

// ApplyDefaults fills every unset field
func ApplyDefaults(cfg *types.ClusterConfig) error {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cfg.Cwd = wd
	}
	if !filepath.IsAbs(cfg.Cwd) {
		abs, err := filepath.Abs(cfg.Cwd)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", cfg.Cwd, err)
		}
		cfg.Cwd = abs
	}
	if cfg.Env == "" {
		cfg.Env = os.Getenv(EnvVar)
	}
	if cfg.Env == "" {
		cfg.Env = DefaultEnv
	}
	if cfg.Framework == "" {
		cfg.Framework = DefaultFramework
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = cfg.Workers()
	}
	if cfg.DataDir != "" && !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(cfg.Cwd, cfg.DataDir)
	}
	return nil
}

// Validate checks a configuration after defaults were applied
func Validate(cfg *types.ClusterConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.MaxWorkers < 0 {
		return fmt.Errorf("max workers must not be negative, got %d", cfg.MaxWorkers)
	}
	if info, err := os.Stat(cfg.Cwd); err != nil {
		return fmt.Errorf("working directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("working directory %s is not a directory", cfg.Cwd)
	}

	seen := make(map[string]bool, len(cfg.Agents))
	for _, name := range cfg.Agents {
		switch {
		case strings.TrimSpace(name) == "":
			return fmt.Errorf("agent name must not be empty")
		case reserved(name):
			return fmt.Errorf("agent name %q is reserved", name)
		case seen[name]:
			return fmt.Errorf("duplicate agent name %q", name)
		}
		seen[name] = true
	}
	return nil
}

func reserved(name string) bool {
	switch name {
	case ipc.TargetMaster, ipc.TargetWorkers, ipc.TargetAgents:
		return true
	}
	return false
}
