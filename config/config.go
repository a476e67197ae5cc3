// Package config loads isaforge's TOML settings file: execution limits,
// TLB sizing, trace defaults, and register/memory display formatting.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config is isaforge's top-level settings document.
type Config struct {
	Execution struct {
		MaxInstructions int  `toml:"max_instructions"`
		TLBSets         int  `toml:"tlb_sets"`
		EnableStats     bool `toml:"enable_stats"`
	} `toml:"execution"`

	Trace struct {
		EnabledByDefault bool `toml:"enabled_by_default"`
		BufferSize       int  `toml:"buffer_size"`
	} `toml:"trace"`

	Display struct {
		NumberFormat string `toml:"number_format"` // hex, dec, both
		BytesPerLine int    `toml:"bytes_per_line"`
	} `toml:"display"`

	Relay struct {
		ListenAddr string `toml:"listen_addr"`
	} `toml:"relay"`
}

// DefaultConfig returns the settings isaforge runs with when no config
// file is present.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Execution.MaxInstructions = 1_000_000
	cfg.Execution.TLBSets = 256
	cfg.Execution.EnableStats = false

	cfg.Trace.EnabledByDefault = false
	cfg.Trace.BufferSize = 4096

	cfg.Display.NumberFormat = "hex"
	cfg.Display.BytesPerLine = 16

	cfg.Relay.ListenAddr = "127.0.0.1:8787"

	return cfg
}

// GetConfigPath returns the platform-specific config file path.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "isaforge")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "isaforge")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the default config file.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from path, returning defaults unmodified
// when the file does not exist.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
