// Package engineconfig loads vvm.toml configuration: register/byte-pool/
// indirection-depth sizing, the GC toggle, native-backend toggles, and
// logging. The sizing keys are loaded and saved but not applied: the
// engine's register count and indirection depth are fixed constants. Grounded on
// lookbusy1344-arm_emulator/config/config.go's DefaultConfig/Load/Save shape.
package engineconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level vvm.toml document.
type Config struct {
	Engine struct {
		RegisterCount      int  `toml:"register_count"`
		BytePoolSize       int  `toml:"byte_pool_size"`
		MaxIndirectDepth   int  `toml:"max_indirect_depth"`
		DisableGCDuringRun bool `toml:"disable_gc_during_run"`
	} `toml:"engine"`

	Native struct {
		Enabled         bool `toml:"enabled"`
		MaxCachedImages int  `toml:"max_cached_images"`
	} `toml:"native"`

	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"` // "text" or "json"
	} `toml:"logging"`
}

// DefaultConfig returns the built-in defaults for engine sizing and logging.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Engine.RegisterCount = 6
	cfg.Engine.BytePoolSize = 65536
	cfg.Engine.MaxIndirectDepth = 8
	cfg.Engine.DisableGCDuringRun = true

	cfg.Native.Enabled = true
	cfg.Native.MaxCachedImages = 8

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// Load reads path, overlaying any present keys onto DefaultConfig. A missing
// file is not an error — the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path in TOML form, creating parent directories as
// needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
