// Package config handles purevm.toml configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/purevm/purevm/vm"
)

// Config is the purevm.toml file.
type Config struct {
	Server Server `toml:"server"`
	Store  Store  `toml:"store"`
	VM     VM     `toml:"vm"`
}

// Server configures the HTTP service.
type Server struct {
	Listen string `toml:"listen"`
}

// Store configures artifact persistence.
type Store struct {
	Path string `toml:"path"`
}

// VM configures execution limits.
type VM struct {
	MemoryLimit int `toml:"memory-limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{Listen: "localhost:8720"},
		Store:  Store{Path: "purevm.db"},
		VM:     VM{MemoryLimit: vm.DefaultMemoryLimit},
	}
}

// Load parses the configuration file at path. An absent file yields the
// defaults; fields the file omits keep their default values.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	if c.VM.MemoryLimit <= 0 {
		return nil, fmt.Errorf("%s: memory-limit must be positive", path)
	}
	return c, nil
}
