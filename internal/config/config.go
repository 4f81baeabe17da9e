// Package config loads generator settings from an .mcpgen.yaml file and
// merges command line overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name looked up next to the source package.
const DefaultFile = ".mcpgen.yaml"

// Config drives one generation run.
type Config struct {
	// Server names the generated server towards clients.
	Server Server `yaml:"server"`
	// Module is the module path of the generated go.mod. Empty suppresses
	// module file generation.
	Module string `yaml:"module"`
	// Source is the directory of the annotated package.
	Source string `yaml:"source"`
	// Out is the output directory for generated files.
	Out string `yaml:"out"`
	// Include and Exclude are glob patterns over exported function names.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Server identifies the generated server.
type Server struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{Version: "0.1.0"},
		Source: ".",
		Out:    "mcpserver",
	}
}

// Load reads the file at path. A missing file at the default location is
// not an error; a missing explicit path is.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg.normalize()
}

func (c Config) normalize() (Config, error) {
	if c.Source == "" {
		c.Source = "."
	}
	if c.Out == "" {
		c.Out = "mcpserver"
	}
	if c.Server.Version == "" {
		c.Server.Version = "0.1.0"
	}
	return c, nil
}

// ServerName returns the configured name, falling back to the source
// package name.
func (c Config) ServerName(pkgName string) string {
	if c.Server.Name != "" {
		return c.Server.Name
	}
	return pkgName
}
