// Package config loads the optional YAML configuration file.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML file accepted by --config. Positional CLI
// arguments take precedence over values loaded from it.
type Config struct {
	// Root is the directory to watch.
	Root string `yaml:"root"`
	// Ignore lists directory base-name patterns to exclude.
	Ignore []string `yaml:"ignore"`
	// MetricsAddr, when set, is the listen address for the Prometheus
	// endpoint, e.g. ":9190".
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads and decodes the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file: %s", path)
	}
	return &cfg, nil
}
