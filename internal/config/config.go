// Package config loads the optional YAML configuration file. Values read
// from the file provide defaults; command-line flags override them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/structweave/stb2ifc/core/integrate"
	"github.com/structweave/stb2ifc/core/model"
)

// File is the on-disk configuration layout.
type File struct {
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Conversion Conversion `yaml:"conversion"`

	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// Conversion mirrors integrate.Config with a human-readable duration
// string for the fallback threshold.
type Conversion struct {
	Mode                string  `yaml:"mode"`
	EnableFallback      *bool   `yaml:"enable_fallback"`
	FallbackThreshold   string  `yaml:"fallback_threshold"`
	DuplicateTolerance  *int    `yaml:"duplicate_tolerance"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// Default returns the built-in configuration.
func Default() File {
	var f File
	f.Logging.Level = "info"
	f.Logging.Format = "text"
	f.History.Path = "stb2ifc-history.db"
	f.Server.Addr = ":8080"
	return f
}

// Load reads path, layering its values over the defaults. A missing file
// is not an error; it yields the defaults.
func Load(path string) (File, error) {
	f := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parsing config: %w", err)
	}
	return f, nil
}

// IntegrateConfig converts the conversion section to an integrate.Config,
// falling back to integrate's defaults for unset fields.
func (f File) IntegrateConfig() (integrate.Config, error) {
	cfg := integrate.DefaultConfig()
	c := f.Conversion

	if c.Mode != "" {
		mode := model.ConversionMode(c.Mode)
		if !mode.IsValid() {
			return cfg, fmt.Errorf("invalid conversion mode %q", c.Mode)
		}
		cfg.Mode = mode
	}
	if c.EnableFallback != nil {
		cfg.EnableFallback = *c.EnableFallback
	}
	if c.FallbackThreshold != "" {
		d, err := time.ParseDuration(c.FallbackThreshold)
		if err != nil {
			return cfg, fmt.Errorf("invalid fallback_threshold: %w", err)
		}
		cfg.FallbackThreshold = d
	}
	if c.DuplicateTolerance != nil {
		cfg.DuplicateTolerance = *c.DuplicateTolerance
	}
	if c.ConfidenceThreshold != 0 {
		cfg.ConfidenceThreshold = c.ConfidenceThreshold
	}
	return cfg, nil
}
