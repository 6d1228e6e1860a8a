// Package config provides configuration loading and management for dicom2vti.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dicom2vti/pkg/discovery"
	"dicom2vti/pkg/vti"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input parameters
	Input struct {
		// Pattern is the case-sensitive glob that selects slice files
		Pattern string `yaml:"pattern"`
	} `yaml:"input"`

	// Decode parameters
	Decode struct {
		// FlipRows stores image rows bottom-to-top, as VTK expects
		FlipRows bool `yaml:"flipRows"`
	} `yaml:"decode"`

	// Stack parameters
	Stack struct {
		// AllowMismatch zero-pads slices with a smaller in-plane size instead of failing
		AllowMismatch bool `yaml:"allowMismatch"`
	} `yaml:"stack"`

	// Output parameters
	Output struct {
		// HeaderType is the VTK byte-count header type, UInt32 or UInt64
		HeaderType string `yaml:"headerType"`

		// ScalarName names the point data array
		ScalarName string `yaml:"scalarName"`

		// PreviewDir receives PNG previews of the central slices when set
		PreviewDir string `yaml:"previewDir"`

		// SlicesDir receives every slice along x, y and z as PNG images when set
		SlicesDir string `yaml:"slicesDir"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.Pattern = discovery.DefaultPattern

	cfg.Decode.FlipRows = true

	cfg.Stack.AllowMismatch = false

	cfg.Output.HeaderType = string(vti.UInt64)
	cfg.Output.ScalarName = vti.DefaultScalarName

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	return cfg
}

// Validate checks the values that cannot be checked by the YAML decoder
func (c *Config) Validate() error {
	if _, err := filepath.Match(c.Input.Pattern, ""); err != nil {
		return fmt.Errorf("invalid input pattern %q: %w", c.Input.Pattern, err)
	}
	switch vti.HeaderType(c.Output.HeaderType) {
	case vti.UInt32, vti.UInt64:
	default:
		return fmt.Errorf("invalid output header type %q (expected UInt32 or UInt64)", c.Output.HeaderType)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
