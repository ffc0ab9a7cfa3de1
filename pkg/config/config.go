// Package config provides configuration loading and management for
// patchflow. It handles loading configuration from YAML files and provides
// default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Grid parameters control patch placement
	Grid struct {
		// PatchSize is the square patch extent in pixels
		PatchSize int `yaml:"patchSize"`

		// Stride is the spacing between patch midpoints; strides below
		// PatchSize make neighbouring patches overlap
		Stride int `yaml:"stride"`
	} `yaml:"grid"`

	// Alignment parameters control the per-patch Gauss-Newton loop
	Alignment struct {
		// Model selects the motion family: translation, affine or homography
		Model string `yaml:"model"`

		// MaxIterations bounds the refinement steps per patch
		MaxIterations int `yaml:"maxIterations"`

		// Tolerance stops a patch once its update norm falls below it
		Tolerance float64 `yaml:"tolerance"`
	} `yaml:"alignment"`

	// Densify parameters control the confidence-weighted merge
	Densify struct {
		// MinError is the per-channel photometric cost floor (epsilon)
		MinError float64 `yaml:"minError"`

		// Workers is the number of parallel workers; 0 uses all CPU cores
		Workers int `yaml:"workers"`
	} `yaml:"densify"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// MagnitudeImage is where the flow magnitude rendering is written
		MagnitudeImage string `yaml:"magnitudeImage"`

		// DirectionImage is where the flow direction rendering is written
		DirectionImage string `yaml:"directionImage"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Grid.PatchSize = 17
	cfg.Grid.Stride = 8

	cfg.Alignment.Model = "translation"
	cfg.Alignment.MaxIterations = 20
	cfg.Alignment.Tolerance = 1e-3

	cfg.Densify.MinError = 1e-4
	cfg.Densify.Workers = runtime.NumCPU()

	cfg.Output.Verbose = true
	cfg.Output.MagnitudeImage = "flow_magnitude.png"
	cfg.Output.DirectionImage = "flow_direction.png"

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
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

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
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

// CreateDefaultConfigFile creates a default configuration file at the specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
