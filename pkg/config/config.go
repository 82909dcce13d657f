// Package config provides configuration loading and management for
// mricoilprep. It handles loading configuration from YAML files and provides
// default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Coil sensitivity estimation parameters
	Estimation struct {
		// SmoothingWindow is the box size used to smooth the per-pixel
		// coil covariance before eigenvector extraction
		SmoothingWindow int `yaml:"smoothingWindow"`

		// Iterations is the fixed power-method iteration count per pixel
		Iterations int `yaml:"iterations"`

		// NumCores specifies how many CPU cores to use for the per-pixel loop
		NumCores int `yaml:"numCores"`
	} `yaml:"estimation"`

	// Noise prewhitening parameters
	Prewhitening struct {
		// ScaleFactor is the acquisition-to-calibration dwell-time ratio
		// times the receiver bandwidth ratio
		ScaleFactor float64 `yaml:"scaleFactor"`

		// NoiseSamples is the number of noise-only calibration samples
		// drawn per coil
		NoiseSamples int `yaml:"noiseSamples"`
	} `yaml:"prewhitening"`

	// Synthetic phantom parameters used by the demo pipeline
	Phantom struct {
		// Coils is the number of simulated receive channels
		Coils int `yaml:"coils"`

		// Size is the phantom image edge length in pixels
		Size int `yaml:"size"`

		// NoiseSigma is the per-component standard deviation of the
		// complex Gaussian noise added to the coil images
		NoiseSigma float64 `yaml:"noiseSigma"`

		// CoilCorrelation couples noise between neighbouring coils;
		// 0 leaves the channels independent
		CoilCorrelation float64 `yaml:"coilCorrelation"`

		// Seed makes the synthetic data reproducible
		Seed uint64 `yaml:"seed"`
	} `yaml:"phantom"`

	// Output parameters
	Output struct {
		// Dir is the directory where rendered maps are written
		Dir string `yaml:"dir"`

		// SaveMaps determines whether sensitivity and power maps are
		// rendered to PNG files
		SaveMaps bool `yaml:"saveMaps"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default estimation parameters (standard Walsh-method values)
	cfg.Estimation.SmoothingWindow = 5
	cfg.Estimation.Iterations = 3
	cfg.Estimation.NumCores = runtime.NumCPU()

	// Set default prewhitening parameters
	cfg.Prewhitening.ScaleFactor = 1.0
	cfg.Prewhitening.NoiseSamples = 4096

	// Set default phantom parameters
	cfg.Phantom.Coils = 8
	cfg.Phantom.Size = 128
	cfg.Phantom.NoiseSigma = 0.05
	cfg.Phantom.CoilCorrelation = 0.3
	cfg.Phantom.Seed = 1

	// Set default output parameters
	cfg.Output.Dir = "coil_maps"
	cfg.Output.SaveMaps = true
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
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
