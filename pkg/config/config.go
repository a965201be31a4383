// Package config provides configuration loading and management for profilecompare.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"profilecompare/internal/models"
	"profilecompare/pkg/gamma"
	"profilecompare/pkg/normalize"
	"profilecompare/pkg/parser"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Gamma and convolution criteria
	Criteria struct {
		// Percent is the dose difference criterion in percent
		Percent float64 `yaml:"percent"`

		// DTA is the distance to agreement in mm
		DTA float64 `yaml:"dta"`

		// Threshold excludes measured points below this percentage
		Threshold float64 `yaml:"threshold"`

		// Sigma is the detector response Gaussian sigma in mm (0 disables convolution)
		Sigma float64 `yaml:"sigma"`

		// Truncation is the convolution kernel radius in mm
		Truncation float64 `yaml:"truncation"`
	} `yaml:"criteria"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for convolution and gamma
		NumCores int `yaml:"numCores"`

		// ResampleFactor is the number of reference samples per measured point
		ResampleFactor int `yaml:"resampleFactor"`

		// MinSeparation is the duplicate suppression distance of the dense parser in mm
		MinSeparation float64 `yaml:"minSeparation"`

		// EffectiveDepth is the detector array measurement depth in mm
		EffectiveDepth float64 `yaml:"effectiveDepth"`

		// EarlyExit is the local gamma squared that ends the search for a point
		EarlyExit float64 `yaml:"earlyExit"`

		// DepthProfileSpan is the depth change in mm above which a profile is a depth profile
		DepthProfileSpan float64 `yaml:"depthProfileSpan"`

		// Normalize rescales the calculated profile to the measured one
		Normalize bool `yaml:"normalize"`

		// NormalizeFraction is the averaging radius for lateral normalization as a fraction of FWHM
		NormalizeFraction float64 `yaml:"normalizeFraction"`

		// CentralFraction is the central region radius as a fraction of FWHM
		CentralFraction float64 `yaml:"centralFraction"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// PlotFile is the PNG file the comparison plot is written to (empty disables it)
		PlotFile string `yaml:"plotFile"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default criteria
	cfg.Criteria.Percent = 1.0
	cfg.Criteria.DTA = 1.0
	cfg.Criteria.Threshold = 20.0
	cfg.Criteria.Sigma = 0
	cfg.Criteria.Truncation = 0

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.ResampleFactor = 10
	cfg.Processing.MinSeparation = parser.DefaultMinSeparation
	cfg.Processing.EffectiveDepth = parser.DefaultEffectiveDepth
	cfg.Processing.EarlyExit = gamma.DefaultEarlyExit
	cfg.Processing.DepthProfileSpan = models.DefaultDepthProfileSpan
	cfg.Processing.Normalize = true
	cfg.Processing.NormalizeFraction = normalize.DefaultCentralFraction
	cfg.Processing.CentralFraction = gamma.DefaultCentralFraction

	// Set default output parameters
	cfg.Output.Verbose = true

	return cfg
}

// GammaCriteria returns the criteria section as a models.Criteria
func (c *Config) GammaCriteria() models.Criteria {
	return models.Criteria{
		Percent:    c.Criteria.Percent,
		DTA:        c.Criteria.DTA,
		Threshold:  c.Criteria.Threshold,
		Sigma:      c.Criteria.Sigma,
		Truncation: c.Criteria.Truncation,
	}
}

// ParserOptions returns the parsing options of the processing section
func (c *Config) ParserOptions() parser.Options {
	return parser.Options{
		MinSeparation:  c.Processing.MinSeparation,
		EffectiveDepth: c.Processing.EffectiveDepth,
	}
}

// Validate checks the configuration for values the pipeline cannot use
func (c *Config) Validate() error {
	if err := c.GammaCriteria().Validate(); err != nil {
		return err
	}
	if c.Processing.ResampleFactor < 1 {
		return fmt.Errorf("resampleFactor must be at least 1, got %d", c.Processing.ResampleFactor)
	}
	if c.Processing.MinSeparation < 0 {
		return fmt.Errorf("minSeparation must not be negative, got %g", c.Processing.MinSeparation)
	}
	if c.Processing.EarlyExit < 0 {
		return fmt.Errorf("earlyExit must not be negative, got %g", c.Processing.EarlyExit)
	}
	return nil
}

// LoadConfig reads the YAML file at configPath over the defaults and
// validates the result. A missing file yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating parent directories as needed
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
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

// CreateDefaultConfigFile writes the default configuration to configPath
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
