package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the posterior configuration file
// (~/.config/posterior/config.yaml) and run files passed with --config.
// All sampler fields are pointers so we can distinguish "not set" from zero
// values.
type Config struct {
	Model string `yaml:"model"`

	// Sampler defaults
	Samples         *int     `yaml:"samples"`
	Warmup          *int     `yaml:"warmup"`
	Chains          *int     `yaml:"chains"`
	LeapfrogSteps   *int     `yaml:"leapfrog_steps"`
	StepSize        *float64 `yaml:"step_size"`
	TargetAccept    *float64 `yaml:"target_accept"`
	AdaptMassMatrix *bool    `yaml:"adapt_mass_matrix"`
	Parallel        *bool    `yaml:"parallel"`
	Seed            *uint64  `yaml:"seed"`

	// Data replaces entries of the model's built-in dataset.
	Data map[string][]float64 `yaml:"data"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
	MaxConcurrent *int   `yaml:"max_concurrent"`
	MaxIterations *int   `yaml:"max_iterations"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "posterior", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	cfg, err := loadConfigFile(path)
	if err != nil {
		return Config{}
	}
	return cfg
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// loadRunConfig merges the run file named by --config over the user config.
func loadRunConfig() (Config, error) {
	cfg := LoadConfig()
	if runConfigPath == "" {
		return cfg, nil
	}
	run, err := loadConfigFile(runConfigPath)
	if err != nil {
		return Config{}, err
	}
	return cfg.merge(run), nil
}

// merge returns c with every field set in o taking precedence.
func (c Config) merge(o Config) Config {
	if o.Model != "" {
		c.Model = o.Model
	}
	c.Samples = pick(c.Samples, o.Samples)
	c.Warmup = pick(c.Warmup, o.Warmup)
	c.Chains = pick(c.Chains, o.Chains)
	c.LeapfrogSteps = pick(c.LeapfrogSteps, o.LeapfrogSteps)
	c.StepSize = pick(c.StepSize, o.StepSize)
	c.TargetAccept = pick(c.TargetAccept, o.TargetAccept)
	c.AdaptMassMatrix = pick(c.AdaptMassMatrix, o.AdaptMassMatrix)
	c.Parallel = pick(c.Parallel, o.Parallel)
	c.Seed = pick(c.Seed, o.Seed)
	c.MaxConcurrent = pick(c.MaxConcurrent, o.MaxConcurrent)
	c.MaxIterations = pick(c.MaxIterations, o.MaxIterations)
	if len(o.Data) > 0 {
		merged := make(map[string][]float64, len(c.Data)+len(o.Data))
		maps.Copy(merged, c.Data)
		maps.Copy(merged, o.Data)
		c.Data = merged
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		c.LogFormat = o.LogFormat
	}
	if o.ServerAddress != "" {
		c.ServerAddress = o.ServerAddress
	}
	return c
}

func pick[T any](base, override *T) *T {
	if override != nil {
		return override
	}
	return base
}

// applyModelConfig applies config file defaults shared by the model
// commands when the corresponding CLI flag was not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") {
		modelName = cfg.Model
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}

// applySampleConfig applies config file defaults to sample command variables.
func applySampleConfig(c *cli.Command, cfg Config) {
	applyModelConfig(c, cfg)
	if cfg.Samples != nil && !c.IsSet("samples") {
		numSamples = *cfg.Samples
	}
	if cfg.Warmup != nil && !c.IsSet("warmup") {
		numWarmup = *cfg.Warmup
	}
	if cfg.Chains != nil && !c.IsSet("chains") {
		numChains = *cfg.Chains
	}
	if cfg.LeapfrogSteps != nil && !c.IsSet("leapfrog") {
		numLeapfrog = *cfg.LeapfrogSteps
	}
	if cfg.StepSize != nil && !c.IsSet("step-size") {
		stepSize = *cfg.StepSize
	}
	if cfg.TargetAccept != nil && !c.IsSet("target-accept") {
		targetAccept = *cfg.TargetAccept
	}
	if cfg.AdaptMassMatrix != nil && !c.IsSet("no-adapt-mass") {
		noAdaptMass = !*cfg.AdaptMassMatrix
	}
	if cfg.Parallel != nil && !c.IsSet("parallel") {
		parallel = *cfg.Parallel
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		serveAddr = cfg.ServerAddress
	}
	if cfg.MaxConcurrent != nil && !c.IsSet("max-concurrent") {
		maxConcurrent = *cfg.MaxConcurrent
	}
	if cfg.MaxIterations != nil && !c.IsSet("max-iterations") {
		maxIterations = *cfg.MaxIterations
	}
}

// applyLoggingConfig applies config file defaults to the logging flags.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
