// Package config handles layered YAML configuration with environment
// overrides: a global engine section plus one opaque stanza per plugin id.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all pipelinerunner configuration: engine-wide settings plus
// one opaque YAML node per plugin id. The nodes are decoded and merged
// across layers; no plugin reads them.
type Config struct {
	Global  Global               `yaml:"global"`
	Plugins map[string]yaml.Node `yaml:"plugins"`
}

// Global holds engine-wide settings.
type Global struct {
	ContextPath   string   `yaml:"contextPath"`
	MaxRetries    int      `yaml:"maxRetries"`
	OutputDir     string   `yaml:"outputDir"`
	PromptsDir    string   `yaml:"promptsDir"`
	CompilerFlags []string `yaml:"compilerFlags"`
	StallWindow   int      `yaml:"stallWindow"`
	MetricsAddr   string   `yaml:"metricsAddr"`
	TemplatesDir  string   `yaml:"templatesDir"`
}

// DefaultConfig returns a Config with the built-in defaults:
// maxRetries=25, outputDir=".".
func DefaultConfig() Config {
	return Config{
		Global: Global{
			MaxRetries:  25,
			OutputDir:   ".",
			StallWindow: 3,
		},
		Plugins: map[string]yaml.Node{},
	}
}

// Load reads a single YAML config file at path and returns a Config. For
// merging multiple config sources, use LoadLayered instead. If the file
// does not exist, defaults are returned without error. If the file
// contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return &cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.Global.MaxRetries < 0 {
		return fmt.Errorf("config: global.maxRetries must be non-negative, got %d", c.Global.MaxRetries)
	}
	if c.Global.OutputDir == "" {
		return errors.New("config: global.outputDir cannot be empty")
	}
	if c.Global.StallWindow < 0 {
		return fmt.Errorf("config: global.stallWindow must be non-negative, got %d", c.Global.StallWindow)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: PIPELINERUNNER_MAX_RETRIES, PIPELINERUNNER_OUTPUT_DIR,
// PIPELINERUNNER_PROMPTS_DIR.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PIPELINERUNNER_MAX_RETRIES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return fmt.Errorf("config: invalid PIPELINERUNNER_MAX_RETRIES %q: %w", v, err)
		}
		c.Global.MaxRetries = n
	}
	if v := os.Getenv("PIPELINERUNNER_OUTPUT_DIR"); v != "" {
		c.Global.OutputDir = v
	}
	if v := os.Getenv("PIPELINERUNNER_PROMPTS_DIR"); v != "" {
		c.Global.PromptsDir = v
	}
	return nil
}

// rawConfig mirrors Config but uses a pointer for Global to distinguish
// set vs unset, and a raw map for Plugins (a layer replaces each plugin
// stanza it defines as a whole and leaves other ids untouched, since
// merging a stanza field-by-field would require per-plugin schema
// knowledge this package does not have).
type rawConfig struct {
	Global  *rawGlobal           `yaml:"global"`
	Plugins map[string]yaml.Node `yaml:"plugins"`
}

type rawGlobal struct {
	ContextPath   *string  `yaml:"contextPath"`
	MaxRetries    *int     `yaml:"maxRetries"`
	OutputDir     *string  `yaml:"outputDir"`
	PromptsDir    *string  `yaml:"promptsDir"`
	CompilerFlags []string `yaml:"compilerFlags"`
	StallWindow   *int     `yaml:"stallWindow"`
	MetricsAddr   *string  `yaml:"metricsAddr"`
	TemplatesDir  *string  `yaml:"templatesDir"`
}

// loadLayer reads a single config file into a rawConfig for selective
// merging. Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if layer.Global != nil {
		if layer.Global.ContextPath != nil {
			c.Global.ContextPath = *layer.Global.ContextPath
		}
		if layer.Global.MaxRetries != nil {
			c.Global.MaxRetries = *layer.Global.MaxRetries
		}
		if layer.Global.OutputDir != nil {
			c.Global.OutputDir = *layer.Global.OutputDir
		}
		if layer.Global.PromptsDir != nil {
			c.Global.PromptsDir = *layer.Global.PromptsDir
		}
		if layer.Global.CompilerFlags != nil {
			c.Global.CompilerFlags = layer.Global.CompilerFlags
		}
		if layer.Global.StallWindow != nil {
			c.Global.StallWindow = *layer.Global.StallWindow
		}
		if layer.Global.MetricsAddr != nil {
			c.Global.MetricsAddr = *layer.Global.MetricsAddr
		}
		if layer.Global.TemplatesDir != nil {
			c.Global.TemplatesDir = *layer.Global.TemplatesDir
		}
	}
	if layer.Plugins != nil {
		if c.Plugins == nil {
			c.Plugins = map[string]yaml.Node{}
		}
		for id, node := range layer.Plugins {
			c.Plugins[id] = node
		}
	}
}
