package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for postpatch
type Config struct {
	// Profile selects the generator revision: "legacy" or "current"
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`

	// Dialects restricts the profile's jobs; empty patches every dialect
	Dialects []string `json:"dialects,omitempty" yaml:"dialects,omitempty"`

	// Definitions maps IR function names to literal replacement definitions
	Definitions map[string]string `json:"definitions,omitempty" yaml:"definitions,omitempty"`

	// ContinueOnContractError keeps patching after a magic ID type mismatch
	ContinueOnContractError bool `json:"continueOnContractError,omitempty" yaml:"continueOnContractError,omitempty"`

	// Verify contains checks run on patched output
	Verify VerifyConfig `json:"verify,omitempty" yaml:"verify,omitempty"`

	// Audit contains post-patch policy configuration
	Audit AuditConfig `json:"audit,omitempty" yaml:"audit,omitempty"`

	Timing  TimingConfig  `json:"timing,omitempty" yaml:"timing,omitempty"`
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// VerifyConfig controls output verification
type VerifyConfig struct {
	// Syntax parses CUDA and HLS output with tree-sitter
	Syntax bool `json:"syntax,omitempty" yaml:"syntax,omitempty"`
}

// AuditConfig controls the post-patch audit
type AuditConfig struct {
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// PolicyDir holds extra .rego files evaluated with the built-in rules
	PolicyDir string `json:"policyDir,omitempty" yaml:"policyDir,omitempty"`

	// Rules maps rule names to severity: "off", "info", "warning", "error"
	Rules map[string]string `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// TimingConfig controls the JSONL timing log
type TimingConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// MetricsConfig controls the Prometheus textfile output
type MetricsConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Profile:     "current",
		Dialects:    []string{},
		Definitions: map[string]string{},
		Audit: AuditConfig{
			Enabled: boolPtr(true),
			Rules:   map[string]string{},
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

var configNames = []string{"postpatch.json", ".postpatch.json", "postpatch.yaml", ".postpatch.yaml"}

// Load finds and loads the configuration file
// Search order:
//  1. $POSTPATCH_CONFIG
//  2. ./postpatch.json, ./.postpatch.json, ./postpatch.yaml, ./.postpatch.yaml
//  3. the same names in the directory of base (if different from cwd)
//  4. ~/.config/postpatch/config.json
//
// Returns DefaultConfig if no config file is found
func Load(base string) (*Config, error) {
	if envPath := os.Getenv("POSTPATCH_CONFIG"); envPath != "" {
		return LoadFile(envPath)
	}

	cwd, _ := os.Getwd()
	var searchPaths []string
	for _, name := range configNames {
		searchPaths = append(searchPaths, filepath.Join(cwd, name))
	}

	if base != "" {
		baseDir, _ := filepath.Abs(filepath.Dir(base))
		if baseDir != cwd {
			for _, name := range configNames {
				searchPaths = append(searchPaths, filepath.Join(baseDir, name))
			}
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "postpatch", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile loads configuration from a specific file. Files ending in .yaml
// or .yml are read as YAML, everything else as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	return &cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// applyDefaults fills in missing configuration with defaults
func (c *Config) applyDefaults() {
	if c.Profile == "" {
		c.Profile = "current"
	}
	if c.Dialects == nil {
		c.Dialects = []string{}
	}
	if c.Definitions == nil {
		c.Definitions = make(map[string]string)
	}
	if c.Audit.Enabled == nil {
		c.Audit.Enabled = boolPtr(true)
	}
	if c.Audit.Rules == nil {
		c.Audit.Rules = make(map[string]string)
	}
}

// applyEnv lets the environment override file settings
func (c *Config) applyEnv() {
	if profile := os.Getenv("POSTPATCH_PROFILE"); profile != "" {
		c.Profile = profile
	}
}

// Save writes the configuration to a file, as YAML or JSON by extension
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// AuditEnabled reports whether the post-patch audit runs
func (c *Config) AuditEnabled() bool {
	return c.Audit.Enabled == nil || *c.Audit.Enabled
}

// GetRuleSeverity returns the severity for an audit rule, or the default if not configured
func (c *Config) GetRuleSeverity(rule string, defaultSeverity string) string {
	if severity, ok := c.Audit.Rules[rule]; ok {
		return severity
	}
	return defaultSeverity
}

// IsRuleEnabled returns true if the audit rule is not set to "off"
func (c *Config) IsRuleEnabled(rule string) bool {
	if severity, ok := c.Audit.Rules[rule]; ok {
		return severity != "off"
	}
	return true // enabled by default
}
