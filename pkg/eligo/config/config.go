package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eligolab/eligo/pkg/eligo/internalerr"
)

// Config represents the application configuration
type Config struct {
	// DatabasePath is the trial/criteria SQLite file.
	DatabasePath string `yaml:"database_path"`

	// RegistryURL overrides the trial registry API base URL.
	RegistryURL string `yaml:"registry_url"`

	// ListenAddr is the HTTP server bind address.
	ListenAddr string `yaml:"listen_addr"`

	// RunRoot holds the per-run NLP working directories.
	RunRoot string `yaml:"run_root"`

	// ExternalCmd is the batch NLP command invoked with a run
	// directory. Empty disables the external step.
	ExternalCmd string `yaml:"external_cmd"`

	// Pipelines names the enabled NLP adapters (ctakes, metamap).
	Pipelines []string `yaml:"pipelines"`

	// CleanupArtifacts removes pipeline input/output files once parsed.
	CleanupArtifacts bool `yaml:"cleanup_artifacts"`

	// Recruiting limits searches to trials with the given recruitment
	// status ("open", "closed", or "" for no limit).
	Recruiting string `yaml:"recruiting"`

	UMLS UMLS `yaml:"umls"`
}

// UMLS configures the SNOMED vocabulary lookup.
type UMLS struct {
	DatabasePath    string `yaml:"database_path"`
	DescriptionFile string `yaml:"description_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DatabasePath: "eligo.db",
		ListenAddr:   ":8000",
		RunRoot:      "runs",
		Pipelines:    []string{"ctakes", "metamap"},
		UMLS:         UMLS{DatabasePath: "umls.db"},
	}
}

// Load loads configuration from a YAML file, filling unset fields with
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty: %w", internalerr.ErrInvalidConfig)
	}
	if c.RunRoot == "" {
		return fmt.Errorf("run_root must not be empty: %w", internalerr.ErrInvalidConfig)
	}
	if len(c.Pipelines) == 0 {
		return fmt.Errorf("at least one pipeline must be enabled: %w", internalerr.ErrInvalidConfig)
	}
	for _, name := range c.Pipelines {
		if name != "ctakes" && name != "metamap" {
			return fmt.Errorf("unknown pipeline %q: %w", name, internalerr.ErrInvalidConfig)
		}
	}
	switch c.Recruiting {
	case "", "open", "closed":
	default:
		return fmt.Errorf("recruiting must be open, closed or empty: %w", internalerr.ErrInvalidConfig)
	}
	return nil
}

// RecruitingFilter translates the recruiting setting into the search
// parameter: nil for no limit.
func (c *Config) RecruitingFilter() *bool {
	switch c.Recruiting {
	case "open":
		v := true
		return &v
	case "closed":
		v := false
		return &v
	}
	return nil
}
