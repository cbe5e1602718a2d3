// Package config loads reverie's yaml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all reverie configuration.
type Config struct {
	// LLM backend
	LLM LLMConfig `yaml:"llm"`

	// Storage paths
	Storage StorageConfig `yaml:"storage"`

	// Character personas
	CharactersDir string `yaml:"characters_dir"`

	// Quota
	Limits LimitsConfig `yaml:"limits"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation backend.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Offline bool   `yaml:"offline"` // use the scripted transport, no network
}

// StorageConfig configures the local event log.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	DatabasePath string `yaml:"database_path"`
}

// LimitsConfig configures the per-conversation turn quota.
type LimitsConfig struct {
	TurnLimit int `yaml:"turn_limit"` // -1 = unlimited
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file exists. Data lives
// under ~/.reverie.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".reverie")
	return Config{
		LLM: LLMConfig{
			Model: "gemini-2.5-flash",
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			DatabasePath: filepath.Join(dataDir, "reverie.db"),
		},
		CharactersDir: filepath.Join(dataDir, "characters"),
		Limits: LimitsConfig{
			TurnLimit: -1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, layered over defaults. A missing file
// is not an error. The GEMINI_API_KEY environment variable overrides the
// file's api_key.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	cfg.normalize()
	return cfg, nil
}

// DefaultPath returns ~/.reverie/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".reverie", "config.yaml")
}

func (c *Config) normalize() {
	d := Default()
	if c.LLM.Model == "" {
		c.LLM.Model = d.LLM.Model
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = d.Storage.DataDir
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(c.Storage.DataDir, "reverie.db")
	}
	if c.CharactersDir == "" {
		c.CharactersDir = filepath.Join(c.Storage.DataDir, "characters")
	}
	if c.Limits.TurnLimit == 0 {
		c.Limits.TurnLimit = d.Limits.TurnLimit
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// Validate reports configuration the app cannot start with.
func (c Config) Validate() error {
	if !c.LLM.Offline && c.LLM.APIKey == "" {
		return fmt.Errorf("no API key configured: set llm.api_key or GEMINI_API_KEY, or run with --offline")
	}
	if c.Limits.TurnLimit < -1 {
		return fmt.Errorf("limits.turn_limit must be -1 (unlimited) or a positive count")
	}
	return nil
}
