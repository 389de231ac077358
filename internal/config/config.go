// Package config loads the Librarian's workspace-scoped configuration
// from .librarian/config.yaml, following the teacher's nested-struct,
// yaml-tagged, defaults-function idiom.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the single source of defaults for every component's options
// record.
type Config struct {
	Workspace string         `yaml:"workspace" json:"workspace"`
	Include   []string       `yaml:"include" json:"include"`
	Exclude   []string       `yaml:"exclude" json:"exclude"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Ledger    LedgerConfig    `yaml:"ledger" json:"ledger"`
	Watcher   WatcherConfig   `yaml:"watcher" json:"watcher"`
	Packs     PacksConfig     `yaml:"packs" json:"packs"`
	Coordinator CoordinatorConfig `yaml:"coordinator" json:"coordinator"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider        string `yaml:"provider" json:"provider"` // ollama|local|disabled
	OllamaEndpoint  string `yaml:"ollamaEndpoint" json:"ollamaEndpoint"`
	OllamaModel     string `yaml:"ollamaModel" json:"ollamaModel"`
	LocalDimensions int    `yaml:"localDimensions" json:"localDimensions"`
}

// StoreConfig tunes the storage engine.
type StoreConfig struct {
	BatchSize         int  `yaml:"batchSize" json:"batchSize"`
	RequireVecIndex   bool `yaml:"requireVecIndex" json:"requireVecIndex"`
	BusyTimeoutMillis int  `yaml:"busyTimeoutMillis" json:"busyTimeoutMillis"`
}

// LedgerConfig tunes evidence staleness assessment.
type LedgerConfig struct {
	StalenessThreshold float64 `yaml:"stalenessThreshold" json:"stalenessThreshold"`
}

// WatcherConfig tunes the filesystem watcher's debounce window.
type WatcherConfig struct {
	DebounceIntervalMillis int `yaml:"debounceIntervalMillis" json:"debounceIntervalMillis"`
}

// PacksConfig tunes context pack assembly.
type PacksConfig struct {
	DefaultTokenBudget int `yaml:"defaultTokenBudget" json:"defaultTokenBudget"`
	CharsPerToken      float64 `yaml:"charsPerToken" json:"charsPerToken"`
}

// CoordinatorConfig tunes query routing and confidence floors.
type CoordinatorConfig struct {
	ConfidenceFloorL0 float64 `yaml:"confidenceFloorL0" json:"confidenceFloorL0"`
	ConfidenceFloorL1 float64 `yaml:"confidenceFloorL1" json:"confidenceFloorL1"`
	ConfidenceFloorL2 float64 `yaml:"confidenceFloorL2" json:"confidenceFloorL2"`
}

// LoggingConfig mirrors internal/logging's own config shape so a single
// YAML file drives both.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debugMode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"jsonFormat" json:"json_format"`
}

// Default returns the Librarian's default configuration.
func Default(workspace string) Config {
	return Config{
		Workspace: workspace,
		Include:   []string{"**/*"},
		Exclude:   []string{".git/**", ".librarian/**", "node_modules/**", "vendor/**"},
		Embedding: EmbeddingConfig{
			Provider:        "ollama",
			OllamaEndpoint:  "http://localhost:11434",
			OllamaModel:     "embeddinggemma",
			LocalDimensions: 256,
		},
		Store: StoreConfig{
			BatchSize:         200,
			RequireVecIndex:   false,
			BusyTimeoutMillis: 5000,
		},
		Ledger: LedgerConfig{
			StalenessThreshold: 0.6,
		},
		Watcher: WatcherConfig{
			DebounceIntervalMillis: 100,
		},
		Packs: PacksConfig{
			DefaultTokenBudget: 4000,
			CharsPerToken:      4.0,
		},
		Coordinator: CoordinatorConfig{
			ConfidenceFloorL0: 0.75,
			ConfidenceFloorL1: 0.55,
			ConfidenceFloorL2: 0.0,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Path returns the canonical config file path for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".librarian", "config.yaml")
}

// Load reads .librarian/config.yaml, merging it over Default(workspace).
// A missing file is not an error: Default(workspace) is returned as-is.
func Load(workspace string) (Config, error) {
	cfg := Default(workspace)

	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Workspace = workspace
	return cfg, nil
}

// Save writes cfg to .librarian/config.yaml, creating the directory if
// needed.
func Save(cfg Config) error {
	dir := filepath.Join(cfg.Workspace, ".librarian")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(Path(cfg.Workspace), data, 0644)
}

// SyncLoggingCache writes a JSON mirror of the logging section to
// .librarian/config.json, the format internal/logging reads at
// Initialize time (kept as JSON there to avoid that package importing
// this one and creating a cycle).
func SyncLoggingCache(cfg Config) error {
	dir := filepath.Join(cfg.Workspace, ".librarian")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	type wrapper struct {
		Logging LoggingConfig `json:"logging"`
	}
	data, err := json.Marshal(wrapper{Logging: cfg.Logging})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}
