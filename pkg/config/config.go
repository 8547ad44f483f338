// Package config holds the memory engine's configuration surface: storage
// limits, embedding parameters, maintenance scheduling, and conflict
// thresholds. Defaults are wired through viper's bookkeeping (SetDefault +
// Unmarshal) the way the teacher's config package does, but there is no
// file- or CLI-driven Load() here — loading configuration from disk or flags
// is the embedding application's concern, not the engine's.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the complete engine configuration, per spec.md §6's enumeration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Embeddings  EmbeddingsConfig  `mapstructure:"embeddings"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Conflict    ConflictConfig    `mapstructure:"conflict"`
}

// DatabaseConfig locates the backing SQLite file. Not part of spec.md §6's
// enumeration (file location is an embedding-application concern) but
// required to construct a store.Store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls the engine's structured logging, mirroring the
// teacher's logging configuration shape.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// StorageConfig bounds record field sizes, per spec.md §6.
type StorageConfig struct {
	MaxTitleLength   int `mapstructure:"max_title_length"`
	MaxSummaryLength int `mapstructure:"max_summary_length"`
	MaxContentBytes  int `mapstructure:"max_content_bytes"`
	MaxTagsPerMemory int `mapstructure:"max_tags_per_memory"`
}

// EmbeddingsConfig controls the embedding capability, per spec.md §6.
type EmbeddingsConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Dim               int    `mapstructure:"dim"`
	MaxSequenceLength int    `mapstructure:"max_sequence_length"`
	OllamaBaseURL     string `mapstructure:"ollama_base_url"`
}

// MaintenanceConfig controls the decay/prune and consolidation loops and
// their scheduling, per spec.md §6 and §4.7.
type MaintenanceConfig struct {
	Enabled                    bool    `mapstructure:"enabled"`
	DecayEnabled                bool    `mapstructure:"decay_enabled"`
	DecayIntervalHours           int     `mapstructure:"decay_interval_hours"`
	PruneThreshold              float64 `mapstructure:"prune_threshold"`
	ConsolidationEnabled         bool    `mapstructure:"consolidation_enabled"`
	ConsolidationIntervalHours   int     `mapstructure:"consolidation_interval_hours"`
	SimilarityThreshold          float64 `mapstructure:"similarity_threshold"`
	InitialDelayMinutes          int     `mapstructure:"initial_delay_minutes"`
	ShutdownTimeoutSeconds       int     `mapstructure:"shutdown_timeout_seconds"`
}

// ConflictConfig controls the write-path classification thresholds, per
// spec.md §4.5 and §6.
type ConflictConfig struct {
	DuplicateThreshold float64 `mapstructure:"duplicate_threshold"`
	SupersedeThreshold float64 `mapstructure:"supersede_threshold"`
	CoexistThreshold   float64 `mapstructure:"coexist_threshold"`
}

// DefaultConfig returns the engine's default configuration, built by
// unmarshaling viper's default registry the way the teacher's setDefaults
// does, without touching any config file.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		// Defaults are a fixed, compiled-in set; a failure here can only be a
		// programming error in setDefaults, never a runtime condition.
		panic(fmt.Sprintf("config: invalid built-in defaults: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "./memories.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("storage.max_title_length", 500)
	v.SetDefault("storage.max_summary_length", 2000)
	v.SetDefault("storage.max_content_bytes", 524288)
	v.SetDefault("storage.max_tags_per_memory", 20)

	v.SetDefault("embeddings.enabled", false)
	v.SetDefault("embeddings.dim", 384)
	v.SetDefault("embeddings.max_sequence_length", 256)
	v.SetDefault("embeddings.ollama_base_url", "http://localhost:11434")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.decay_enabled", true)
	v.SetDefault("maintenance.decay_interval_hours", 24)
	v.SetDefault("maintenance.prune_threshold", 0.1)
	v.SetDefault("maintenance.consolidation_enabled", true)
	v.SetDefault("maintenance.consolidation_interval_hours", 24)
	v.SetDefault("maintenance.similarity_threshold", 0.8)
	v.SetDefault("maintenance.initial_delay_minutes", 5)
	v.SetDefault("maintenance.shutdown_timeout_seconds", 30)

	v.SetDefault("conflict.duplicate_threshold", 0.95)
	v.SetDefault("conflict.supersede_threshold", 0.80)
	v.SetDefault("conflict.coexist_threshold", 0.60)
}

// Validate checks the configuration for internal consistency. Threshold
// ordering (0 < coexist < supersede < duplicate <= 1) is the invariant
// spec.md §6 calls out explicitly.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	if c.Storage.MaxTitleLength <= 0 {
		return fmt.Errorf("storage.max_title_length must be > 0")
	}
	if c.Storage.MaxSummaryLength <= 0 {
		return fmt.Errorf("storage.max_summary_length must be > 0")
	}
	if c.Storage.MaxContentBytes <= 0 {
		return fmt.Errorf("storage.max_content_bytes must be > 0")
	}
	if c.Storage.MaxTagsPerMemory <= 0 {
		return fmt.Errorf("storage.max_tags_per_memory must be > 0")
	}

	if c.Embeddings.Enabled && c.Embeddings.Dim <= 0 {
		return fmt.Errorf("embeddings.dim must be > 0 when embeddings are enabled")
	}

	if c.Maintenance.DecayIntervalHours <= 0 {
		return fmt.Errorf("maintenance.decay_interval_hours must be > 0")
	}
	if c.Maintenance.ConsolidationIntervalHours <= 0 {
		return fmt.Errorf("maintenance.consolidation_interval_hours must be > 0")
	}
	if c.Maintenance.PruneThreshold < 0 {
		return fmt.Errorf("maintenance.prune_threshold must be >= 0")
	}
	if c.Maintenance.SimilarityThreshold < 0 || c.Maintenance.SimilarityThreshold > 1 {
		return fmt.Errorf("maintenance.similarity_threshold must be in [0, 1]")
	}

	co, sup, dup := c.Conflict.CoexistThreshold, c.Conflict.SupersedeThreshold, c.Conflict.DuplicateThreshold
	if !(0 < co && co < sup && sup < dup && dup <= 1) {
		return fmt.Errorf("conflict thresholds must satisfy 0 < coexist(%v) < supersede(%v) < duplicate(%v) <= 1", co, sup, dup)
	}

	return nil
}
