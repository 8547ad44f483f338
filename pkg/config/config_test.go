package config

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.MaxTagsPerMemory != 20 {
		t.Errorf("max_tags_per_memory = %d, want 20", cfg.Storage.MaxTagsPerMemory)
	}
	if cfg.Embeddings.Dim != 384 {
		t.Errorf("embeddings.dim = %d, want 384", cfg.Embeddings.Dim)
	}
	if cfg.Conflict.DuplicateThreshold != 0.95 {
		t.Errorf("duplicate_threshold = %v, want 0.95", cfg.Conflict.DuplicateThreshold)
	}
	if cfg.Maintenance.InitialDelayMinutes != 5 {
		t.Errorf("initial_delay_minutes = %d, want 5", cfg.Maintenance.InitialDelayMinutes)
	}
}

func TestValidateRejectsBadThresholdOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conflict.SupersedeThreshold = 0.99 // now > duplicate_threshold
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for inverted thresholds")
	}
}

func TestValidateRejectsZeroCoexist(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conflict.CoexistThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for coexist_threshold = 0")
	}
}

func TestValidateRejectsUnknownLoggingLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown logging level")
	}
}

func TestValidateRejectsMissingDatabasePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty database path")
	}
}

func TestValidateRejectsZeroIntervals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Maintenance.DecayIntervalHours = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero decay interval")
	}
}
