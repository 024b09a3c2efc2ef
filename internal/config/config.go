// Package config defines the Go structs for every field enumerated in
// SPEC_FULL.md §6, loaded from YAML by cmd/mediabutlerd. The core only ever
// receives an already-populated, validated Config value — see DESIGN.md OQ-1:
// the core treats Config as immutable, read-only input.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Paths groups the filesystem locations the daemon operates on.
type Paths struct {
	LibraryRoot   string   `yaml:"library_root"`
	WatchFolders  []string `yaml:"watch_folders"`
	PendingReview string   `yaml:"pending_review"`
	ModelsPath    string   `yaml:"models_path"`
}

// Discovery controls the Watcher (C10).
type Discovery struct {
	FileExtensions      []string `yaml:"file_extensions"`
	ExcludePatterns     []string `yaml:"exclude_patterns"`
	MinFileSizeMB       int64    `yaml:"min_file_size_mb"`
	DebounceSeconds     int      `yaml:"debounce_seconds"`
	ScanIntervalMinutes int      `yaml:"scan_interval_minutes"`
	MaxConcurrentScans  int      `yaml:"max_concurrent_scans"`
	EnableEventWatcher  bool     `yaml:"enable_event_watcher"`
}

// Classification controls the Classifier/FileService confidence gating (C3/C11).
type Classification struct {
	AutoThreshold      float64 `yaml:"auto_threshold"`
	SuggestThreshold   float64 `yaml:"suggest_threshold"`
	MaxClassificationMS int64  `yaml:"max_classification_ms"`
	MaxAlternatives    int     `yaml:"max_alternatives"`

	// ServiceURL is the external classifier's HTTP endpoint (spec §4.2: the
	// model itself is out of scope, the core only calls through the
	// Classifier interface). Empty disables classification and every file
	// is suggested "UNKNOWN" until a human assigns a category.
	ServiceURL      string `yaml:"service_url"`
	CacheDir        string `yaml:"cache_dir"`
	CacheTTLSeconds int64  `yaml:"cache_ttl_seconds"`
}

// Retries groups retry/queue/batch sizing knobs (C6/C11/C12).
type Retries struct {
	MaxRetry            int     `yaml:"max_retry"`
	RetryDelaysMS       []int64 `yaml:"retry_delays_ms"`
	QueueCapacity       int     `yaml:"queue_capacity"`
	WorkerCount         int     `yaml:"worker_count"`
	MaxBatchSize        int     `yaml:"max_batch_size"`
	MaxBatchConcurrency int     `yaml:"max_batch_concurrency"`
}

// Resources bounds memory usage for the 300 MB NAS budget (spec §5).
type Resources struct {
	MemoryThresholdMB int64 `yaml:"memory_threshold_mb"`
	AutoGCTriggerMB   int64 `yaml:"auto_gc_trigger_mb"`
}

// Config is the fully populated, validated configuration the core consumes.
type Config struct {
	Paths          Paths          `yaml:"paths"`
	Discovery      Discovery      `yaml:"discovery"`
	Classification Classification `yaml:"classification"`
	Retries        Retries        `yaml:"retries"`
	Resources      Resources      `yaml:"resources"`
}

// Default returns a Config populated with every documented default (spec §6).
func Default() Config {
	return Config{
		Paths: Paths{
			PendingReview: "pending_review",
		},
		Discovery: Discovery{
			FileExtensions:      []string{".mkv", ".mp4", ".avi"},
			MinFileSizeMB:       1,
			DebounceSeconds:     3,
			ScanIntervalMinutes: 5,
			MaxConcurrentScans:  2,
			EnableEventWatcher:  true,
		},
		Classification: Classification{
			AutoThreshold:       0.85,
			SuggestThreshold:    0.50,
			MaxClassificationMS: 500,
			MaxAlternatives:     3,
			CacheDir:            "classifier_cache",
			CacheTTLSeconds:     86400,
		},
		Retries: Retries{
			MaxRetry:            3,
			RetryDelaysMS:       []int64{5000, 30000, 60000},
			QueueCapacity:       100,
			WorkerCount:         2,
			MaxBatchSize:        50,
			MaxBatchConcurrency: 2,
		},
		Resources: Resources{
			MemoryThresholdMB: 300,
			AutoGCTriggerMB:   250,
		},
	}
}

// Load reads a YAML document, merges it over Default(), and validates it.
func Load(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the core's components assume hold.
func (c Config) Validate() error {
	if c.Paths.LibraryRoot == "" {
		return fmt.Errorf("config: paths.library_root is required")
	}
	if len(c.Paths.WatchFolders) == 0 {
		return fmt.Errorf("config: paths.watch_folders must have at least one entry")
	}
	if c.Classification.AutoThreshold < c.Classification.SuggestThreshold {
		return fmt.Errorf("config: classification.auto_threshold must be >= suggest_threshold")
	}
	if c.Classification.SuggestThreshold < 0 || c.Classification.AutoThreshold > 1 {
		return fmt.Errorf("config: classification thresholds must be within [0,1]")
	}
	if c.Retries.MaxRetry < 0 {
		return fmt.Errorf("config: retries.max_retry must be >= 0")
	}
	if c.Retries.WorkerCount < 1 {
		return fmt.Errorf("config: retries.worker_count must be >= 1")
	}
	if c.Retries.QueueCapacity < 1 {
		return fmt.Errorf("config: retries.queue_capacity must be >= 1")
	}
	return nil
}

// ClassificationTimeout returns the classifier call deadline as a Duration.
func (c Config) ClassificationTimeout() time.Duration {
	return time.Duration(c.Classification.MaxClassificationMS) * time.Millisecond
}

// RetryDelay returns the backoff delay for the given zero-based retry attempt,
// clamping to the last configured delay if attempts exceed the table.
func (c Config) RetryDelay(attempt int) time.Duration {
	delays := c.Retries.RetryDelaysMS
	if len(delays) == 0 {
		return 0
	}
	if attempt >= len(delays) {
		attempt = len(delays) - 1
	}
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(delays[attempt]) * time.Millisecond
}
