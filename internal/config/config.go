package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths" envconfig:"PATHS"`
	Reader   ReaderConfig   `yaml:"reader" envconfig:"READER"`
	Join     JoinConfig     `yaml:"join" envconfig:"JOIN"`
	Anomaly  AnomalyConfig  `yaml:"anomaly" envconfig:"ANOMALY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
}

// PathsConfig contains the filesystem layout.
type PathsConfig struct {
	RawDir       string `yaml:"raw_dir" envconfig:"RAW_DIR" validate:"required"`
	ProcessedDir string `yaml:"processed_dir" envconfig:"PROCESSED_DIR" validate:"required"`
	ReportsDir   string `yaml:"reports_dir" envconfig:"REPORTS_DIR" validate:"required"`
}

// ReaderConfig controls delimited-file reading behavior.
type ReaderConfig struct {
	// Delimiter is a single-character field separator. FAERS ASCII dumps use
	// "$"; tab-delimited deployments set "\t".
	Delimiter      string `yaml:"delimiter" envconfig:"DELIMITER" validate:"required,max=1"`
	ChunkSize      int    `yaml:"chunk_size" envconfig:"CHUNK_SIZE" validate:"gt=0"`
	LargeFileMB    int64  `yaml:"large_file_mb" envconfig:"LARGE_FILE_MB" validate:"gt=0"`
	MemoryOptimize bool   `yaml:"memory_optimize" envconfig:"MEMORY_OPTIMIZE"`
	// GCChunkInterval forces memory reclamation every N chunks on large files.
	GCChunkInterval int `yaml:"gc_chunk_interval" envconfig:"GC_CHUNK_INTERVAL" validate:"gt=0"`
}

// JoinConfig holds the loss and overlap thresholds for join diagnostics.
// Values are percentages.
type JoinConfig struct {
	LossHighPct          float64 `yaml:"loss_high_pct" envconfig:"LOSS_HIGH_PCT" validate:"gte=0,lte=100"`
	LossModeratePct      float64 `yaml:"loss_moderate_pct" envconfig:"LOSS_MODERATE_PCT" validate:"gte=0,lte=100"`
	TotalLossHighPct     float64 `yaml:"total_loss_high_pct" envconfig:"TOTAL_LOSS_HIGH_PCT" validate:"gte=0,lte=100"`
	TotalLossModeratePct float64 `yaml:"total_loss_moderate_pct" envconfig:"TOTAL_LOSS_MODERATE_PCT" validate:"gte=0,lte=100"`
	KeyOverlapWarnPct    float64 `yaml:"key_overlap_warn_pct" envconfig:"KEY_OVERLAP_WARN_PCT" validate:"gte=0,lte=100"`
}

// AnomalyConfig holds detector defaults.
type AnomalyConfig struct {
	Method            string  `yaml:"method" envconfig:"METHOD" validate:"oneof=rolling_z stl"`
	RollingWindow     int     `yaml:"rolling_window" envconfig:"ROLLING_WINDOW" validate:"gt=0"`
	RollingThreshold  float64 `yaml:"rolling_threshold" envconfig:"ROLLING_THRESHOLD" validate:"gt=0"`
	SeasonalPeriod    int     `yaml:"seasonal_period" envconfig:"SEASONAL_PERIOD" validate:"gt=1"`
	SeasonalThreshold float64 `yaml:"seasonal_threshold" envconfig:"SEASONAL_THRESHOLD" validate:"gt=0"`
	// TopK bounds ranked spikes per series; TopTerms bounds how many
	// drug and reaction series are summarized.
	TopK     int `yaml:"top_k" envconfig:"TOP_K" validate:"gt=0"`
	TopTerms int `yaml:"top_terms" envconfig:"TOP_TERMS" validate:"gt=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PipelineConfig controls the orchestrator.
type PipelineConfig struct {
	// Workers bounds per-quarter parallelism. Quarters are processed
	// independently, so values above 1 are safe.
	Workers       int `yaml:"workers" envconfig:"WORKERS" validate:"gt=0"`
	LimitQuarters int `yaml:"limit_quarters" envconfig:"LIMIT_QUARTERS" validate:"gte=0"`
}

// Load loads configuration from an optional YAML config file and
// environment variables. Precedence is env over file over defaults;
// defaults come from Default, and envconfig only touches fields whose
// AETREND_* variable is actually set.
func Load() (*Config, error) {
	cfg := Default()

	if path := findConfigFile(); path != "" {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = fileCfg
	}

	if err := envconfig.Process("AETREND", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file over the defaults.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration against its struct tags plus the
// cross-field constraints the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Join.LossModeratePct > c.Join.LossHighPct {
		return fmt.Errorf("join moderate loss threshold (%.1f) exceeds high threshold (%.1f)",
			c.Join.LossModeratePct, c.Join.LossHighPct)
	}
	if c.Join.TotalLossModeratePct > c.Join.TotalLossHighPct {
		return fmt.Errorf("total moderate loss threshold (%.1f) exceeds high threshold (%.1f)",
			c.Join.TotalLossModeratePct, c.Join.TotalLossHighPct)
	}

	return nil
}

// EnsureDirectories creates the configured output directories.
// The raw directory is deliberately excluded: its absence is the one
// fatal condition and must be surfaced, not papered over.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ProcessedDir, c.Paths.ReportsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// EventsPath returns the consolidated parquet output path.
func (c *Config) EventsPath() string {
	return filepath.Join(c.Paths.ProcessedDir, "faers_events.parquet")
}

// MonthlyCountsPath returns the overall monthly counts CSV path.
func (c *Config) MonthlyCountsPath() string {
	return filepath.Join(c.Paths.ProcessedDir, "monthly_counts.csv")
}

// MonthlyByReactionPath returns the by-reaction monthly counts CSV path.
func (c *Config) MonthlyByReactionPath() string {
	return filepath.Join(c.Paths.ProcessedDir, "monthly_by_reaction.csv")
}

// MonthlyByDrugPath returns the by-drug monthly counts CSV path.
func (c *Config) MonthlyByDrugPath() string {
	return filepath.Join(c.Paths.ProcessedDir, "monthly_by_drug.csv")
}

// SummaryReportPath returns the Excel summary workbook path.
func (c *Config) SummaryReportPath() string {
	return filepath.Join(c.Paths.ReportsDir, "ae_trend_summary.xlsx")
}

// findConfigFile returns the path to the config file, if one exists.
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			RawDir:       "data/raw",
			ProcessedDir: "data/processed",
			ReportsDir:   "reports",
		},
		Reader: ReaderConfig{
			Delimiter:       "$",
			ChunkSize:       50000,
			LargeFileMB:     1024,
			MemoryOptimize:  true,
			GCChunkInterval: 10,
		},
		Join: JoinConfig{
			LossHighPct:          20,
			LossModeratePct:      10,
			TotalLossHighPct:     30,
			TotalLossModeratePct: 15,
			KeyOverlapWarnPct:    80,
		},
		Anomaly: AnomalyConfig{
			Method:            "rolling_z",
			RollingWindow:     6,
			RollingThreshold:  2.0,
			SeasonalPeriod:    12,
			SeasonalThreshold: 2.5,
			TopK:              3,
			TopTerms:          10,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/etl.log",
		},
		Pipeline: PipelineConfig{
			Workers:       1,
			LimitQuarters: 0,
		},
	}
}
