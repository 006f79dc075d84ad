// Package config provides configuration management for fruitflow pipeline runs
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the configuration of one pipeline run
type Config struct {
	Paths       PathsConfig       `json:"paths" yaml:"paths"`
	Schema      SchemaConfig      `json:"schema" yaml:"schema"`
	Consolidate ConsolidateConfig `json:"consolidate" yaml:"consolidate"`
	Season      SeasonConfig      `json:"season" yaml:"season"`
	Cleanse     CleanseConfig     `json:"cleanse" yaml:"cleanse"`
	Validation  ValidationConfig  `json:"validation" yaml:"validation"`
	Parquet     ParquetConfig     `json:"parquet" yaml:"parquet"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

// PathsConfig locates inputs and outputs. Relative paths are used as given.
type PathsConfig struct {
	RawDir       string `json:"raw_dir" yaml:"raw_dir"`             // Weekly export CSV files
	CleanDir     string `json:"clean_dir" yaml:"clean_dir"`         // Per-file normalized Parquet
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir"` // Inventory and schema mapping
	DataDir      string `json:"data_dir" yaml:"data_dir"`           // Master and derived tables
	AuditDir     string `json:"audit_dir" yaml:"audit_dir"`         // Audit and validation reports
	RawExt       string `json:"raw_ext" yaml:"raw_ext"`             // Raw file extension
}

// SchemaConfig controls schema inference
type SchemaConfig struct {
	Threshold      float64 `json:"threshold" yaml:"threshold"`             // Minimum share of files a column must appear in
	StrictRequired bool    `json:"strict_required" yaml:"strict_required"` // Abort when a required field is unmapped
}

// ConsolidateConfig controls consolidation
type ConsolidateConfig struct {
	SourceWeekPattern string `json:"source_week_pattern" yaml:"source_week_pattern"` // Regexp with one numeric group
}

// SeasonConfig controls the presentation transform
type SeasonConfig struct {
	PivotWeek     int64    `json:"pivot_week" yaml:"pivot_week"`
	MinUnitWeight float64  `json:"min_unit_weight" yaml:"min_unit_weight"` // kg per box
	MaxUnitWeight float64  `json:"max_unit_weight" yaml:"max_unit_weight"` // kg per box
	MVPSeasons    []string `json:"mvp_seasons" yaml:"mvp_seasons"`
}

// CleanseConfig controls null filling
type CleanseConfig struct {
	StringSentinel string `json:"string_sentinel" yaml:"string_sentinel"`
	FillNumeric    bool   `json:"fill_numeric" yaml:"fill_numeric"` // Replace numeric nulls with zero
}

// ValidationConfig controls the validation report
type ValidationConfig struct {
	MinYear        int64    `json:"min_year" yaml:"min_year"`
	ExpectedBoxes  *int64   `json:"expected_boxes,omitempty" yaml:"expected_boxes,omitempty"`
	ExpectedKilos  *float64 `json:"expected_kilos,omitempty" yaml:"expected_kilos,omitempty"`
	ExpectedRows   *int64   `json:"expected_rows,omitempty" yaml:"expected_rows,omitempty"`
	KilosTolerance float64  `json:"kilos_tolerance" yaml:"kilos_tolerance"`
}

// ParquetConfig controls Parquet output
type ParquetConfig struct {
	Compression string `json:"compression" yaml:"compression"`
	BatchSize   int    `json:"batch_size" yaml:"batch_size"`
}

// LoggingConfig controls the slog handler
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text, json
}

// Default configuration values
const (
	DefaultThreshold         = 0.5
	DefaultSourceWeekPattern = `datos_semana_(\d+)`
	DefaultPivotWeek         = 35
	DefaultMinUnitWeight     = 1.0
	DefaultMaxUnitWeight     = 25.0
	DefaultStringSentinel    = "SN"
	DefaultMinYear           = 1990
	DefaultKilosTolerance    = 1e-6
	DefaultCompression       = "snappy"
	DefaultBatchSize         = 1000
)

// DefaultMVPSeasons are the seasons kept by the subset stage
var DefaultMVPSeasons = []string{"2024-2025", "2023-2024", "2022-2023"}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		Paths: PathsConfig{
			RawDir:       "data_raw",
			CleanDir:     "data_clean",
			ArtifactsDir: "scripts",
			DataDir:      "data",
			AuditDir:     "audit",
			RawExt:       ".csv",
		},
		Schema: SchemaConfig{
			Threshold: DefaultThreshold,
		},
		Consolidate: ConsolidateConfig{
			SourceWeekPattern: DefaultSourceWeekPattern,
		},
		Season: SeasonConfig{
			PivotWeek:     DefaultPivotWeek,
			MinUnitWeight: DefaultMinUnitWeight,
			MaxUnitWeight: DefaultMaxUnitWeight,
			MVPSeasons:    append([]string(nil), DefaultMVPSeasons...),
		},
		Cleanse: CleanseConfig{
			StringSentinel: DefaultStringSentinel,
		},
		Validation: ValidationConfig{
			MinYear:        DefaultMinYear,
			KilosTolerance: DefaultKilosTolerance,
		},
		Parquet: ParquetConfig{
			Compression: DefaultCompression,
			BatchSize:   DefaultBatchSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.Schema.Threshold <= 0 || c.Schema.Threshold > 1 {
		return fmt.Errorf("schema.threshold must be in (0, 1], got %g", c.Schema.Threshold)
	}

	re, err := regexp.Compile(c.Consolidate.SourceWeekPattern)
	if err != nil {
		return fmt.Errorf("consolidate.source_week_pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return fmt.Errorf("consolidate.source_week_pattern must have a capture group, got %q", c.Consolidate.SourceWeekPattern)
	}

	if c.Season.PivotWeek < 1 || c.Season.PivotWeek > 53 {
		return fmt.Errorf("season.pivot_week must be between 1 and 53, got %d", c.Season.PivotWeek)
	}

	if c.Season.MinUnitWeight < 0 || c.Season.MaxUnitWeight <= c.Season.MinUnitWeight {
		return fmt.Errorf("season unit weight bounds must satisfy 0 <= min < max, got %g..%g",
			c.Season.MinUnitWeight, c.Season.MaxUnitWeight)
	}

	if c.Validation.KilosTolerance < 0 {
		return fmt.Errorf("validation.kilos_tolerance must be non-negative, got %g", c.Validation.KilosTolerance)
	}

	if c.Parquet.BatchSize <= 0 {
		return fmt.Errorf("parquet.batch_size must be positive, got %d", c.Parquet.BatchSize)
	}

	switch c.Parquet.Compression {
	case "snappy", "gzip", "lz4", "zstd", "uncompressed", "none":
	default:
		return fmt.Errorf("unsupported parquet.compression: %s", c.Parquet.Compression)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported logging.format: %s", c.Logging.Format)
	}

	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	d := NewConfig()

	if c.Paths.RawDir == "" {
		c.Paths.RawDir = d.Paths.RawDir
	}
	if c.Paths.CleanDir == "" {
		c.Paths.CleanDir = d.Paths.CleanDir
	}
	if c.Paths.ArtifactsDir == "" {
		c.Paths.ArtifactsDir = d.Paths.ArtifactsDir
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = d.Paths.DataDir
	}
	if c.Paths.AuditDir == "" {
		c.Paths.AuditDir = d.Paths.AuditDir
	}
	if c.Paths.RawExt == "" {
		c.Paths.RawExt = d.Paths.RawExt
	}
	if c.Schema.Threshold == 0 {
		c.Schema.Threshold = d.Schema.Threshold
	}
	if c.Consolidate.SourceWeekPattern == "" {
		c.Consolidate.SourceWeekPattern = d.Consolidate.SourceWeekPattern
	}
	if c.Season.PivotWeek == 0 {
		c.Season.PivotWeek = d.Season.PivotWeek
	}
	if c.Season.MinUnitWeight == 0 && c.Season.MaxUnitWeight == 0 {
		c.Season.MinUnitWeight = d.Season.MinUnitWeight
		c.Season.MaxUnitWeight = d.Season.MaxUnitWeight
	}
	if len(c.Season.MVPSeasons) == 0 {
		c.Season.MVPSeasons = d.Season.MVPSeasons
	}
	if c.Cleanse.StringSentinel == "" {
		c.Cleanse.StringSentinel = d.Cleanse.StringSentinel
	}
	if c.Validation.MinYear == 0 {
		c.Validation.MinYear = d.Validation.MinYear
	}
	if c.Validation.KilosTolerance == 0 {
		c.Validation.KilosTolerance = d.Validation.KilosTolerance
	}
	if c.Parquet.Compression == "" {
		c.Parquet.Compression = d.Parquet.Compression
	}
	if c.Parquet.BatchSize == 0 {
		c.Parquet.BatchSize = d.Parquet.BatchSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}

	// Booleans keep their zero value: false is both the default and a valid choice.
	return c
}

// LoadFromFile loads configuration from a file (supports JSON and YAML)
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		err = json.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	return config.WithDefaults(), nil
}

// Load builds the run configuration: defaults, then the optional file, then
// FRUITFLOW_* environment variables.
func Load(filename string) (Config, error) {
	config := NewConfig()
	if filename != "" {
		loaded, err := LoadFromFile(filename)
		if err != nil {
			return Config{}, err
		}
		config = loaded
	}
	config.ApplyEnv(os.LookupEnv)
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// ApplyEnv overlays FRUITFLOW_* variables. Unparsable values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if val, ok := lookup(key); ok && val != "" {
			*dst = val
		}
	}

	str("FRUITFLOW_RAW_DIR", &c.Paths.RawDir)
	str("FRUITFLOW_CLEAN_DIR", &c.Paths.CleanDir)
	str("FRUITFLOW_ARTIFACTS_DIR", &c.Paths.ArtifactsDir)
	str("FRUITFLOW_DATA_DIR", &c.Paths.DataDir)
	str("FRUITFLOW_AUDIT_DIR", &c.Paths.AuditDir)
	str("FRUITFLOW_LOG_LEVEL", &c.Logging.Level)
	str("FRUITFLOW_LOG_FORMAT", &c.Logging.Format)
	str("FRUITFLOW_PARQUET_COMPRESSION", &c.Parquet.Compression)

	if val, ok := lookup("FRUITFLOW_SCHEMA_THRESHOLD"); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			c.Schema.Threshold = parsed
		}
	}

	if val, ok := lookup("FRUITFLOW_STRICT_REQUIRED"); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			c.Schema.StrictRequired = parsed
		}
	}

	if val, ok := lookup("FRUITFLOW_PIVOT_WEEK"); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Season.PivotWeek = parsed
		}
	}

	if val, ok := lookup("FRUITFLOW_FILL_NUMERIC"); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			c.Cleanse.FillNumeric = parsed
		}
	}

	if val, ok := lookup("FRUITFLOW_EXPECTED_BOXES"); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Validation.ExpectedBoxes = &parsed
		}
	}

	if val, ok := lookup("FRUITFLOW_EXPECTED_KILOS"); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			c.Validation.ExpectedKilos = &parsed
		}
	}

	if val, ok := lookup("FRUITFLOW_EXPECTED_ROWS"); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Validation.ExpectedRows = &parsed
		}
	}
}

// MasterPath is the consolidated master table
func (p PathsConfig) MasterPath() string {
	return filepath.Join(p.DataDir, "exports_10_years.parquet")
}

// CleanMasterPath is the null-filled master table
func (p PathsConfig) CleanMasterPath() string {
	return filepath.Join(p.DataDir, "exports_10_years_clean.parquet")
}

// PresentationPath is the presentation-ready table
func (p PathsConfig) PresentationPath() string {
	return filepath.Join(p.DataDir, "dataset_dashboard_ready.parquet")
}

// SubsetPath is the season subset table
func (p PathsConfig) SubsetPath() string {
	return filepath.Join(p.DataDir, "dataset_dashboard_mvp.parquet")
}

// SubsetMetricsPath is the JSON summary written next to the subset table
func (p PathsConfig) SubsetMetricsPath() string {
	return filepath.Join(p.DataDir, "dataset_dashboard_mvp_metrics.json")
}

// SchemaPath is the schema mapping artifact
func (p PathsConfig) SchemaPath() string {
	return filepath.Join(p.ArtifactsDir, "schema_master.json")
}

// AuditReportPath is the per-file audit CSV
func (p PathsConfig) AuditReportPath() string {
	return filepath.Join(p.AuditDir, "full_audit.csv")
}

// ValidationReportPath is the validation JSON
func (p PathsConfig) ValidationReportPath() string {
	return filepath.Join(p.AuditDir, "final_validation.json")
}
