// Package config loads the psimaker configuration: built-in defaults, then
// an optional YAML file, then PSIMAKER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"psimaker/internal/blob"
	"psimaker/internal/columns"
	"psimaker/internal/ledger"
	"psimaker/internal/logging"
	"psimaker/internal/lookup"
	"psimaker/internal/pipeline"
	"psimaker/internal/rows"
	"psimaker/internal/writer"
)

// Config is the complete configuration.
type Config struct {
	Pipeline PipelineConfig      `yaml:"pipeline"`
	Input    InputConfig         `yaml:"input"`
	Mapping  columns.MappingSpec `yaml:"mapping,omitempty"`
	Output   OutputConfig        `yaml:"output"`
	Ledger   ledger.Config       `yaml:"ledger"`
	Lookup   LookupConfig        `yaml:"lookup"`
	Logging  logging.Config      `yaml:"logging"`
}

// PipelineConfig holds the per-run numeric options.
type PipelineConfig struct {
	BatchSize int `yaml:"batch_size"`
	Features  int `yaml:"features"`
}

// InputConfig controls how source tables are read.
type InputConfig struct {
	// Delimiter is a single character, "tab" or "comma". Empty picks it
	// from the file extension.
	Delimiter  string `yaml:"delimiter"`
	HeaderRows int    `yaml:"header_rows"`
	TrimSpace  bool   `yaml:"trim_space"`
	// Store holds uploaded tables referenced as blob://<key>. Optional.
	Store *blob.Config `yaml:"store,omitempty"`
}

// OutputConfig selects where batches go and how they are encoded.
type OutputConfig struct {
	blob.Config `yaml:",inline"`
	Prefix      string `yaml:"prefix"`
	Format      string `yaml:"format"`
}

// LookupConfig is the term table applied to participants. Terms maps a
// field name to synonym -> canonical value.
type LookupConfig struct {
	Strict    bool                         `yaml:"strict"`
	CacheSize int                          `yaml:"cache_size"`
	Terms     map[string]map[string]string `yaml:"terms,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{BatchSize: pipeline.DefaultBatchSize},
		Input:    InputConfig{HeaderRows: 1},
		Output: OutputConfig{
			Config: blob.Config{Driver: blob.DriverFilesystem, Root: "./output"},
			Format: "json",
		},
		Ledger:  ledger.Config{Driver: ledger.DriverSQLite, Path: "psimaker.db"},
		Lookup:  LookupConfig{CacheSize: lookup.DefaultCacheSize},
		Logging: logging.Default(),
	}
}

// Load reads path over the defaults; a missing file yields the defaults.
// Environment overrides are applied last, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides reads
//
//	PSIMAKER_BATCH_SIZE, PSIMAKER_FEATURES
//	PSIMAKER_OUTPUT_PREFIX, PSIMAKER_OUTPUT_FORMAT
//	PSIMAKER_LOG_LEVEL, PSIMAKER_LOG_FORMAT
//
// plus the PSIMAKER_BLOB_* and PSIMAKER_LEDGER_* variables of the drivers.
func (c *Config) applyEnvOverrides() error {
	if err := envInt("PSIMAKER_BATCH_SIZE", &c.Pipeline.BatchSize); err != nil {
		return err
	}
	if err := envInt("PSIMAKER_FEATURES", &c.Pipeline.Features); err != nil {
		return err
	}
	if v := os.Getenv("PSIMAKER_OUTPUT_PREFIX"); v != "" {
		c.Output.Prefix = v
	}
	if v := os.Getenv("PSIMAKER_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("PSIMAKER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PSIMAKER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	c.Output.Config = blob.ConfigFromEnv(c.Output.Config)
	c.Ledger = ledger.ConfigFromEnv(c.Ledger)
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

// Validate checks option ranges and driver names.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must not be negative"))
	}
	if c.Pipeline.Features < 0 {
		errs = append(errs, fmt.Errorf("pipeline.features must not be negative"))
	}
	if c.Input.HeaderRows < 0 {
		errs = append(errs, fmt.Errorf("input.header_rows must not be negative"))
	}
	if _, err := c.Input.delimiter(); err != nil {
		errs = append(errs, err)
	}
	if c.Input.Store != nil {
		if err := validBlobDriver(c.Input.Store.Driver); err != nil {
			errs = append(errs, fmt.Errorf("input.store: %w", err))
		}
	}
	if err := validBlobDriver(c.Output.Driver); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}
	if c.Output.Format != "" {
		if _, err := writer.Lookup(c.Output.Format); err != nil {
			errs = append(errs, fmt.Errorf("output: %w", err))
		}
	}
	switch c.Ledger.Driver {
	case "", ledger.DriverMemory, ledger.DriverSQLite, ledger.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("ledger: unknown driver %q", c.Ledger.Driver))
	}
	if c.Ledger.Driver == ledger.DriverPostgres && c.Ledger.DSN == "" {
		errs = append(errs, fmt.Errorf("ledger: dsn required for postgres"))
	}
	if c.Lookup.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("lookup.cache_size must not be negative"))
	}
	for key := range c.Mapping {
		if err := columns.ValidateKey(key); err != nil {
			errs = append(errs, fmt.Errorf("mapping: %w", err))
		}
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validBlobDriver(d blob.Driver) error {
	switch d {
	case "", blob.DriverFilesystem, blob.DriverS3, blob.DriverMemory:
		return nil
	}
	return fmt.Errorf("unknown blob driver %q", d)
}

// Options converts the input section to row-source options.
func (c InputConfig) Options() rows.Options {
	d, _ := c.delimiter()
	return rows.Options{Delimiter: d, HeaderRows: c.HeaderRows, TrimSpace: c.TrimSpace}
}

func (c InputConfig) delimiter() (rune, error) {
	switch c.Delimiter {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	}
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return 0, fmt.Errorf("input.delimiter %q must be a single character", c.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r, nil
}

// Enricher builds the cached term enricher for the configured fields. It
// returns nil when no terms are configured.
func (c LookupConfig) Enricher(logger *zap.Logger) (*lookup.Enricher, error) {
	if len(c.Terms) == 0 {
		return nil, nil
	}
	table := lookup.NewTable(c.Terms)
	cached, err := lookup.NewCached(table, c.CacheSize)
	if err != nil {
		return nil, err
	}
	return lookup.NewEnricher(cached, table.Fields(), c.Strict, logger)
}
