package types

import "errors"

// Config holds backend selection and tuning parameters for Manager.Attach.
type Config struct {
	Backend  string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir  string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	DSN      string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`

	Cache  CacheConfig  `json:"cache" yaml:"cache" mapstructure:"cache"`
	Import ImportConfig `json:"import" yaml:"import" mapstructure:"import"`

	// MvIndicators lists the missing-value codes accepted in every container.
	MvIndicators []string `json:"mv_indicators" yaml:"mv_indicators" mapstructure:"mv_indicators"`
}

// CacheConfig bounds the descriptor and object caches.
type CacheConfig struct {
	PropertyCapacity int `json:"property_capacity" yaml:"property_capacity" mapstructure:"property_capacity"`
	DomainCapacity   int `json:"domain_capacity" yaml:"domain_capacity" mapstructure:"domain_capacity"`
	ObjectCapacity   int `json:"object_capacity" yaml:"object_capacity" mapstructure:"object_capacity"`
}

// ImportConfig controls bulk import flushing.
type ImportConfig struct {
	// BatchSize is the number of pending value rows that triggers a flush.
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	// AnalyzeEvery refreshes backing-store statistics after this many flushes.
	AnalyzeEvery int `json:"analyze_every" yaml:"analyze_every" mapstructure:"analyze_every"`
}

// Supported backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Defaults used by DefaultConfig and by components given a zero value.
const (
	DefaultPropertyCacheCapacity = 2000
	DefaultDomainCacheCapacity   = 2000
	DefaultObjectCacheCapacity   = 1000
	DefaultImportBatchSize       = 10000
	DefaultAnalyzeEvery          = 10
)

// DefaultMvIndicators are the missing-value codes every container accepts
// unless configured otherwise: Q (quality-control excluded) and N (not entered).
var DefaultMvIndicators = []string{"Q", "N"}

// Config validation errors.
var (
	ErrBackendEmpty      = errors.New("backend must not be empty")
	ErrBackendUnknown    = errors.New("unknown backend")
	ErrDSNRequired       = errors.New("dsn is required for the postgres backend")
	ErrBatchSizeInvalid  = errors.New("batch size must be positive")
	ErrCapacityInvalid   = errors.New("cache capacity must be positive")
	ErrMvIndicatorsEmpty = errors.New("missing-value codes must not be empty strings")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite:   true,
	BackendPostgres: true,
}

// DefaultConfig returns a sqlite configuration with default tuning.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendSQLite,
		LogLevel: "info",
		Cache: CacheConfig{
			PropertyCapacity: DefaultPropertyCacheCapacity,
			DomainCapacity:   DefaultDomainCacheCapacity,
			ObjectCapacity:   DefaultObjectCacheCapacity,
		},
		Import: ImportConfig{
			BatchSize:    DefaultImportBatchSize,
			AnalyzeEvery: DefaultAnalyzeEvery,
		},
		MvIndicators: append([]string(nil), DefaultMvIndicators...),
	}
}

// Validate checks that the Config is well-formed. Zero tuning values are
// accepted and replaced by defaults in WithDefaults; negative ones are not.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Backend == BackendPostgres && c.DSN == "" {
		return ErrDSNRequired
	}
	if c.Import.BatchSize < 0 || c.Import.AnalyzeEvery < 0 {
		return ErrBatchSizeInvalid
	}
	if c.Cache.PropertyCapacity < 0 || c.Cache.DomainCapacity < 0 || c.Cache.ObjectCapacity < 0 {
		return ErrCapacityInvalid
	}
	for _, code := range c.MvIndicators {
		if code == "" {
			return ErrMvIndicatorsEmpty
		}
	}
	return nil
}

// WithDefaults returns a copy of c with zero tuning values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Cache.PropertyCapacity == 0 {
		c.Cache.PropertyCapacity = DefaultPropertyCacheCapacity
	}
	if c.Cache.DomainCapacity == 0 {
		c.Cache.DomainCapacity = DefaultDomainCacheCapacity
	}
	if c.Cache.ObjectCapacity == 0 {
		c.Cache.ObjectCapacity = DefaultObjectCacheCapacity
	}
	if c.Import.BatchSize == 0 {
		c.Import.BatchSize = DefaultImportBatchSize
	}
	if c.Import.AnalyzeEvery == 0 {
		c.Import.AnalyzeEvery = DefaultAnalyzeEvery
	}
	if len(c.MvIndicators) == 0 {
		c.MvIndicators = append([]string(nil), DefaultMvIndicators...)
	}
	return c
}
