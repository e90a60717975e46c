// Package config provides configuration management for xfeed.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/xfeed/internal/reputation"
	"github.com/thebtf/xfeed/pkg/models"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 37780

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "XFEED_"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ErrInvalidConfig is returned when a loaded configuration violates its invariants.
var ErrInvalidConfig = models.ErrInvalidConfig

// ReputationConfig controls history retention and background reclassification.
type ReputationConfig struct {
	Classifier         reputation.ClassifierConfig `json:"classifier" yaml:",inline"`
	HistoryLimit       int                         `json:"history_limit" yaml:"history_limit"`
	ReclassifyInterval time.Duration               `json:"reclassify_interval" yaml:"reclassify_interval"`
}

// StorageConfig selects and configures the reputation backend.
type StorageConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	Path     string `json:"path" yaml:"path"`
	DSN      string `json:"dsn,omitempty" yaml:"dsn"`
	MaxConns int    `json:"max_conns" yaml:"max_conns"`
}

// Config holds the application configuration.
type Config struct {
	Scoring     models.ScoringConfig     `json:"scoring" yaml:",inline"`
	Exploration models.ExplorationConfig `json:"exploration" yaml:",inline"`
	Storage     StorageConfig            `json:"storage" yaml:"storage"`
	LogLevel    string                   `json:"log_level" yaml:"log_level"`
	Reputation  ReputationConfig         `json:"reputation" yaml:"reputation"`

	// RelevanceThreshold is the minimum final score for the general path.
	RelevanceThreshold float64 `json:"relevance_threshold" yaml:"relevance_threshold"`
	// DedupSimilarityThreshold is the Jaccard similarity at which texts are near-duplicates.
	DedupSimilarityThreshold float64 `json:"dedup_similarity_threshold" yaml:"dedup_similarity_threshold"`
	DefaultFeedSize          int     `json:"default_feed_size" yaml:"default_feed_size"`
	WorkerPort               int     `json:"worker_port" yaml:"worker_port"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.xfeed).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".xfeed")
}

// Path returns the default config file path.
func Path() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "reputation.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Default returns a Config with default values.
func Default() *Config {
	curation := models.DefaultCurationConfig()
	return &Config{
		Scoring:                  curation.Scoring,
		Exploration:              curation.Exploration,
		RelevanceThreshold:       curation.RelevanceThreshold,
		DedupSimilarityThreshold: curation.DedupSimilarityThreshold,
		DefaultFeedSize:          curation.FeedSize,
		Reputation: ReputationConfig{
			Classifier:         reputation.DefaultClassifierConfig(),
			HistoryLimit:       reputation.DefaultHistoryLimit,
			ReclassifyInterval: time.Hour,
		},
		Storage: StorageConfig{
			Driver:   DriverSQLite,
			Path:     DBPath(),
			MaxConns: 4,
		},
		WorkerPort: DefaultWorkerPort,
		LogLevel:   "info",
	}
}

// Load reads the YAML file at path over the defaults, then applies XFEED_*
// environment overrides and validates the result. A missing file yields the
// defaults; an empty path means Path().
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Curation returns the per-cycle configuration derived from cfg.
func (c *Config) Curation() *models.CurationConfig {
	weights := make(map[models.Factor]float64, len(c.Scoring.FactorWeights))
	for f, w := range c.Scoring.FactorWeights {
		weights[f] = w
	}
	scoring := c.Scoring
	scoring.FactorWeights = weights

	return &models.CurationConfig{
		Scoring:                  scoring,
		Exploration:              c.Exploration,
		RelevanceThreshold:       c.RelevanceThreshold,
		DedupSimilarityThreshold: c.DedupSimilarityThreshold,
		FeedSize:                 c.DefaultFeedSize,
	}
}

// Validate checks the curation invariants plus the service settings.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Curation().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalidConfig))
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("%w: storage.dsn is required for postgres", ErrInvalidConfig))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver))
	}
	if c.WorkerPort <= 0 || c.WorkerPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: worker_port %d out of range", ErrInvalidConfig, c.WorkerPort))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err))
	}
	if c.Reputation.ReclassifyInterval < 0 {
		errs = append(errs, fmt.Errorf("%w: reclassify_interval is negative", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// Level returns the configured zerolog level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// applyEnv overrides fields from XFEED_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	floats := map[string]*float64{
		"RELEVANCE_THRESHOLD":        &c.RelevanceThreshold,
		"DEDUP_SIMILARITY_THRESHOLD": &c.DedupSimilarityThreshold,
		"EXPLORATION_RATE":           &c.Exploration.Rate,
		"EXPLORATION_MIN_QUALITY":    &c.Exploration.MinQuality,
		"EXPLORATION_COOLDOWN_HOURS": &c.Exploration.CooldownHours,
		"REASONING_BOOST_MAX":        &c.Scoring.ReasoningBoostMax,
		"REASONING_PENALTY_MAX":      &c.Scoring.ReasoningPenaltyMax,
		"DISSENT_BONUS_CAP":          &c.Scoring.DissentBonusCap,
	}
	ints := map[string]*int{
		"DEFAULT_FEED_SIZE":            &c.DefaultFeedSize,
		"EXPLORATION_DIVERSITY_WINDOW": &c.Exploration.DiversityWindow,
		"DISSENT_MIN_RIGOR":            &c.Scoring.DissentMinRigor,
		"WORKER_PORT":                  &c.WorkerPort,
		"DB_MAX_CONNS":                 &c.Storage.MaxConns,
		"HISTORY_LIMIT":                &c.Reputation.HistoryLimit,
	}
	strs := map[string]*string{
		"DB_DRIVER": &c.Storage.Driver,
		"DB_PATH":   &c.Storage.Path,
		"DB_DSN":    &c.Storage.DSN,
		"LOG_LEVEL": &c.LogLevel,
	}

	var errs []error
	for key, dst := range floats {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, key, err))
			continue
		}
		*dst = f
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s%s: %w", ErrInvalidConfig, EnvPrefix, key, err))
			continue
		}
		*dst = n
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup(EnvPrefix + "RECLASSIFY_INTERVAL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %sRECLASSIFY_INTERVAL: %w", ErrInvalidConfig, EnvPrefix, err))
		} else {
			c.Reputation.ReclassifyInterval = d
		}
	}
	return errors.Join(errs...)
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		cfg, err := Load("")
		if err != nil {
			cfg = Default()
		}
		configMu.Lock()
		globalConfig = cfg
		configMu.Unlock()
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// Set replaces the global configuration.
func Set(cfg *Config) {
	configOnce.Do(func() {})
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
}
