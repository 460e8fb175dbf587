package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rawblock/babel-engine/pkg/models"
)

// Engine Configuration
//
// One typed struct for every recognized option. Bounds are checked once,
// at configuration time, so a request never observes a config error. All
// values have working defaults; the environment overrides them, and
// secrets (DATABASE_URL, API_AUTH_TOKEN) come only from the environment.

// Config holds the engine's runtime options.
type Config struct {
	// Enumeration
	NgramMin       int
	NgramMax       int
	EnumDepth      int
	EnumMaxResults int

	// Scoring weights; normalized to sum to 1 by the scorer.
	WeightLanguage  float64
	WeightStructure float64
	WeightNgram     float64
	WeightExact     float64

	// Cache
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Pipeline
	OverfetchFactor  float64
	ConcurrencyLimit int
	Deadline         time.Duration
	RemoteTimeout    time.Duration

	// Modes and collaborators
	DefaultMode   models.SearchMode
	RemoteBaseURL string // empty disables remote/hybrid page fetching
	NormalizeHook bool   // pass the winning page through the normalizer
}

// Default returns the standard engine configuration.
func Default() Config {
	return Config{
		NgramMin:         2,
		NgramMax:         5,
		EnumDepth:        2,
		EnumMaxResults:   10,
		WeightLanguage:   0.30,
		WeightStructure:  0.20,
		WeightNgram:      0.20,
		WeightExact:      0.30,
		CacheTTL:         time.Hour,
		CacheMaxEntries:  1024,
		OverfetchFactor:  3,
		ConcurrencyLimit: 8,
		Deadline:         15 * time.Second,
		RemoteTimeout:    5 * time.Second,
		DefaultMode:      models.ModeLocal,
	}
}

// FromEnv layers environment overrides over the defaults and validates.
func FromEnv() (Config, error) {
	cfg := Default()

	intVar(&cfg.NgramMin, "BABEL_NGRAM_MIN")
	intVar(&cfg.NgramMax, "BABEL_NGRAM_MAX")
	intVar(&cfg.EnumDepth, "BABEL_ENUM_DEPTH")
	intVar(&cfg.EnumMaxResults, "BABEL_ENUM_MAX_RESULTS")
	floatVar(&cfg.WeightLanguage, "BABEL_WEIGHT_LANGUAGE")
	floatVar(&cfg.WeightStructure, "BABEL_WEIGHT_STRUCTURE")
	floatVar(&cfg.WeightNgram, "BABEL_WEIGHT_NGRAM")
	floatVar(&cfg.WeightExact, "BABEL_WEIGHT_EXACT")
	secondsVar(&cfg.CacheTTL, "BABEL_CACHE_TTL_SECONDS")
	intVar(&cfg.CacheMaxEntries, "BABEL_CACHE_MAX_ENTRIES")
	floatVar(&cfg.OverfetchFactor, "BABEL_OVERFETCH_FACTOR")
	intVar(&cfg.ConcurrencyLimit, "BABEL_CONCURRENCY_LIMIT")
	secondsVar(&cfg.Deadline, "BABEL_DEADLINE_SECONDS")
	secondsVar(&cfg.RemoteTimeout, "BABEL_REMOTE_TIMEOUT_SECONDS")

	if v := os.Getenv("BABEL_MODE_DEFAULT"); v != "" {
		mode, ok := models.ParseSearchMode(v)
		if !ok {
			return cfg, fmt.Errorf("%w: BABEL_MODE_DEFAULT=%q", models.ErrInvalidConfig, v)
		}
		cfg.DefaultMode = mode
	}
	cfg.RemoteBaseURL = os.Getenv("BABEL_REMOTE_URL")
	cfg.NormalizeHook = os.Getenv("BABEL_NORMALIZE") == "true"

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every bound. Returns ErrInvalidConfig with the offending
// option named.
func (c Config) Validate() error {
	if c.NgramMin < 1 || c.NgramMax < c.NgramMin || c.NgramMax > 16 {
		return fmt.Errorf("%w: ngram bounds [%d,%d]", models.ErrInvalidConfig, c.NgramMin, c.NgramMax)
	}
	if c.EnumDepth < 1 {
		return fmt.Errorf("%w: enum depth %d", models.ErrInvalidConfig, c.EnumDepth)
	}
	if c.EnumMaxResults < 1 {
		return fmt.Errorf("%w: enum max results %d", models.ErrInvalidConfig, c.EnumMaxResults)
	}
	if c.WeightLanguage < 0 || c.WeightStructure < 0 || c.WeightNgram < 0 || c.WeightExact < 0 {
		return fmt.Errorf("%w: negative scoring weight", models.ErrInvalidConfig)
	}
	if c.WeightLanguage+c.WeightStructure+c.WeightNgram+c.WeightExact <= 0 {
		return fmt.Errorf("%w: scoring weights sum to zero", models.ErrInvalidConfig)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache TTL %s", models.ErrInvalidConfig, c.CacheTTL)
	}
	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("%w: cache max entries %d", models.ErrInvalidConfig, c.CacheMaxEntries)
	}
	if c.OverfetchFactor < 1 || c.OverfetchFactor > 10 {
		return fmt.Errorf("%w: overfetch factor %.2f outside [1,10]", models.ErrInvalidConfig, c.OverfetchFactor)
	}
	if c.ConcurrencyLimit < 1 {
		return fmt.Errorf("%w: concurrency limit %d", models.ErrInvalidConfig, c.ConcurrencyLimit)
	}
	if c.Deadline <= 0 {
		return fmt.Errorf("%w: deadline %s", models.ErrInvalidConfig, c.Deadline)
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("%w: remote timeout %s", models.ErrInvalidConfig, c.RemoteTimeout)
	}
	if _, ok := models.ParseSearchMode(string(c.DefaultMode)); !ok {
		return fmt.Errorf("%w: %w: default mode %q", models.ErrInvalidConfig, models.ErrInvalidMode, c.DefaultMode)
	}
	return nil
}

// Version digests the options that affect search output. It keys cache
// fingerprints so a config change never serves stale ranked results.
func (c Config) Version() string {
	material := fmt.Sprintf("v1|%d|%d|%d|%d|%.6f|%.6f|%.6f|%.6f|%.2f",
		c.NgramMin, c.NgramMax, c.EnumDepth, c.EnumMaxResults,
		c.WeightLanguage, c.WeightStructure, c.WeightNgram, c.WeightExact,
		c.OverfetchFactor)
	h := sha256.Sum256([]byte(material))
	return hex.EncodeToString(h[:8])
}

func intVar(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func floatVar(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func secondsVar(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
}
