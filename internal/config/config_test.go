package config

import (
	"errors"
	"testing"

	"github.com/rawblock/babel-engine/pkg/models"
)

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Expected the default config to validate. Got: %v", err)
	}
}

func TestValidate_RejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ngram min zero", func(c *Config) { c.NgramMin = 0 }},
		{"ngram max below min", func(c *Config) { c.NgramMax = 1 }},
		{"ngram max above 16", func(c *Config) { c.NgramMax = 17 }},
		{"zero depth", func(c *Config) { c.EnumDepth = 0 }},
		{"negative weight", func(c *Config) { c.WeightExact = -0.1 }},
		{"all-zero weights", func(c *Config) { c.WeightLanguage = 0; c.WeightStructure = 0; c.WeightNgram = 0; c.WeightExact = 0 }},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }},
		{"zero cache entries", func(c *Config) { c.CacheMaxEntries = 0 }},
		{"overfetch below 1", func(c *Config) { c.OverfetchFactor = 0.5 }},
		{"overfetch above 10", func(c *Config) { c.OverfetchFactor = 11 }},
		{"zero concurrency", func(c *Config) { c.ConcurrencyLimit = 0 }},
		{"zero deadline", func(c *Config) { c.Deadline = 0 }},
		{"zero remote timeout", func(c *Config) { c.RemoteTimeout = 0 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, models.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig. Got: %v", tc.name, err)
		}
	}
}

func TestValidate_RejectsUnknownDefaultMode(t *testing.T) {
	cfg := Default()
	cfg.DefaultMode = "galactic"
	if err := cfg.Validate(); !errors.Is(err, models.ErrInvalidMode) {
		t.Errorf("Expected ErrInvalidMode. Got: %v", err)
	}
}

func TestVersion_TracksScoringKnobs(t *testing.T) {
	base := Default().Version()

	if Default().Version() != base {
		t.Error("Expected a stable version digest for identical configs")
	}

	changed := Default()
	changed.WeightLanguage = 0.5
	if changed.Version() == base {
		t.Error("Expected the version digest to change with scoring weights")
	}

	// Options that do not affect ranked output leave the digest alone.
	ttlOnly := Default()
	ttlOnly.CacheTTL = 2 * ttlOnly.CacheTTL
	if ttlOnly.Version() != base {
		t.Error("Expected the version digest to ignore cache TTL")
	}
}

func TestFromEnv_ParsesOverrides(t *testing.T) {
	t.Setenv("BABEL_ENUM_DEPTH", "4")
	t.Setenv("BABEL_MODE_DEFAULT", "hybrid")
	t.Setenv("BABEL_CACHE_TTL_SECONDS", "120")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.EnumDepth != 4 {
		t.Errorf("Expected depth override 4. Got: %d", cfg.EnumDepth)
	}
	if cfg.DefaultMode != models.ModeHybrid {
		t.Errorf("Expected hybrid default mode. Got: %s", cfg.DefaultMode)
	}
	if cfg.CacheTTL.Seconds() != 120 {
		t.Errorf("Expected 120s TTL. Got: %s", cfg.CacheTTL)
	}
}

func TestFromEnv_RejectsBadMode(t *testing.T) {
	t.Setenv("BABEL_MODE_DEFAULT", "sideways")

	if _, err := FromEnv(); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for a bad mode. Got: %v", err)
	}
}
