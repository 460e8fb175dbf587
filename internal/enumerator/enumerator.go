package enumerator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rawblock/babel-engine/pkg/models"
)

// Query Enumerator
//
// Derives a ranked list of candidate addresses from a free-form query.
// N-grams of the normalized query are hashed, per variant, into the address
// space; longer n-grams dominate the ranking and deeper variants decay.
// The output is a deterministic function of (query, config): same inputs,
// identical candidate list in identical order.
//
// This is a ranked candidate generator, not a search-index inverter: the
// produced addresses are not guaranteed to contain the query verbatim.

// Config holds the enumeration knobs. Bounds are validated once at
// construction; requests never see a config error.
type Config struct {
	MinNgram   int // smallest n-gram size, >= 1
	MaxNgram   int // largest n-gram size, <= 16
	Depth      int // variants emitted per n-gram, >= 1
	MaxResults int // default candidate cap, >= 1
}

// DefaultConfig returns the standard enumeration knobs.
func DefaultConfig() Config {
	return Config{
		MinNgram:   2,
		MaxNgram:   5,
		Depth:      2,
		MaxResults: 10,
	}
}

// Validate checks the config bounds: 1 <= MinNgram <= MaxNgram <= 16,
// Depth >= 1, MaxResults >= 1.
func (c Config) Validate() error {
	if c.MinNgram < 1 || c.MaxNgram < c.MinNgram || c.MaxNgram > 16 {
		return fmt.Errorf("%w: ngram bounds [%d,%d] outside 1 <= min <= max <= 16",
			models.ErrInvalidConfig, c.MinNgram, c.MaxNgram)
	}
	if c.Depth < 1 {
		return fmt.Errorf("%w: depth %d < 1", models.ErrInvalidConfig, c.Depth)
	}
	if c.MaxResults < 1 {
		return fmt.Errorf("%w: maxResults %d < 1", models.ErrInvalidConfig, c.MaxResults)
	}
	return nil
}

// Enumerator turns query text into ranked address candidates.
type Enumerator struct {
	cfg Config
}

// New builds an Enumerator, rejecting out-of-range configs up front.
func New(cfg Config) (*Enumerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Enumerator{cfg: cfg}, nil
}

// Normalize lowercases the query, collapses internal whitespace runs to
// single spaces, and trims the ends.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// ExtractNgrams returns the unique n-grams of text with sizes in
// [minSize, maxSize], longest sizes first, left-to-right within a size,
// deduplicated preserving first-seen order.
func ExtractNgrams(text string, minSize, maxSize int) []string {
	var grams []string
	seen := make(map[string]bool)

	for size := maxSize; size >= minSize; size-- {
		for i := 0; i+size <= len(text); i++ {
			g := text[i : i+size]
			if !seen[g] {
				seen[g] = true
				grams = append(grams, g)
			}
		}
	}
	return grams
}

// Enumerate derives at most maxResults candidates from the query.
// depth controls how many deterministic variants are emitted per n-gram.
// Non-positive maxResults or depth fall back to the configured defaults.
// Returns ErrInvalidQuery if the query normalizes to the empty string.
func (e *Enumerator) Enumerate(query string, maxResults, depth int) ([]models.Candidate, error) {
	normalized := Normalize(query)
	if normalized == "" {
		return nil, fmt.Errorf("%w: query is empty after normalization", models.ErrInvalidQuery)
	}
	if maxResults < 1 {
		maxResults = e.cfg.MaxResults
	}
	if depth < 1 {
		depth = e.cfg.Depth
	}

	grams := ExtractNgrams(normalized, e.cfg.MinNgram, e.cfg.MaxNgram)

	// Derive one candidate per (ngram, variant), merging collisions on the
	// same address: scores add, n-gram sets union, smallest depth wins.
	type merged struct {
		score  float64
		ngrams map[string]bool
		depth  int
	}
	byAddr := make(map[string]*merged)

	for _, g := range grams {
		for variant := 1; variant <= depth; variant++ {
			h := sha256.Sum256([]byte(g + ":" + strconv.Itoa(variant)))
			addr := hex.EncodeToString(h[:])
			score := float64(len(g)) + 1.0/float64(variant+1)

			if m, ok := byAddr[addr]; ok {
				m.score += score
				m.ngrams[g] = true
				if variant < m.depth {
					m.depth = variant
				}
			} else {
				byAddr[addr] = &merged{
					score:  score,
					ngrams: map[string]bool{g: true},
					depth:  variant,
				}
			}
		}
	}

	candidates := make([]models.Candidate, 0, len(byAddr))
	for addr, m := range byAddr {
		ngrams := make([]string, 0, len(m.ngrams))
		for g := range m.ngrams {
			ngrams = append(ngrams, g)
		}
		sort.Strings(ngrams)
		candidates = append(candidates, models.Candidate{
			Address: addr,
			Score:   m.score,
			Ngrams:  ngrams,
			Depth:   m.depth,
		})
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}
		return candidates[a].Address < candidates[b].Address
	})

	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates, nil
}
