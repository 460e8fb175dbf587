package scorer

import (
	"math"
	"strings"

	"github.com/rawblock/babel-engine/pkg/models"
)

// Multi-Metric Coherence Scorer
//
// Composites four sub-metrics into a single weighted coherence verdict:
//
//	language:  density of common English tokens
//	structure: sentence and punctuation cadence
//	ngram:     letter-bigram entropy distance from an English target
//	exact:     query substring coverage
//
// Every sub-score and the overall score lie in [0,100]. The scorer is a
// total function: any finite text and any query produce a score, never an
// error. Empty text scores zero across the board.
//
// Confidence buckets (fixed thresholds):
//
//	high >= 80 > medium >= 60 > sparse >= 40 > minimal

// Bigram entropy tuning. English prose sits near the target; uniform noise
// over the 29-symbol alphabet runs several bits hotter and is pushed down
// the scale. See the tests for the calibration inputs.
const (
	entropyTarget = 4.2
	entropySlope  = 15.0
)

// Weights are the sub-metric contributions to the overall score. They are
// normalized to sum to 1 at construction.
type Weights struct {
	Language  float64 `json:"language"`
	Structure float64 `json:"structure"`
	Ngram     float64 `json:"ngram"`
	Exact     float64 `json:"exact"`
}

// DefaultWeights returns the calibrated default weighting.
func DefaultWeights() Weights {
	return Weights{Language: 0.30, Structure: 0.20, Ngram: 0.20, Exact: 0.30}
}

// normalized scales the weights to sum to 1, falling back to the defaults
// when the sum is not positive.
func (w Weights) normalized() Weights {
	sum := w.Language + w.Structure + w.Ngram + w.Exact
	if sum <= 0 || w.Language < 0 || w.Structure < 0 || w.Ngram < 0 || w.Exact < 0 {
		return DefaultWeights()
	}
	return Weights{
		Language:  w.Language / sum,
		Structure: w.Structure / sum,
		Ngram:     w.Ngram / sum,
		Exact:     w.Exact / sum,
	}
}

// Scorer computes coherence scores under a fixed weighting.
type Scorer struct {
	weights Weights
}

// New builds a Scorer. Weights are normalized; zero or negative weight sets
// fall back to the defaults.
func New(w Weights) *Scorer {
	return &Scorer{weights: w.normalized()}
}

// Weights returns the normalized weighting in effect.
func (s *Scorer) Weights() Weights { return s.weights }

// Score computes the structured coherence score for text, optionally
// conditioned on a query. The overall score is always the weighted sum of
// the four sub-scores; with an empty query the exact-match metric is 0, so
// query-less scores top out at 100·(1−w.Exact).
func (s *Scorer) Score(text, query string) models.CoherenceScore {
	if text == "" {
		return models.CoherenceScore{ConfidenceLevel: models.ConfidenceMinimal}
	}

	metrics := make(map[string]float64)

	lang := languageScore(text, metrics)
	structure := structureScore(text, metrics)
	ngram := ngramScore(text, metrics)
	exact := exactMatchScore(text, query, metrics)

	w := s.weights
	overall := clamp(w.Language*lang + w.Structure*structure + w.Ngram*ngram + w.Exact*exact)

	return models.CoherenceScore{
		LanguageScore:   lang,
		StructureScore:  structure,
		NgramScore:      ngram,
		ExactMatchScore: exact,
		OverallScore:    overall,
		ConfidenceLevel: ConfidenceLevel(overall),
		Metrics:         metrics,
	}
}

// ConfidenceLevel buckets an overall score using the fixed thresholds.
func ConfidenceLevel(overall float64) string {
	switch {
	case overall >= 80:
		return models.ConfidenceHigh
	case overall >= 60:
		return models.ConfidenceMedium
	case overall >= 40:
		return models.ConfidenceSparse
	default:
		return models.ConfidenceMinimal
	}
}

// languageScore measures common-English token density: the fraction of
// whitespace tokens found in the fixed word list, scaled to [0,100].
func languageScore(text string, metrics map[string]float64) float64 {
	tokens := strings.Fields(strings.ToLower(text))
	hits := 0
	for _, tok := range tokens {
		if commonWords[strings.Trim(tok, ",.!?")] {
			hits++
		}
	}
	metrics["tokenCount"] = float64(len(tokens))
	metrics["englishTokens"] = float64(hits)

	n := len(tokens)
	if n < 1 {
		n = 1
	}
	return math.Min(100, math.Round(100*float64(hits)/float64(n)))
}

// structureScore rewards sentence-like cadence: terminal punctuation,
// a sane period rhythm, comma usage, and letter/space ratios typical of
// written English. Component sum, clipped to 100.
func structureScore(text string, metrics map[string]float64) float64 {
	score := 0.0
	textLen := float64(len(text))

	if strings.ContainsAny(text, ".!?") {
		score += 30
	}

	periods := float64(strings.Count(text, "."))
	metrics["periodCount"] = periods
	if periods >= 3 && periods <= textLen/80 {
		score += 20
	}

	if strings.Count(text, ", ") >= 2 {
		score += 20
	}

	letters := 0
	spaces := 0
	for i := 0; i < len(text); i++ {
		switch {
		case text[i] >= 'a' && text[i] <= 'z', text[i] >= 'A' && text[i] <= 'Z':
			letters++
		case text[i] == ' ':
			spaces++
		}
	}
	denom := math.Max(1, textLen)
	letterRatio := float64(letters) / denom
	spaceRatio := float64(spaces) / denom
	metrics["letterRatio"] = math.Round(letterRatio*1000) / 1000
	metrics["spaceRatio"] = math.Round(spaceRatio*1000) / 1000

	if letterRatio >= 0.55 && letterRatio <= 0.85 {
		score += 15
	}
	if spaceRatio >= 0.10 && spaceRatio <= 0.25 {
		score += 15
	}

	return math.Min(100, score)
}

// ngramScore measures letter-bigram coherence. Adjacent letter pairs are
// collected within words (whitespace and punctuation break pairs), their
// Shannon entropy is computed, and the score decays linearly with distance
// from the English-prose entropy target. Natural English lands well above
// uniform alphabet noise, whose bigram entropy runs several bits high.
func ngramScore(text string, metrics map[string]float64) float64 {
	counts := make(map[[2]byte]int)
	total := 0
	prev := byte(0)
	havePrev := false

	lower := strings.ToLower(text)
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c < 'a' || c > 'z' {
			havePrev = false
			continue
		}
		if havePrev {
			counts[[2]byte{prev, c}]++
			total++
		}
		prev = c
		havePrev = true
	}

	metrics["bigramCount"] = float64(total)
	metrics["distinctBigrams"] = float64(len(counts))
	if total == 0 {
		metrics["bigramEntropy"] = 0
		return 0
	}

	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	metrics["bigramEntropy"] = math.Round(entropy*100) / 100

	return clamp(math.Round(100 - math.Abs(entropy-entropyTarget)*entropySlope))
}

// exactMatchScore measures query coverage: 70 for one verbatim occurrence
// plus 5 per additional occurrence (capped at +30); with no verbatim hit,
// partial credit for the fraction of query 3-grams present in the text,
// scaled to at most 50.
func exactMatchScore(text, query string, metrics map[string]float64) float64 {
	if query == "" {
		return 0
	}
	t := strings.ToLower(text)
	q := strings.ToLower(query)

	occurrences := strings.Count(t, q)
	metrics["exactOccurrences"] = float64(occurrences)
	if occurrences >= 1 {
		return math.Min(100, 70+math.Min(30, 5*float64(occurrences-1)))
	}

	trigrams := queryTrigrams(q)
	if len(trigrams) == 0 {
		return 0
	}
	present := 0
	for _, g := range trigrams {
		if strings.Contains(t, g) {
			present++
		}
	}
	metrics["queryTrigramCoverage"] = math.Round(float64(present)/float64(len(trigrams))*100) / 100
	return math.Round(float64(present) / float64(len(trigrams)) * 50)
}

// queryTrigrams returns the unique contiguous 3-grams of q; queries shorter
// than three characters fall back to the query itself.
func queryTrigrams(q string) []string {
	if len(q) < 3 {
		if q == "" {
			return nil
		}
		return []string{q}
	}
	seen := make(map[string]bool)
	var grams []string
	for i := 0; i+3 <= len(q); i++ {
		g := q[i : i+3]
		if !seen[g] {
			seen[g] = true
			grams = append(grams, g)
		}
	}
	return grams
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
