package scorer

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/rawblock/babel-engine/internal/generator"
	"github.com/rawblock/babel-engine/pkg/models"
)

// englishPage builds a 3200-char page of ordinary English prose.
func englishPage() string {
	sentence := "the dog would come back to the house, and then, after a while, " +
		"he would go out to look at the day again. it was a good day to be out, " +
		"and the dog knew it well. "
	return strings.Repeat(sentence, 30)[:3200]
}

// noisePage is uniform 29-symbol noise: exactly what the generator emits.
func noisePage() string {
	return generator.AddressToPage("deadbeef")
}

func TestScore_Bounds(t *testing.T) {
	s := New(DefaultWeights())

	for _, text := range []string{englishPage(), noisePage(), "short.", "a b c"} {
		for _, query := range []string{"", "dog", "zzzzzz"} {
			c := s.Score(text, query)
			for name, v := range map[string]float64{
				"language":  c.LanguageScore,
				"structure": c.StructureScore,
				"ngram":     c.NgramScore,
				"exact":     c.ExactMatchScore,
				"overall":   c.OverallScore,
			} {
				if v < 0 || v > 100 {
					t.Errorf("%s score %.2f outside [0,100] for query %q", name, v, query)
				}
			}
		}
	}
}

func TestScore_OverallIsWeightedSum(t *testing.T) {
	s := New(DefaultWeights())
	w := s.Weights()

	c := s.Score(englishPage(), "the dog")
	want := w.Language*c.LanguageScore + w.Structure*c.StructureScore +
		w.Ngram*c.NgramScore + w.Exact*c.ExactMatchScore
	if math.Abs(c.OverallScore-want) > 1e-9 {
		t.Errorf("Overall %.12f does not equal weighted sum %.12f", c.OverallScore, want)
	}
}

func TestScore_Repeatable(t *testing.T) {
	s := New(DefaultWeights())
	first := s.Score(englishPage(), "dog")
	second := s.Score(englishPage(), "dog")
	if !reflect.DeepEqual(first, second) {
		t.Error("Expected bit-identical scores on repeated evaluation")
	}
}

func TestScore_EnglishVsNoise(t *testing.T) {
	s := New(DefaultWeights())

	english := s.Score(englishPage(), "")
	noise := s.Score(noisePage(), "")

	// Common-token density is the discriminator: >= 20 points of daylight.
	if english.LanguageScore-noise.LanguageScore < 20 {
		t.Errorf("Expected language gap >= 20. Got: %.1f vs %.1f",
			english.LanguageScore, noise.LanguageScore)
	}
	if noise.LanguageScore != 0 {
		t.Errorf("Expected zero language score for uniform noise. Got: %.1f", noise.LanguageScore)
	}

	if english.ConfidenceLevel != models.ConfidenceHigh && english.ConfidenceLevel != models.ConfidenceMedium {
		t.Errorf("Expected medium/high confidence for English prose. Got: %s (overall %.1f)",
			english.ConfidenceLevel, english.OverallScore)
	}
	if noise.ConfidenceLevel != models.ConfidenceSparse && noise.ConfidenceLevel != models.ConfidenceMinimal {
		t.Errorf("Expected sparse/minimal confidence for noise. Got: %s (overall %.1f)",
			noise.ConfidenceLevel, noise.OverallScore)
	}
}

func TestScore_PangramLanguageGap(t *testing.T) {
	// The classic pangram paragraph against noise of the same length.
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. the quick brown fox again. ", 50)[:3200]
	s := New(DefaultWeights())

	gap := s.Score(text, "").LanguageScore - s.Score(noisePage(), "").LanguageScore
	if gap < 20 {
		t.Errorf("Expected language gap >= 20 for pangram text. Got: %.1f", gap)
	}
}

func TestScore_ExactMatchBoost(t *testing.T) {
	text := "xxx alpha yyy alpha zzz"
	text += strings.Repeat(" ", 3200-len(text))
	s := New(DefaultWeights())

	withQuery := s.Score(text, "alpha")
	withoutQuery := s.Score(text, "")

	if withQuery.ExactMatchScore < 70 {
		t.Errorf("Expected exact-match score >= 70 for two occurrences. Got: %.1f", withQuery.ExactMatchScore)
	}
	if withQuery.OverallScore <= withoutQuery.OverallScore {
		t.Errorf("Expected query match to raise overall: %.1f vs %.1f",
			withQuery.OverallScore, withoutQuery.OverallScore)
	}
	if withoutQuery.ExactMatchScore != 0 {
		t.Errorf("Expected zero exact-match score without a query. Got: %.1f", withoutQuery.ExactMatchScore)
	}
}

func TestScore_PartialTrigramCoverage(t *testing.T) {
	// No verbatim hit, but the query's 3-grams appear: partial credit < 70.
	text := "the alp and the pha are separate here. " + strings.Repeat("padding words here. ", 100)
	s := New(DefaultWeights())

	c := s.Score(text, "alpha")
	if c.ExactMatchScore <= 0 || c.ExactMatchScore > 50 {
		t.Errorf("Expected partial coverage in (0,50]. Got: %.1f", c.ExactMatchScore)
	}
}

func TestScore_EmptyText(t *testing.T) {
	c := New(DefaultWeights()).Score("", "anything")
	if c.OverallScore != 0 || c.LanguageScore != 0 || c.StructureScore != 0 ||
		c.NgramScore != 0 || c.ExactMatchScore != 0 {
		t.Error("Expected all-zero scores for empty text")
	}
	if c.ConfidenceLevel != models.ConfidenceMinimal {
		t.Errorf("Expected minimal confidence for empty text. Got: %s", c.ConfidenceLevel)
	}
}

func TestConfidenceLevel_Thresholds(t *testing.T) {
	cases := []struct {
		overall float64
		want    string
	}{
		{100, models.ConfidenceHigh},
		{80, models.ConfidenceHigh},
		{79.9, models.ConfidenceMedium},
		{60, models.ConfidenceMedium},
		{59.9, models.ConfidenceSparse},
		{40, models.ConfidenceSparse},
		{39.9, models.ConfidenceMinimal},
		{0, models.ConfidenceMinimal},
	}
	for _, tc := range cases {
		if got := ConfidenceLevel(tc.overall); got != tc.want {
			t.Errorf("ConfidenceLevel(%.1f): expected %s. Got: %s", tc.overall, tc.want, got)
		}
	}
}

func TestWeights_Normalization(t *testing.T) {
	w := New(Weights{Language: 2, Structure: 1, Ngram: 1, Exact: 2}).Weights()
	sum := w.Language + w.Structure + w.Ngram + w.Exact
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("Expected normalized weights to sum to 1. Got: %.12f", sum)
	}
	if math.Abs(w.Language-1.0/3.0) > 1e-9 {
		t.Errorf("Expected language weight 1/3. Got: %.12f", w.Language)
	}

	// Degenerate weights fall back to the defaults.
	if got := New(Weights{}).Weights(); got != DefaultWeights() {
		t.Errorf("Expected default weights for a zero weight set. Got: %+v", got)
	}
	if got := New(Weights{Language: -1, Structure: 2, Ngram: 0, Exact: 0}).Weights(); got != DefaultWeights() {
		t.Errorf("Expected default weights for a negative weight set. Got: %+v", got)
	}
}
