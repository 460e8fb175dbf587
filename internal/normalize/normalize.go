package normalize

import (
	"context"
	"strings"
)

// Optional Normalization Hook
//
// A provider-configurable capability the pipeline may pass a winning page
// through before returning it. The contract is intentionally small: pure
// text in, text out, context-bounded. Providers (e.g. an LLM cleanup pass)
// plug in behind the interface; the pipeline only records normalized=true
// in provenance and never lets the hook alter ranking.

// Normalizer rewrites page text, optionally steered by the query.
type Normalizer interface {
	Normalize(ctx context.Context, text, query string) (string, error)
}

// Passthrough is the default normalizer: it collapses whitespace runs to
// single spaces and changes nothing else, so enabling the hook without a
// provider is harmless.
type Passthrough struct{}

func (Passthrough) Normalize(_ context.Context, text, _ string) (string, error) {
	return strings.Join(strings.Fields(text), " "), nil
}
