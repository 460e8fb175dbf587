package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rawblock/babel-engine/internal/cache"
	"github.com/rawblock/babel-engine/internal/clock"
	"github.com/rawblock/babel-engine/internal/config"
	"github.com/rawblock/babel-engine/internal/enumerator"
	"github.com/rawblock/babel-engine/internal/generator"
	"github.com/rawblock/babel-engine/internal/normalize"
	"github.com/rawblock/babel-engine/internal/scorer"
	"github.com/rawblock/babel-engine/pkg/models"
)

// Search Pipeline
//
// Binds enumerator → generator/mirror → scorer into one search operation:
// overfetch candidates, materialize and score each page on a bounded worker
// pool, cut below the score floor, rank, and memoize. The pipeline owns the
// only shared mutable state in the engine (the result cache) and is the
// only component that surfaces caller-visible errors.
//
// Ranking is a pure function of the request: overall score descending,
// ties by address ascending, never worker arrival order.

// PageFetcher is the remote mirror collaborator used in remote and hybrid
// modes. Implementations must return pages that pass ValidatePage.
type PageFetcher interface {
	FetchPage(ctx context.Context, address string) (string, error)
}

// Pipeline orchestrates a coherence search over the Babel space.
type Pipeline struct {
	cfg        config.Config
	enum       *enumerator.Enumerator
	scorer     *scorer.Scorer
	cache      *cache.Cache
	fetcher    PageFetcher
	normalizer normalize.Normalizer
	clk        clock.Clock
	version    string
}

// New wires a pipeline from a validated config. fetcher may be nil (remote
// fetches then fail per-candidate and hybrid degrades to local); normalizer
// may be nil (the hook is skipped); a nil clock means wall time.
func New(cfg config.Config, clk clock.Clock, fetcher PageFetcher, normalizer normalize.Normalizer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.System{}
	}

	enum, err := enumerator.New(enumerator.Config{
		MinNgram:   cfg.NgramMin,
		MaxNgram:   cfg.NgramMax,
		Depth:      cfg.EnumDepth,
		MaxResults: cfg.EnumMaxResults,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg: cfg,
		enum: enum,
		scorer: scorer.New(scorer.Weights{
			Language:  cfg.WeightLanguage,
			Structure: cfg.WeightStructure,
			Ngram:     cfg.WeightNgram,
			Exact:     cfg.WeightExact,
		}),
		cache:      cache.New(cfg.CacheTTL, cfg.CacheMaxEntries, clk),
		fetcher:    fetcher,
		normalizer: normalizer,
		clk:        clk,
		version:    cfg.Version(),
	}, nil
}

// Cache exposes the result cache for checkpointing and admin flushes.
func (p *Pipeline) Cache() *cache.Cache { return p.cache }

// Scorer exposes the configured scorer for collaborators (explorer, API).
func (p *Pipeline) Scorer() *scorer.Scorer { return p.scorer }

// Generate materializes the page behind an address.
func (p *Pipeline) Generate(address string) string {
	return generator.AddressToPage(address)
}

// Enumerate exposes candidate enumeration to the API layer.
func (p *Pipeline) Enumerate(query string, maxResults, depth int) ([]models.Candidate, error) {
	return p.enum.Enumerate(query, maxResults, depth)
}

// Decode scores a single page against an optional query and wraps it with
// provenance. Empty text means "generate the page behind the address".
func (p *Pipeline) Decode(address, text, query string) models.DecodedPage {
	source := "remote"
	if text == "" {
		text = generator.AddressToPage(address)
		source = "local"
	}
	query = enumerator.Normalize(query)
	return p.wrapPage(address, text, query, source)
}

// Search runs the full pipeline for a query.
//
// mode "" falls back to the configured default. minScore is clamped to
// [0,100]. maxResults <= 0 yields an empty result, not an error. A search
// that finds nothing is a legitimate empty result; ErrDeadline is returned
// only when the deadline expired before anything was scored.
func (p *Pipeline) Search(ctx context.Context, query string, maxResults int, mode models.SearchMode, minScore float64) (models.SearchResult, error) {
	started := time.Now()

	if mode == "" {
		mode = p.cfg.DefaultMode
	}
	if _, ok := models.ParseSearchMode(string(mode)); !ok {
		return models.SearchResult{}, fmt.Errorf("%w: %q", models.ErrInvalidMode, mode)
	}
	minScore = math.Min(100, math.Max(0, minScore))

	normalized := enumerator.Normalize(query)
	if normalized == "" {
		return models.SearchResult{}, fmt.Errorf("%w: query is empty after normalization", models.ErrInvalidQuery)
	}
	if maxResults <= 0 {
		return models.SearchResult{Query: normalized, Results: []models.DecodedPage{}}, nil
	}

	fp := Fingerprint(normalized, maxResults, mode, minScore, p.version)
	if entry, ok := p.cache.Get(fp); ok {
		return p.resultFromEntry(normalized, entry, maxResults, started), nil
	}

	// Overfetch so the score cutoff can discard candidates without
	// under-returning.
	overfetch := int(math.Ceil(float64(maxResults) * p.cfg.OverfetchFactor))
	candidates, err := p.enum.Enumerate(normalized, overfetch, p.cfg.EnumDepth)
	if err != nil {
		return models.SearchResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Deadline)
	defer cancel()

	pages := p.scoreCandidates(ctx, candidates, normalized, mode)
	partial := ctx.Err() != nil

	// Cut, then rank: overall descending, ties by address ascending.
	kept := pages[:0]
	for _, pg := range pages {
		if pg.Coherence.OverallScore >= minScore {
			kept = append(kept, pg)
		}
	}
	sort.Slice(kept, func(a, b int) bool {
		if kept[a].Coherence.OverallScore != kept[b].Coherence.OverallScore {
			return kept[a].Coherence.OverallScore > kept[b].Coherence.OverallScore
		}
		return kept[a].Address < kept[b].Address
	})

	if p.cfg.NormalizeHook && p.normalizer != nil && len(kept) > 0 {
		p.normalizeWinner(ctx, &kept[0])
	}

	if partial {
		if len(pages) == 0 {
			return models.SearchResult{Query: normalized}, fmt.Errorf("%w: nothing scored within %s", models.ErrDeadline, p.cfg.Deadline)
		}
		log.Printf("[Pipeline] Deadline hit for %q: returning %d partial results", normalized, len(kept))
	} else {
		// Cache only complete runs; the full filtered list is stored so a
		// hit reproduces both the results and the total-found count.
		p.cache.Put(fp, kept)
	}

	results := kept
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return models.SearchResult{
		Query:      normalized,
		Results:    append([]models.DecodedPage(nil), results...),
		TotalFound: len(kept),
		ElapsedMs:  float64(time.Since(started).Microseconds()) / 1000.0,
	}, nil
}

// scoreCandidates fans candidate pages out to a bounded worker pool and
// collects the scored pages. Per-candidate failures are logged and skipped;
// cancellation drains promptly.
func (p *Pipeline) scoreCandidates(ctx context.Context, candidates []models.Candidate, query string, mode models.SearchMode) []models.DecodedPage {
	if len(candidates) == 0 {
		return nil
	}

	workers := p.cfg.ConcurrencyLimit
	if len(candidates) < workers {
		workers = len(candidates)
	}

	jobs := make(chan models.Candidate)
	out := make(chan models.DecodedPage, len(candidates))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				page, source, err := p.acquirePage(ctx, cand.Address, mode)
				if err != nil {
					log.Printf("[Pipeline] Skipping candidate %s: %v", cand.Address, err)
					continue
				}
				out <- p.wrapPage(cand.Address, page, query, source)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, cand := range candidates {
			select {
			case jobs <- cand:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(out)

	pages := make([]models.DecodedPage, 0, len(candidates))
	for pg := range out {
		pages = append(pages, pg)
	}
	return pages
}

// acquirePage obtains a page by mode: local generates, remote fetches, and
// hybrid tries the mirror before falling back to the generator.
func (p *Pipeline) acquirePage(ctx context.Context, address string, mode models.SearchMode) (string, string, error) {
	switch mode {
	case models.ModeLocal:
		return generator.AddressToPage(address), "local", nil

	case models.ModeRemote:
		if p.fetcher == nil {
			return "", "", fmt.Errorf("%w: no mirror configured", models.ErrRemoteFetch)
		}
		page, err := p.fetchWithTimeout(ctx, address)
		if err != nil {
			return "", "", err
		}
		return page, "remote", nil

	case models.ModeHybrid:
		if p.fetcher != nil {
			if page, err := p.fetchWithTimeout(ctx, address); err == nil {
				return page, "remote", nil
			} else {
				log.Printf("[Pipeline] Mirror miss for %s, falling back to generator: %v", address, err)
			}
		}
		return generator.AddressToPage(address), "local", nil
	}
	return "", "", fmt.Errorf("%w: %q", models.ErrInvalidMode, mode)
}

func (p *Pipeline) fetchWithTimeout(ctx context.Context, address string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RemoteTimeout)
	defer cancel()
	return p.fetcher.FetchPage(ctx, address)
}

// wrapPage scores a page and attaches provenance.
func (p *Pipeline) wrapPage(address, text, query, source string) models.DecodedPage {
	return models.DecodedPage{
		Address:   address,
		RawText:   text,
		Query:     query,
		Source:    source,
		Coherence: p.scorer.Score(text, query),
		Provenance: models.Provenance{
			Timestamp: p.clk.Now(),
			Source:    source,
		},
	}
}

// normalizeWinner passes the top-ranked page through the configured hook.
// Hook failures are logged and ignored; ranking is never altered.
func (p *Pipeline) normalizeWinner(ctx context.Context, page *models.DecodedPage) {
	normalized, err := p.normalizer.Normalize(ctx, page.RawText, page.Query)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[Pipeline] Normalization hook failed for %s: %v", page.Address, err)
		}
		return
	}
	page.NormalizedText = normalized
	page.Provenance.Normalized = true
}

// resultFromEntry rebuilds a SearchResult from a cached filtered list.
func (p *Pipeline) resultFromEntry(query string, entry models.CacheEntry, maxResults int, started time.Time) models.SearchResult {
	results := entry.Results
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return models.SearchResult{
		Query:      query,
		Results:    results,
		TotalFound: len(entry.Results),
		ElapsedMs:  float64(time.Since(started).Microseconds()) / 1000.0,
	}
}
