package explorer

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rawblock/babel-engine/internal/clock"
	"github.com/rawblock/babel-engine/internal/db"
	"github.com/rawblock/babel-engine/internal/generator"
	"github.com/rawblock/babel-engine/internal/scorer"
)

// Explorer sweeps a deterministic walk of the Babel space, scoring every
// page with no query, and surfaces the rare pages whose coherence clears a
// threshold. Discoveries are broadcast through the alert callback and
// persisted to the store. This gives the engine retroactive coverage of
// the space beyond whatever users happen to search for.
type Explorer struct {
	scorer    *scorer.Scorer
	dbStore   *db.PostgresStore
	alertFunc func(Discovery) // Optional broadcast callback
	clk       clock.Clock

	// Progress tracking (atomic for safe concurrent reads)
	currentIndex    atomic.Int64
	pagesScanned    atomic.Int64
	discoveriesMade atomic.Int64
	isRunning       atomic.Bool
}

// Discovery is a real-time notification emitted when a coherent page is found.
type Discovery struct {
	ID         string  `json:"id"`
	Address    string  `json:"address"`
	Score      float64 `json:"score"`
	Confidence string  `json:"confidence"`
	Excerpt    string  `json:"excerpt"`
	Timestamp  string  `json:"timestamp"`
}

// Progress is the explorer's current state for the API.
type Progress struct {
	IsRunning       bool  `json:"isRunning"`
	CurrentIndex    int64 `json:"currentIndex"`
	PagesScanned    int64 `json:"pagesScanned"`
	DiscoveriesMade int64 `json:"discoveriesMade"`
}

const excerptLength = 120

func New(sc *scorer.Scorer, dbStore *db.PostgresStore, clk clock.Clock, alertFunc func(Discovery)) *Explorer {
	if clk == nil {
		clk = clock.System{}
	}
	return &Explorer{
		scorer:    sc,
		dbStore:   dbStore,
		alertFunc: alertFunc,
		clk:       clk,
	}
}

// GetProgress returns the current sweep progress (thread-safe)
func (e *Explorer) GetProgress() Progress {
	return Progress{
		IsRunning:       e.isRunning.Load(),
		CurrentIndex:    e.currentIndex.Load(),
		PagesScanned:    e.pagesScanned.Load(),
		DiscoveriesMade: e.discoveriesMade.Load(),
	}
}

// Sweep walks `pages` addresses derived from the seed asynchronously,
// scoring each generated page and emitting discoveries at or above
// minScore. Only one sweep runs at a time.
func (e *Explorer) Sweep(ctx context.Context, seed string, pages int, minScore float64) {
	if !e.isRunning.CompareAndSwap(false, true) {
		log.Println("[Explorer] Sweep already in progress, ignoring duplicate request")
		return
	}

	e.pagesScanned.Store(0)
	e.discoveriesMade.Store(0)

	go func() {
		defer e.isRunning.Store(false)

		log.Printf("[Explorer] Starting sweep: %d pages from seed %q (min score %.1f)",
			pages, seed, minScore)

		for i := 0; i < pages; i++ {
			select {
			case <-ctx.Done():
				log.Printf("[Explorer] Sweep cancelled at page %d", i)
				return
			default:
			}

			e.currentIndex.Store(int64(i))
			e.scanPage(ctx, fmt.Sprintf("%s:%d", seed, i), minScore)

			scanned := e.pagesScanned.Load()
			if scanned%100 == 0 && scanned > 0 {
				log.Printf("[Explorer] Progress: %d/%d pages | %d discoveries",
					scanned, pages, e.discoveriesMade.Load())
			}
		}

		log.Printf("[Explorer] Sweep complete: %d pages scanned, %d discoveries",
			e.pagesScanned.Load(), e.discoveriesMade.Load())
	}()
}

// scanPage generates and scores a single page of the walk.
func (e *Explorer) scanPage(ctx context.Context, walkKey string, minScore float64) {
	address := generator.RandomAddress(walkKey)
	page := generator.AddressToPage(address)
	coherence := e.scorer.Score(page, "")
	e.pagesScanned.Add(1)

	if coherence.OverallScore < minScore {
		return
	}

	discovery := Discovery{
		ID:         uuid.New().String(),
		Address:    address,
		Score:      coherence.OverallScore,
		Confidence: coherence.ConfidenceLevel,
		Excerpt:    page[:excerptLength],
		Timestamp:  e.clk.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	e.discoveriesMade.Add(1)

	if e.alertFunc != nil {
		e.alertFunc(discovery)
	}
	if e.dbStore != nil {
		if err := e.dbStore.SaveDiscovery(ctx, db.DiscoveryRecord{
			ID:         discovery.ID,
			Address:    discovery.Address,
			Score:      discovery.Score,
			Confidence: discovery.Confidence,
			Excerpt:    discovery.Excerpt,
		}); err != nil {
			log.Printf("[Explorer] Failed to persist discovery %s: %v", discovery.Address, err)
		}
	}
}
