package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/rawblock/babel-engine/internal/clock"
	"github.com/rawblock/babel-engine/pkg/models"
)

func testPages(address string, score float64) []models.DecodedPage {
	return []models.DecodedPage{{
		Address:   address,
		RawText:   "page-body",
		Source:    "local",
		Coherence: models.CoherenceScore{OverallScore: score},
	}}
}

func TestCache_HitAndExpiry(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := New(time.Hour, 16, clk)

	c.Put("fp1", testPages("aa", 50))

	entry, ok := c.Get("fp1")
	if !ok {
		t.Fatal("Expected a cache hit within TTL")
	}
	if len(entry.Results) != 1 || entry.Results[0].Address != "aa" {
		t.Errorf("Unexpected cached results: %+v", entry.Results)
	}

	// One second short of the TTL: still a hit.
	clk.Advance(time.Hour - time.Second)
	if _, ok := c.Get("fp1"); !ok {
		t.Error("Expected a hit just inside the TTL")
	}

	// Past the TTL: miss, and the entry is gone.
	clk.Advance(2 * time.Second)
	if _, ok := c.Get("fp1"); ok {
		t.Error("Expected a miss past the TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry to be removed. Len: %d", c.Len())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := New(time.Hour, 3, clk)

	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("fp%d", i), testPages(fmt.Sprintf("a%d", i), float64(i)))
	}

	// Touch fp0 so fp1 becomes the least recently accessed.
	if _, ok := c.Get("fp0"); !ok {
		t.Fatal("Expected fp0 to be present")
	}

	c.Put("fp3", testPages("a3", 3))

	if _, ok := c.Get("fp1"); ok {
		t.Error("Expected fp1 to be evicted as least recently accessed")
	}
	for _, fp := range []string{"fp0", "fp2", "fp3"} {
		if _, ok := c.Get(fp); !ok {
			t.Errorf("Expected %s to survive eviction", fp)
		}
	}
}

func TestCache_SnapshotStability(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := New(time.Hour, 16, clk)

	c.Put("fp", testPages("old", 10))
	entry, ok := c.Get("fp")
	if !ok {
		t.Fatal("Expected a hit")
	}

	// Overwriting the fingerprint must not mutate the earlier snapshot.
	c.Put("fp", testPages("new", 20))
	if entry.Results[0].Address != "old" {
		t.Error("Reader snapshot was mutated by a later Put")
	}

	fresh, _ := c.Get("fp")
	if fresh.Results[0].Address != "new" {
		t.Error("Expected the overwritten entry on a fresh Get")
	}
}

func TestCache_InvalidateAndFlush(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := New(time.Hour, 16, clk)

	c.Put("fp1", testPages("a", 1))
	c.Put("fp2", testPages("b", 2))

	c.Invalidate("fp1")
	if _, ok := c.Get("fp1"); ok {
		t.Error("Expected fp1 to be invalidated")
	}
	if _, ok := c.Get("fp2"); !ok {
		t.Error("Expected fp2 to survive a single invalidation")
	}

	c.Flush()
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after flush. Len: %d", c.Len())
	}
}

func TestCache_RestoreDropsExpired(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := New(time.Hour, 16, clk)

	now := clk.Now()
	c.Restore([]models.CacheEntry{
		{Fingerprint: "fresh", Results: testPages("a", 1), CreatedAt: now.Add(-30 * time.Minute)},
		{Fingerprint: "stale", Results: testPages("b", 2), CreatedAt: now.Add(-2 * time.Hour)},
	})

	if _, ok := c.Get("fresh"); !ok {
		t.Error("Expected unexpired checkpoint entry to be restored")
	}
	if _, ok := c.Get("stale"); ok {
		t.Error("Expected expired checkpoint entry to be dropped on restore")
	}
}

func TestCache_SnapshotRoundTrip(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := New(time.Hour, 16, clk)

	c.Put("fp1", testPages("a", 1))
	c.Put("fp2", testPages("b", 2))

	restored := New(time.Hour, 16, clk)
	restored.Restore(c.Snapshot())

	for _, fp := range []string{"fp1", "fp2"} {
		orig, ok1 := c.Get(fp)
		back, ok2 := restored.Get(fp)
		if !ok1 || !ok2 {
			t.Fatalf("Expected %s present on both sides", fp)
		}
		if orig.Results[0].Address != back.Results[0].Address {
			t.Errorf("Round-trip mismatch for %s", fp)
		}
	}
}
