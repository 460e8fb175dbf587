package main

import (
	"context"
	"log"
	"os"

	"github.com/rawblock/babel-engine/internal/api"
	"github.com/rawblock/babel-engine/internal/clock"
	"github.com/rawblock/babel-engine/internal/config"
	"github.com/rawblock/babel-engine/internal/db"
	"github.com/rawblock/babel-engine/internal/explorer"
	"github.com/rawblock/babel-engine/internal/normalize"
	"github.com/rawblock/babel-engine/internal/pipeline"
	"github.com/rawblock/babel-engine/internal/remote"
)

func main() {
	log.Println("Starting RawBlock Babel Retrieval Engine (Microservice: babel-coherence-search)...")

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	// ─── Optional Collaborators ─────────────────────────────────────────
	// The engine degrades gracefully: no database means no history or
	// checkpointing, no mirror means local-only page generation.
	// ────────────────────────────────────────────────────────────────────

	var dbConn *db.PostgresStore
	if dbUrl := os.Getenv("DATABASE_URL"); dbUrl != "" {
		dbConn, err = db.Connect(dbUrl)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without history or checkpoints. Error: %v", err)
			dbConn = nil
		} else {
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set; running without persistence")
	}

	var fetcher pipeline.PageFetcher
	if cfg.RemoteBaseURL != "" {
		client, err := remote.NewClient(remote.Config{
			BaseURL: cfg.RemoteBaseURL,
			Timeout: cfg.RemoteTimeout,
		})
		if err != nil {
			log.Printf("Warning: Failed to configure Babel mirror: %v", err)
		} else {
			fetcher = client
		}
	}

	var normalizer normalize.Normalizer
	if cfg.NormalizeHook {
		normalizer = normalize.Passthrough{}
	}

	clk := clock.System{}
	pipe, err := pipeline.New(cfg, clk, fetcher, normalizer)
	if err != nil {
		log.Fatalf("FATAL: failed to build pipeline: %v", err)
	}

	// Restore the cache checkpoint if one was persisted. Expired entries
	// are dropped by the cache on restore.
	if dbConn != nil {
		entries, err := dbConn.LoadCacheCheckpoint(context.Background())
		if err != nil {
			log.Printf("Warning: failed to load cache checkpoint: %v", err)
		} else if len(entries) > 0 {
			pipe.Cache().Restore(entries)
			log.Printf("Warm-loaded %d cache checkpoint entries", len(entries))
		}
	}

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	// Background explorer broadcasting coherent-page discoveries
	exp := explorer.New(pipe.Scorer(), dbConn, clk, api.BroadcastDiscovery(wsHub))

	// Setup the Gin Router
	r := api.SetupRouter(pipe, dbConn, wsHub, exp)

	port := getEnvOrDefault("PORT", "5340")

	// Start the server
	log.Printf("Engine running on :%s (API Node: babel-coherence-search)\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
