package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/babel-engine/pkg/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// SearchRecord is one persisted search invocation, for the history API.
type SearchRecord struct {
	ID          int64     `json:"id"`
	Query       string    `json:"query"`
	Mode        string    `json:"mode"`
	ResultCount int       `json:"resultCount"`
	TopScore    float64   `json:"topScore"`
	ElapsedMs   float64   `json:"elapsedMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DiscoveryRecord is one persisted explorer find.
type DiscoveryRecord struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	Score      float64   `json:"score"`
	Confidence string    `json:"confidence"`
	Excerpt    string    `json:"excerpt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Babel Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Babel Engine schema initialized")
	return nil
}

// SaveSearch persists one completed search for the history surface.
func (s *PostgresStore) SaveSearch(ctx context.Context, result models.SearchResult, mode models.SearchMode) error {
	topScore := 0.0
	if len(result.Results) > 0 {
		topScore = result.Results[0].Coherence.OverallScore
	}
	sql := `
		INSERT INTO searches (query, mode, result_count, top_score, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := s.pool.Exec(ctx, sql, result.Query, string(mode), len(result.Results), topScore, result.ElapsedMs)
	return err
}

// GetRecentSearches returns persisted searches, newest first, paginated.
func (s *PostgresStore) GetRecentSearches(ctx context.Context, page, limit int) ([]SearchRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := (page - 1) * limit

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM searches`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, query, mode, result_count, top_score, elapsed_ms, created_at
		FROM searches ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []SearchRecord
	for rows.Next() {
		var r SearchRecord
		if err := rows.Scan(&r.ID, &r.Query, &r.Mode, &r.ResultCount, &r.TopScore, &r.ElapsedMs, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		records = append(records, r)
	}
	return records, total, rows.Err()
}

// SaveDiscovery persists an explorer find. Re-discovering the same address
// keeps the higher score.
func (s *PostgresStore) SaveDiscovery(ctx context.Context, rec DiscoveryRecord) error {
	sql := `
		INSERT INTO discoveries (id, address, score, confidence, excerpt)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE
		SET score = GREATEST(discoveries.score, EXCLUDED.score),
		    confidence = EXCLUDED.confidence,
		    excerpt = EXCLUDED.excerpt;
	`
	_, err := s.pool.Exec(ctx, sql, rec.ID, rec.Address, rec.Score, rec.Confidence, rec.Excerpt)
	return err
}

// GetDiscoveries returns persisted explorer finds, best score first.
func (s *PostgresStore) GetDiscoveries(ctx context.Context, page, limit int) ([]DiscoveryRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := (page - 1) * limit

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM discoveries`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, address, score, confidence, excerpt, created_at
		FROM discoveries ORDER BY score DESC, created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []DiscoveryRecord
	for rows.Next() {
		var r DiscoveryRecord
		if err := rows.Scan(&r.ID, &r.Address, &r.Score, &r.Confidence, &r.Excerpt, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		records = append(records, r)
	}
	return records, total, rows.Err()
}

// SaveCacheCheckpoint replaces the persisted cache snapshot. Result lists
// are stored as JSONB; the cache drops expired entries on restore, so the
// checkpoint itself carries no TTL logic.
func (s *PostgresStore) SaveCacheCheckpoint(ctx context.Context, entries []models.CacheEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM cache_checkpoint`); err != nil {
		return fmt.Errorf("failed to clear cache checkpoint: %v", err)
	}

	insertSQL := `
		INSERT INTO cache_checkpoint (fingerprint, results, created_at)
		VALUES ($1, $2, $3);
	`
	for _, entry := range entries {
		payload, err := json.Marshal(entry.Results)
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry %s: %v", entry.Fingerprint, err)
		}
		if _, err := tx.Exec(ctx, insertSQL, entry.Fingerprint, payload, entry.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert cache entry: %v", err)
		}
	}

	return tx.Commit(ctx)
}

// LoadCacheCheckpoint reads back the persisted cache snapshot.
func (s *PostgresStore) LoadCacheCheckpoint(ctx context.Context) ([]models.CacheEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT fingerprint, results, created_at FROM cache_checkpoint`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		var entry models.CacheEntry
		var payload []byte
		if err := rows.Scan(&entry.Fingerprint, &payload, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &entry.Results); err != nil {
			log.Printf("Skipping corrupt cache checkpoint entry %s: %v", entry.Fingerprint, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
