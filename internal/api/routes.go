package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rawblock/babel-engine/internal/db"
	"github.com/rawblock/babel-engine/internal/explorer"
	"github.com/rawblock/babel-engine/internal/generator"
	"github.com/rawblock/babel-engine/internal/pipeline"
	"github.com/rawblock/babel-engine/pkg/models"
)

// maxSweepPages caps a single explorer sweep to prevent runaway resource
// exhaustion from unconstrained requests.
const maxSweepPages = 100_000

// defaultSearchResults applies when a search request omits maxResults.
const defaultSearchResults = 10

type APIHandler struct {
	pipe     *pipeline.Pipeline
	dbStore  *db.PostgresStore
	wsHub    *Hub
	explorer *explorer.Explorer
}

func SetupRouter(pipe *pipeline.Pipeline, dbStore *db.PostgresStore, wsHub *Hub, exp *explorer.Explorer) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://babel.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		pipe:     pipe,
		dbStore:  dbStore,
		wsHub:    wsHub,
		explorer: exp,
	}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
		pub.GET("/page/:address", handler.handleGetPage)
		pub.GET("/explore/progress", handler.handleExploreProgress)
	}

	// ── Protected endpoints (require bearer token if API_AUTH_TOKEN set) ──
	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	// Rate-limit protected endpoints to 30 req/min per IP (burst=5).
	// A search scores up to maxResults*overfetch pages, so this matters here.
	auth.Use(NewRateLimiter(30, 5).Middleware())
	{
		auth.POST("/search", handler.handleSearch)
		auth.POST("/enumerate", handler.handleEnumerate)
		auth.POST("/decode", handler.handleDecode)

		// Background Babel-space sweeps
		auth.POST("/explore", handler.handleStartSweep)

		// DB-backed history surfaces
		auth.GET("/history", handler.handleGetHistory)
		auth.GET("/discoveries", handler.handleGetDiscoveries)
	}

	// Serve Static Dashboard
	r.Static("/dashboard", "./public")

	return r
}

// handleSearch runs the full coherence-retrieval pipeline for a query.
// POST /api/v1/search { "query": "...", "maxResults": 10, "mode": "local", "minScore": 0 }
func (h *APIHandler) handleSearch(c *gin.Context) {
	var req struct {
		Query      string  `json:"query"`
		MaxResults int     `json:"maxResults"`
		Mode       string  `json:"mode"`
		MinScore   float64 `json:"minScore"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {query, maxResults, mode, minScore}"})
		return
	}
	if req.MaxResults == 0 {
		req.MaxResults = defaultSearchResults
	}

	mode := models.SearchMode(req.Mode) // "" falls back to the configured default
	if req.Mode != "" {
		parsed, ok := models.ParseSearchMode(req.Mode)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid mode", "hint": "Use one of: local, remote, hybrid"})
			return
		}
		mode = parsed
	}

	result, err := h.pipe.Search(c.Request.Context(), req.Query, req.MaxResults, mode, req.MinScore)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidQuery):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Query is empty after normalization"})
		case errors.Is(err, models.ErrInvalidMode):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid mode"})
		case errors.Is(err, models.ErrDeadline):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Search deadline exceeded before any page was scored"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed", "details": err.Error()})
		}
		return
	}

	// Persist to DB if connected
	if h.dbStore != nil {
		if err := h.dbStore.SaveSearch(context.Background(), result, mode); err != nil {
			log.Printf("Failed to save search to DB: %v", err)
		}
	}

	// Notify stream subscribers
	if h.wsHub != nil {
		payload, _ := json.Marshal(gin.H{
			"type":       "search_completed",
			"query":      result.Query,
			"totalFound": result.TotalFound,
		})
		h.wsHub.Broadcast(payload)
	}

	c.JSON(http.StatusOK, gin.H{
		"requestId": uuid.New().String(),
		"result":    result,
	})
}

// handleGetPage materializes the page behind an address.
func (h *APIHandler) handleGetPage(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))
	page := h.pipe.Generate(address)

	c.JSON(http.StatusOK, gin.H{
		"address": address,
		"page":    page,
		"length":  len(page),
	})
}

// handleEnumerate returns ranked candidate addresses for a query without
// generating or scoring any pages.
func (h *APIHandler) handleEnumerate(c *gin.Context) {
	var req struct {
		Query      string `json:"query"`
		MaxResults int    `json:"maxResults"`
		Depth      int    `json:"depth"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {query, maxResults, depth}"})
		return
	}

	candidates, err := h.pipe.Enumerate(req.Query, req.MaxResults, req.Depth)
	if err != nil {
		if errors.Is(err, models.ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Query is empty after normalization"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Enumeration failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":      req.Query,
		"candidates": candidates,
		"count":      len(candidates),
	})
}

// handleDecode scores a page (supplied or generated) against an optional query.
// POST /api/v1/decode { "address": "...", "text": "...", "query": "..." }
func (h *APIHandler) handleDecode(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
		Text    string `json:"text"`
		Query   string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {address, text?, query?}"})
		return
	}

	if req.Text != "" {
		if ok, reason := generator.ValidatePage(req.Text); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Supplied text is not a valid page", "details": reason})
			return
		}
	}

	c.JSON(http.StatusOK, h.pipe.Decode(req.Address, req.Text, req.Query))
}

// handleStartSweep launches a background Babel-space sweep.
// POST /api/v1/explore { "seed": "expedition-1", "pages": 5000, "minScore": 55 }
func (h *APIHandler) handleStartSweep(c *gin.Context) {
	if h.explorer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Explorer not initialized"})
		return
	}

	var req struct {
		Seed     string  `json:"seed"`
		Pages    int     `json:"pages"`
		MinScore float64 `json:"minScore"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {seed, pages, minScore}"})
		return
	}

	if req.Pages <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page count"})
		return
	}
	// Cap the sweep to prevent unbounded background resource consumption.
	if req.Pages > maxSweepPages {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Sweep too large",
			"maxPages": maxSweepPages,
			"hint":     "Split into multiple smaller sweeps",
		})
		return
	}
	if req.Seed == "" {
		req.Seed = uuid.New().String()
	}

	h.explorer.Sweep(context.Background(), req.Seed, req.Pages, req.MinScore)

	c.JSON(http.StatusOK, gin.H{
		"status":   "sweep_started",
		"seed":     req.Seed,
		"pages":    req.Pages,
		"minScore": req.MinScore,
	})
}

// handleExploreProgress returns the current progress of the explorer.
func (h *APIHandler) handleExploreProgress(c *gin.Context) {
	if h.explorer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Explorer not initialized"})
		return
	}
	c.JSON(http.StatusOK, h.explorer.GetProgress())
}

// handleGetHistory returns recent persisted searches.
func (h *APIHandler) handleGetHistory(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, totalCount, err := h.dbStore.GetRecentSearches(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch search history", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       records,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// handleGetDiscoveries returns persisted explorer finds, best first.
func (h *APIHandler) handleGetDiscoveries(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, totalCount, err := h.dbStore.GetDiscoveries(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch discoveries", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       records,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// handleHealth returns engine status and capabilities for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "operational",
		"engine":     "RawBlock Babel Retrieval Engine v1.0",
		"pageLength": generator.PageLength,
		"alphabet":   generator.Alphabet,
		"capabilities": gin.H{
			"local_generation": true,
			"remote_mirror":    true,
			"hybrid_fallback":  true,
			"explorer_sweeps":  h.explorer != nil,
			"result_cache":     true,
		},
		"dbConnected": h.dbStore != nil,
	})
}

// BroadcastDiscovery sends an explorer discovery via the WebSocket hub.
// This is wired as the alertFunc callback for the Explorer.
func BroadcastDiscovery(wsHub *Hub) func(explorer.Discovery) {
	return func(d explorer.Discovery) {
		payload := gin.H{
			"type":      "discovery",
			"discovery": d,
		}
		discoveryBytes, _ := json.Marshal(payload)
		wsHub.Broadcast(discoveryBytes)
		log.Printf("[DISCOVERY] 📖 Coherent page found: %s (score %.1f, %s)",
			d.Address, d.Score, d.Confidence)
	}
}
