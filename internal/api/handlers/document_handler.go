package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/ingestion"
	"github.com/starteams/coaching-backend/internal/metrics"
	"github.com/starteams/coaching-backend/internal/vector/tfidf"
	"github.com/starteams/coaching-backend/pkg/logger"
	"github.com/starteams/coaching-backend/pkg/utils"
)

// SearchCache caches ranked similarity results between admin-preview
// searches. A nil cache disables caching.
type SearchCache interface {
	GetSearchResults(ctx context.Context, queryHash string, results interface{}) (bool, error)
	SetSearchResults(ctx context.Context, queryHash string, results interface{}, ttl time.Duration) error
}

type DocumentHandler struct {
	processor *ingestion.Processor
	index     *tfidf.Service
	cache     SearchCache
	cacheTTL  time.Duration
}

func NewDocumentHandler(processor *ingestion.Processor, index *tfidf.Service, cache SearchCache, cacheTTL time.Duration) *DocumentHandler {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &DocumentHandler{
		processor: processor,
		index:     index,
		cache:     cache,
		cacheTTL:  cacheTTL,
	}
}

func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	var req struct {
		Title   string `json:"title"`
		DocType string `json:"doc_type"`
		Content string `json:"content"`
		HTML    bool   `json:"html"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Content is required",
		})
	}

	result, err := h.processor.ProcessDocument(c.Context(), ingestion.UploadRequest{
		Title:   req.Title,
		DocType: req.DocType,
		Content: req.Content,
		HTML:    req.HTML,
	})
	if err != nil {
		logger.Error("Failed to process document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	metrics.DocumentsProcessed.Inc()
	h.publishIndexStats()

	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleRefresh rebuilds the retrieval index from the database without
// uploading anything, for admin use after direct content edits.
func (h *DocumentHandler) HandleRefresh(c *fiber.Ctx) error {
	if err := h.index.Refresh(c.Context()); err != nil {
		logger.Error("Failed to refresh index", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to refresh index",
		})
	}

	h.publishIndexStats()

	stats := h.index.Stats()
	return c.JSON(fiber.Map{
		"status":          "refreshed",
		"chunk_count":     stats.ChunkCount,
		"vocabulary_size": stats.VocabularySize,
	})
}

func (h *DocumentHandler) HandleStats(c *fiber.Ctx) error {
	stats := h.index.Stats()
	return c.JSON(fiber.Map{
		"chunk_count":     stats.ChunkCount,
		"vocabulary_size": stats.VocabularySize,
	})
}

// HandleSearch exposes raw similarity search for admin preview of what
// the coach would retrieve for a given question.
func (h *DocumentHandler) HandleSearch(c *fiber.Ctx) error {
	var req struct {
		Query         string   `json:"query"`
		MaxResults    int      `json:"max_results"`
		MaxTokens     int      `json:"max_tokens"`
		MinSimilarity float64  `json:"min_similarity"`
		DocumentTypes []string `json:"document_types"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	queryHash := utils.HashString(fmt.Sprintf("%s|%d|%d|%f|%v",
		req.Query, req.MaxResults, req.MaxTokens, req.MinSimilarity, req.DocumentTypes))

	if h.cache != nil {
		var cached []tfidf.SimilarityResult
		if ok, err := h.cache.GetSearchResults(c.Context(), queryHash, &cached); err == nil && ok {
			metrics.CacheHits.WithLabelValues("search_results").Inc()
			return c.JSON(fiber.Map{
				"results": cached,
				"count":   len(cached),
			})
		}
		metrics.CacheMisses.WithLabelValues("search_results").Inc()
	}

	results := h.index.FindSimilarContent(req.Query, tfidf.SearchOptions{
		MaxResults:    req.MaxResults,
		MaxTokens:     req.MaxTokens,
		MinSimilarity: req.MinSimilarity,
		DocumentTypes: req.DocumentTypes,
	})

	metrics.RetrievalResultsCount.Observe(float64(len(results)))

	if h.cache != nil {
		if err := h.cache.SetSearchResults(c.Context(), queryHash, results, h.cacheTTL); err != nil {
			logger.Warn("Failed to cache search results", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"results": results,
		"count":   len(results),
	})
}

func (h *DocumentHandler) publishIndexStats() {
	stats := h.index.Stats()
	metrics.IndexChunks.Set(float64(stats.ChunkCount))
	metrics.IndexVocabulary.Set(float64(stats.VocabularySize))
}
