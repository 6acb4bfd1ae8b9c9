package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/starteams/coaching-backend/internal/middleware/validation"
	"github.com/starteams/coaching-backend/internal/storage/models"
	"github.com/starteams/coaching-backend/internal/vector/tfidf"
)

type fixedChunkSource struct {
	chunks []models.DocumentChunk
}

func (s *fixedChunkSource) ActiveChunks(_ context.Context) ([]models.DocumentChunk, error) {
	return s.chunks, nil
}

type fakeSearchCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	sets    int
}

func newFakeSearchCache() *fakeSearchCache {
	return &fakeSearchCache{entries: map[string][]byte{}}
}

func (f *fakeSearchCache) GetSearchResults(_ context.Context, queryHash string, results interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	data, ok := f.entries[queryHash]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, results); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeSearchCache) SetSearchResults(_ context.Context, queryHash string, results interface{}, _ time.Duration) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.entries[queryHash], err = json.Marshal(results)
	return err
}

func newDocumentTestApp(t *testing.T, cache SearchCache) *fiber.App {
	t.Helper()

	source := &fixedChunkSource{chunks: []models.DocumentChunk{
		{ID: "c1", DocumentID: "d1", Content: "thinking strength planning focus", DocumentTitle: "Strengths Guide", DocumentType: "coaching_guide"},
		{ID: "c2", DocumentID: "d1", Content: "flow state attention energy", DocumentTitle: "Strengths Guide", DocumentType: "coaching_guide"},
	}}
	index := tfidf.NewService(source)
	if err := index.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	handler := NewDocumentHandler(nil, index, cache, time.Minute)

	app := fiber.New()
	app.Use(validation.Middleware(validation.Config{}))
	app.Post("/api/v1/documents/refresh", handler.HandleRefresh)
	app.Post("/api/v1/documents/search", handler.HandleSearch)
	app.Get("/api/v1/documents/stats", handler.HandleStats)
	return app
}

// Refresh takes no body and must reach the handler through the
// validation middleware.
func TestHandleRefreshThroughMiddleware(t *testing.T) {
	app := newDocumentTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/documents/refresh", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("refresh status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status     string `json:"status"`
		ChunkCount int    `json:"chunk_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "refreshed" || body.ChunkCount != 2 {
		t.Errorf("refresh body = %+v", body)
	}
}

func TestHandleSearchThroughMiddleware(t *testing.T) {
	app := newDocumentTestApp(t, nil)

	req := httptest.NewRequest("POST", "/api/v1/documents/search",
		strings.NewReader(`{"query":"thinking strength","min_similarity":0.05}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("search status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Count   int                      `json:"count"`
		Results []tfidf.SimilarityResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count == 0 {
		t.Error("expected at least one search result")
	}
}

func TestHandleSearchRequiresQuery(t *testing.T) {
	app := newDocumentTestApp(t, nil)

	req := httptest.NewRequest("POST", "/api/v1/documents/search", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("empty query status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleSearchServesCachedResults(t *testing.T) {
	cache := newFakeSearchCache()
	app := newDocumentTestApp(t, cache)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/v1/documents/search",
			strings.NewReader(`{"query":"thinking strength","min_similarity":0.05}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("search %d status = %d", i, resp.StatusCode)
		}
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1 (second search must hit)", cache.sets)
	}
	if cache.gets != 2 {
		t.Errorf("cache gets = %d, want 2", cache.gets)
	}
}
