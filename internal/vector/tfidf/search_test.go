package tfidf

import (
	"context"
	"strings"
	"testing"

	"github.com/starteams/coaching-backend/internal/storage/models"
)

func newTestService(t *testing.T, chunks []models.DocumentChunk) *Service {
	t.Helper()
	svc := NewService(&fakeSource{chunks: chunks})
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return svc
}

func TestFindSimilarContentRanking(t *testing.T) {
	svc := newTestService(t, workshopCorpus())

	results := svc.FindSimilarContent("coaching methodology", SearchOptions{MinSimilarity: 0.05})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (the recipes chunk should score ~0)", len(results))
	}
	for _, r := range results {
		if r.ChunkID == "c2" {
			t.Error("off-topic chunk c2 should be excluded")
		}
		if r.Similarity < 0.05 {
			t.Errorf("result %s has similarity %f below minSimilarity", r.ChunkID, r.Similarity)
		}
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results are not sorted by descending similarity")
	}
	// Both query terms hit c3; only one hits c1.
	if results[0].ChunkID != "c3" {
		t.Errorf("top result = %s, want c3", results[0].ChunkID)
	}
}

func TestFindSimilarContentMaxResults(t *testing.T) {
	svc := newTestService(t, workshopCorpus())

	results := svc.FindSimilarContent("coaching", SearchOptions{MaxResults: 1, MinSimilarity: 0.01})
	if len(results) > 1 {
		t.Errorf("got %d results, want at most 1", len(results))
	}
}

func TestTokenBudgetPacking(t *testing.T) {
	// 13-16 chars each, so every qualifying chunk costs exactly 4 tokens.
	// The off-topic chunk keeps "coaching" out of every document, so its
	// inverse document frequency stays above zero.
	chunks := []models.DocumentChunk{
		{ID: "c1", DocumentID: "d1", Content: "coaching tips", DocumentTitle: "A", DocumentType: "methodology"},
		{ID: "c2", DocumentID: "d2", Content: "coaching plan", DocumentTitle: "B", DocumentType: "methodology"},
		{ID: "c3", DocumentID: "d3", Content: "coaching work", DocumentTitle: "C", DocumentType: "methodology"},
		{ID: "c4", DocumentID: "d4", Content: "weekend gardening notebook", DocumentTitle: "D", DocumentType: "other"},
	}
	svc := newTestService(t, chunks)

	results := svc.FindSimilarContent("coaching", SearchOptions{
		MaxResults:    5,
		MaxTokens:     10,
		MinSimilarity: 0.01,
	})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (third would exceed the 10-token budget)", len(results))
	}

	total := 0
	for _, r := range results {
		total += r.TokenCount
	}
	if total > 10 {
		t.Errorf("returned token total %d exceeds maxTokens 10", total)
	}
}

func TestBudgetSkipsOversizedThenAcceptsSmaller(t *testing.T) {
	ranked := []SimilarityResult{
		{ChunkID: "big", Similarity: 0.9, TokenCount: 8},
		{ChunkID: "huge", Similarity: 0.8, TokenCount: 20},
		{ChunkID: "small", Similarity: 0.7, TokenCount: 2},
	}

	results := budgetResults(ranked, 5, 10)

	if len(results) != 2 || results[0].ChunkID != "big" || results[1].ChunkID != "small" {
		t.Errorf("budget packing should skip the oversized chunk and keep the smaller one, got %+v", results)
	}
}

func TestDocumentTypeFilter(t *testing.T) {
	svc := newTestService(t, workshopCorpus())

	results := svc.FindSimilarContent("coaching methodology", SearchOptions{
		MinSimilarity: 0.01,
		DocumentTypes: []string{"other"},
	})
	for _, r := range results {
		if r.DocumentType != "other" {
			t.Errorf("result %s has type %s, want other", r.ChunkID, r.DocumentType)
		}
	}
}

func TestAllowedDocumentIDFilter(t *testing.T) {
	svc := newTestService(t, workshopCorpus())

	results := svc.FindSimilarContent("coaching methodology", SearchOptions{
		MinSimilarity:      0.01,
		AllowedDocumentIDs: []string{"d1"},
	})
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Errorf("allowed-id filter should restrict results to d1, got %+v", results)
	}
}

func TestUnknownQueryTermsYieldNothing(t *testing.T) {
	svc := newTestService(t, workshopCorpus())

	results := svc.FindSimilarContent("zygomorphic quasar", SearchOptions{})
	if len(results) != 0 {
		t.Errorf("query with only out-of-vocabulary terms returned %d results, want 0", len(results))
	}
}

func TestGenerateTrainingContext(t *testing.T) {
	svc := newTestService(t, workshopCorpus())

	ctxStr := svc.GenerateTrainingContext("coaching methodology", SearchOptions{MinSimilarity: 0.1})
	if !strings.Contains(ctxStr, "# Flow Guide") {
		t.Errorf("context missing titled block, got: %s", ctxStr)
	}
	if !strings.Contains(ctxStr, "\n\n---\n\n") {
		t.Error("context blocks should be separated by a horizontal rule")
	}

	empty := svc.GenerateTrainingContext("zygomorphic quasar", SearchOptions{})
	if empty != "No relevant training content found." {
		t.Errorf("no-result context = %q", empty)
	}
}
