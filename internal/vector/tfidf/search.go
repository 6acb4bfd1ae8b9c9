package tfidf

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/pkg/logger"
)

type SimilarityResult struct {
	ChunkID       string  `json:"chunk_id"`
	Content       string  `json:"content"`
	Similarity    float64 `json:"similarity"`
	DocumentTitle string  `json:"document_title"`
	DocumentType  string  `json:"document_type"`
	TokenCount    int     `json:"token_count"`
}

type SearchOptions struct {
	MaxResults         int
	MaxTokens          int
	MinSimilarity      float64
	DocumentTypes      []string
	AllowedDocumentIDs []string
}

func (o *SearchOptions) applyDefaults() {
	if o.MaxResults <= 0 {
		o.MaxResults = 5
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 2000
	}
	if o.MinSimilarity <= 0 {
		o.MinSimilarity = 0.1
	}
}

// FindSimilarContent ranks indexed chunks by cosine similarity against
// the query and returns a token-budgeted prefix of the ranking. Query
// terms unseen at build time contribute zero signal. An empty result is
// success, never an error.
func (s *Service) FindSimilarContent(query string, opts SearchOptions) []SimilarityResult {
	opts.applyDefaults()

	idx := s.current.Load()
	queryVector := idx.vectorize(query)

	var allowedDocs map[string]struct{}
	if len(opts.AllowedDocumentIDs) > 0 {
		allowedDocs = make(map[string]struct{}, len(opts.AllowedDocumentIDs))
		for _, id := range opts.AllowedDocumentIDs {
			allowedDocs[id] = struct{}{}
		}
	}

	var allowedTypes map[string]struct{}
	if len(opts.DocumentTypes) > 0 {
		allowedTypes = make(map[string]struct{}, len(opts.DocumentTypes))
		for _, t := range opts.DocumentTypes {
			allowedTypes[t] = struct{}{}
		}
	}

	var ranked []SimilarityResult
	for i := range idx.chunks {
		ch := &idx.chunks[i]

		if allowedDocs != nil {
			if _, ok := allowedDocs[ch.DocumentID]; !ok {
				continue
			}
		}
		if allowedTypes != nil {
			if _, ok := allowedTypes[ch.DocumentType]; !ok {
				continue
			}
		}

		similarity := cosineSimilarity(queryVector, ch.Vector)
		if similarity < opts.MinSimilarity {
			continue
		}

		ranked = append(ranked, SimilarityResult{
			ChunkID:       ch.ID,
			Content:       ch.Content,
			Similarity:    similarity,
			DocumentTitle: ch.DocumentTitle,
			DocumentType:  ch.DocumentType,
			TokenCount:    ch.TokenCount,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})

	results := budgetResults(ranked, opts.MaxResults, opts.MaxTokens)

	logger.Debug("Vector search complete",
		zap.Int("candidates", len(ranked)),
		zap.Int("returned", len(results)),
	)

	return results
}

// budgetResults greedily packs ranked results under the token ceiling.
// A result that would overflow the budget is skipped, not a stop: a
// later, smaller chunk may still fit. Relevance order is preserved.
func budgetResults(ranked []SimilarityResult, maxResults, maxTokens int) []SimilarityResult {
	results := make([]SimilarityResult, 0, maxResults)
	totalTokens := 0

	for _, r := range ranked {
		if len(results) >= maxResults {
			break
		}
		if totalTokens+r.TokenCount > maxTokens {
			continue
		}
		results = append(results, r)
		totalTokens += r.TokenCount
	}

	return results
}

// GenerateTrainingContext renders the selected chunks as titled markdown
// blocks separated by a horizontal rule, ready for prompt inclusion.
func (s *Service) GenerateTrainingContext(query string, opts SearchOptions) string {
	results := s.FindSimilarContent(query, opts)
	if len(results) == 0 {
		return "No relevant training content found."
	}

	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, "# "+r.DocumentTitle+"\n"+r.Content)
	}

	return strings.Join(blocks, "\n\n---\n\n")
}
