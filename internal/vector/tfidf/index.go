package tfidf

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/storage/models"
	"github.com/starteams/coaching-backend/pkg/logger"
)

// ChunkSource loads the index corpus. Backed by the SQLite store in
// production, by a slice fixture in tests.
type ChunkSource interface {
	ActiveChunks(ctx context.Context) ([]models.DocumentChunk, error)
}

type indexedChunk struct {
	ID            string
	DocumentID    string
	Content       string
	DocumentTitle string
	DocumentType  string
	TokenCount    int
	Vector        []float64
}

// Index is an immutable TF-IDF snapshot of the chunk corpus. A new
// document triggers a full rebuild, never a partial patch, so every
// chunk vector always has the current vocabulary's dimensionality.
type Index struct {
	chunks     []indexedChunk
	vocabulary map[string]int
	docFreq    map[string]int
	total      int
}

// buildIndex assigns vocabulary slots in first-seen corpus order and
// computes per-term document frequency, then per-chunk TF-IDF vectors.
func buildIndex(chunks []models.DocumentChunk) *Index {
	idx := &Index{
		vocabulary: make(map[string]int),
		docFreq:    make(map[string]int),
		total:      len(chunks),
	}

	for _, ch := range chunks {
		seen := make(map[string]struct{})
		for _, term := range Tokenize(ch.Content) {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			if _, ok := idx.vocabulary[term]; !ok {
				idx.vocabulary[term] = len(idx.vocabulary)
			}
			idx.docFreq[term]++
		}
	}

	idx.chunks = make([]indexedChunk, 0, len(chunks))
	for _, ch := range chunks {
		idx.chunks = append(idx.chunks, indexedChunk{
			ID:            ch.ID,
			DocumentID:    ch.DocumentID,
			Content:       ch.Content,
			DocumentTitle: ch.DocumentTitle,
			DocumentType:  ch.DocumentType,
			TokenCount:    EstimateTokens(ch.Content),
			Vector:        idx.vectorize(ch.Content),
		})
	}

	return idx
}

// vectorize builds a TF-IDF vector over the index vocabulary. Terms
// outside the vocabulary contribute nothing.
func (idx *Index) vectorize(text string) []float64 {
	termFreq := make(map[string]int)
	for _, term := range Tokenize(text) {
		termFreq[term]++
	}

	vector := make([]float64, len(idx.vocabulary))
	for term, tf := range termFreq {
		slot, ok := idx.vocabulary[term]
		if !ok {
			continue
		}
		df := idx.docFreq[term]
		if df == 0 {
			df = 1
		}
		idf := math.Log(float64(idx.total) / float64(df))
		vector[slot] = float64(tf) * idf
	}

	return vector
}

// cosineSimilarity returns 0 for mismatched lengths or zero-magnitude
// vectors rather than dividing by zero.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	magnitude := math.Sqrt(normA) * math.Sqrt(normB)
	if magnitude == 0 {
		return 0
	}
	return dot / magnitude
}

// EstimateTokens approximates LLM token accounting as content length / 4.
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// Service owns the active index snapshot. Rebuilds construct a fresh
// Index and swap the pointer atomically, so concurrent searches never
// observe a half-built vocabulary. Refresh calls are serialized.
type Service struct {
	source ChunkSource

	buildMu sync.Mutex
	current atomic.Pointer[Index]
}

func NewService(source ChunkSource) *Service {
	s := &Service{source: source}
	s.current.Store(&Index{
		vocabulary: make(map[string]int),
		docFreq:    make(map[string]int),
	})
	return s
}

// Initialize loads the corpus and builds the first snapshot. An
// unavailable corpus source is fatal to the build; the caller decides
// whether to retry or run degraded on the empty index.
func (s *Service) Initialize(ctx context.Context) error {
	return s.Refresh(ctx)
}

// Refresh rebuilds the whole index from the corpus source and swaps it
// in. There is no incremental path.
func (s *Service) Refresh(ctx context.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	start := time.Now()

	chunks, err := s.source.ActiveChunks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load index corpus: %w", err)
	}

	idx := buildIndex(chunks)
	s.current.Store(idx)

	logger.Info("Vector index rebuilt",
		zap.Int("chunks", len(idx.chunks)),
		zap.Int("vocabulary_terms", len(idx.vocabulary)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return nil
}

type Stats struct {
	ChunkCount     int `json:"chunk_count"`
	VocabularySize int `json:"vocabulary_size"`
}

func (s *Service) Stats() Stats {
	idx := s.current.Load()
	return Stats{
		ChunkCount:     len(idx.chunks),
		VocabularySize: len(idx.vocabulary),
	}
}
