// Package ingestion turns uploaded training documents into stored
// chunks and refreshes the retrieval index.
package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/storage/models"
	"github.com/starteams/coaching-backend/pkg/logger"
	"github.com/starteams/coaching-backend/pkg/utils"
)

// DocumentStore persists documents and their chunks.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *models.TrainingDocument) error
	DeleteChunksForDocument(ctx context.Context, documentID string) error
	InsertChunk(ctx context.Context, chunk *models.DocumentChunk) error
}

// IndexRefresher rebuilds the retrieval index after content changes.
type IndexRefresher interface {
	Refresh(ctx context.Context) error
}

// CacheInvalidator drops cached retrieval results after a refresh. May
// be nil when caching is disabled.
type CacheInvalidator interface {
	InvalidateRetrievalCache(ctx context.Context) error
}

type Processor struct {
	store        DocumentStore
	index        IndexRefresher
	cache        CacheInvalidator
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(store DocumentStore, index IndexRefresher, cache CacheInvalidator) *Processor {
	return &Processor{
		store:        store,
		index:        index,
		cache:        cache,
		chunkSize:    1000,
		chunkOverlap: 100,
	}
}

type UploadRequest struct {
	Title   string
	DocType string
	Content string
	// HTML marks the content for tag stripping before chunking.
	HTML bool
}

type UploadResult struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// ProcessDocument stores one training document, replaces its chunks
// and refreshes the index so the new content is searchable.
func (p *Processor) ProcessDocument(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	content := req.Content
	title := strings.TrimSpace(req.Title)

	if req.HTML {
		if title == "" {
			title = extractTitle(content)
		}
		content = cleanHTML(content)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("no content extracted from document")
	}
	if title == "" {
		title = "Untitled"
	}

	docType := req.DocType
	if docType == "" {
		docType = "workshop_content"
	}

	docID := utils.HashString(title + ":" + content)
	doc := &models.TrainingDocument{
		ID:        docID,
		Title:     title,
		DocType:   docType,
		Status:    "active",
		RawLength: len(content),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := p.store.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	// Re-uploading a document replaces its chunks wholesale.
	if err := p.store.DeleteChunksForDocument(ctx, docID); err != nil {
		return nil, fmt.Errorf("failed to clear old chunks: %w", err)
	}

	chunks := p.chunkText(content)
	logger.Info("Document chunked",
		zap.String("doc_id", docID),
		zap.String("title", title),
		zap.Int("chunks", len(chunks)),
	)

	for i, chunkText := range chunks {
		chunk := &models.DocumentChunk{
			ID:            fmt.Sprintf("%s_chunk_%d", docID, i),
			DocumentID:    docID,
			ChunkIndex:    i,
			Content:       chunkText,
			DocumentTitle: title,
			DocumentType:  docType,
			CreatedAt:     time.Now(),
		}
		if err := p.store.InsertChunk(ctx, chunk); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	if err := p.index.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("failed to refresh index: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.InvalidateRetrievalCache(ctx); err != nil {
			logger.Warn("Failed to invalidate retrieval cache", zap.Error(err))
		}
	}

	logger.Info("Document processed successfully",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)),
	)

	return &UploadResult{DocumentID: docID, Chunks: len(chunks)}, nil
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}

	return strings.TrimSpace(title)
}

// chunkText splits on word boundaries into ~chunkSize character pieces
// with a small word overlap so sentence fragments stay searchable.
func (p *Processor) chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentSize := 0

	for _, word := range words {
		wordLen := len(word) + 1

		if currentSize+wordLen > p.chunkSize && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))

			overlapWords := strings.Fields(current.String())
			overlapStart := len(overlapWords) - p.chunkOverlap/10
			if overlapStart < 0 {
				overlapStart = 0
			}
			current.Reset()
			current.WriteString(strings.Join(overlapWords[overlapStart:], " ") + " ")
			currentSize = current.Len()
		}

		current.WriteString(word + " ")
		currentSize += wordLen
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	return chunks
}
