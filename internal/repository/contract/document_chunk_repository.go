package contract

import (
	"context"

	"docchat-be/internal/model"
	"docchat-be/internal/repository/specification"

	"github.com/google/uuid"
)

// ScoredDocumentChunk pairs a chunk with its cosine similarity to the
// query embedding, computed in SQL.
type ScoredDocumentChunk struct {
	Chunk      *model.DocumentChunk
	Similarity float64
}

type DocumentChunkRepository interface {
	CreateBulk(ctx context.Context, chunks []*model.DocumentChunk) error
	DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.DocumentChunk, error)
	// SearchSimilarWithScore returns the nearest chunks within one
	// document, ordered by similarity descending.
	SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, documentId uuid.UUID) ([]*ScoredDocumentChunk, error)
	// AllDocumentIds lists every document with at least one live chunk;
	// the retriever falls back to this set when no summaries exist.
	AllDocumentIds(ctx context.Context) ([]uuid.UUID, error)
}
