package contract

import (
	"context"

	"docchat-be/internal/model"

	"github.com/google/uuid"
)

type DocumentSummaryRepository interface {
	// Upsert replaces the summary for a document (one row per document).
	Upsert(ctx context.Context, summary *model.DocumentSummary) error
	FindByDocumentId(ctx context.Context, documentId uuid.UUID) (*model.DocumentSummary, error)
	FindAll(ctx context.Context) ([]*model.DocumentSummary, error)
	DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error
}
