package contract

import (
	"context"

	"docchat-be/internal/model"
	"docchat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ChatSessionRepository interface {
	Create(ctx context.Context, session *model.ChatSession) error
	Update(ctx context.Context, session *model.ChatSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*model.ChatSession, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.ChatSession, error)
	// ApplyMetadataDeltas adds the given counters atomically and bumps
	// updated_at; it never overwrites accumulated values.
	ApplyMetadataDeltas(ctx context.Context, id uuid.UUID, tokens int, costUSD float64, cacheHits int) error
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) error
}
