package contract

import (
	"context"

	"docchat-be/internal/model"
	"docchat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ChatMessageRepository interface {
	Create(ctx context.Context, message *model.ChatMessage) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.ChatMessage, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	DeleteByChatSessionId(ctx context.Context, chatSessionId uuid.UUID) error
}
