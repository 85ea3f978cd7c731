package contract

import (
	"context"

	"docchat-be/internal/model"
	"docchat-be/internal/repository/specification"
)

type DocumentRepository interface {
	FindOne(ctx context.Context, specs ...specification.Specification) (*model.Document, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.Document, error)
}
