package implementation

import (
	"context"
	"errors"

	"docchat-be/internal/model"
	"docchat-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentSummaryRepositoryImpl struct {
	db *gorm.DB
}

func NewDocumentSummaryRepository(db *gorm.DB) contract.DocumentSummaryRepository {
	return &DocumentSummaryRepositoryImpl{db: db}
}

func (r *DocumentSummaryRepositoryImpl) Upsert(ctx context.Context, summary *model.DocumentSummary) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"summary", "embedding_value", "updated_at"}),
		}).
		Create(summary).Error
}

func (r *DocumentSummaryRepositoryImpl) FindByDocumentId(ctx context.Context, documentId uuid.UUID) (*model.DocumentSummary, error) {
	var m model.DocumentSummary
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentId).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *DocumentSummaryRepositoryImpl) FindAll(ctx context.Context) ([]*model.DocumentSummary, error) {
	var summaries []*model.DocumentSummary
	if err := r.db.WithContext(ctx).Find(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *DocumentSummaryRepositoryImpl) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("document_id = ?", documentId).
		Delete(&model.DocumentSummary{}).Error
}
