package implementation

import (
	"context"

	"docchat-be/internal/model"
	"docchat-be/internal/repository/contract"
	"docchat-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type DocumentChunkRepositoryImpl struct {
	db *gorm.DB
}

func NewDocumentChunkRepository(db *gorm.DB) contract.DocumentChunkRepository {
	return &DocumentChunkRepositoryImpl{db: db}
}

func (r *DocumentChunkRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DocumentChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&chunks).Error
}

func (r *DocumentChunkRepositoryImpl) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("document_id = ?", documentId).
		Delete(&model.DocumentChunk{}).Error
}

func (r *DocumentChunkRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.DocumentChunk, error) {
	var chunks []*model.DocumentChunk
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

type scoredChunkRow struct {
	model.DocumentChunk
	Similarity float64
}

func (r *DocumentChunkRepositoryImpl) SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, documentId uuid.UUID) ([]*contract.ScoredDocumentChunk, error) {
	queryVector := pgvector.NewVector(embedding)

	var rows []scoredChunkRow
	err := r.db.WithContext(ctx).
		Model(&model.DocumentChunk{}).
		Select("document_chunks.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Where("document_id = ?", documentId).
		Order("similarity DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]*contract.ScoredDocumentChunk, 0, len(rows))
	for i := range rows {
		results = append(results, &contract.ScoredDocumentChunk{
			Chunk:      &rows[i].DocumentChunk,
			Similarity: rows[i].Similarity,
		})
	}
	return results, nil
}

func (r *DocumentChunkRepositoryImpl) AllDocumentIds(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&model.DocumentChunk{}).
		Distinct("document_id").
		Pluck("document_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
