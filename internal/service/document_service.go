package service

import (
	"context"
	"encoding/json"
	"strings"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/rag/cache"
	"docchat-be/pkg/rag/summary"

	"github.com/google/uuid"
)

type IDocumentService interface {
	RefreshDocument(ctx context.Context, documentId uuid.UUID) (*dto.RefreshDocumentResponse, error)
	BootstrapSummaries(ctx context.Context) error
	CacheStats() cache.Stats
}

// documentService is the write-side seam toward the ingestion
// collaborator: it queues refresh work and backfills missing summaries.
type documentService struct {
	uowFactory   unitofwork.RepositoryFactory
	publisher    IPublisherService
	summaryIndex *summary.Index
	cache        *cache.ResponseCache
	logger       logger.ILogger
}

func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	publisher IPublisherService,
	summaryIndex *summary.Index,
	responseCache *cache.ResponseCache,
	log logger.ILogger,
) IDocumentService {
	return &documentService{
		uowFactory:   uowFactory,
		publisher:    publisher,
		summaryIndex: summaryIndex,
		cache:        responseCache,
		logger:       log,
	}
}

func (ds *documentService) RefreshDocument(ctx context.Context, documentId uuid.UUID) (*dto.RefreshDocumentResponse, error) {
	payload, err := json.Marshal(dto.DocumentRefreshMessage{DocumentId: documentId})
	if err != nil {
		return nil, err
	}
	if err := ds.publisher.Publish(ctx, payload); err != nil {
		return nil, err
	}
	return &dto.RefreshDocumentResponse{DocumentId: documentId, Queued: true}, nil
}

// BootstrapSummaries generates a summary for every document that lacks
// one. Run once at startup; failures are logged and skipped so one bad
// document never blocks the rest.
func (ds *documentService) BootstrapSummaries(ctx context.Context) error {
	uow := ds.uowFactory.NewUnitOfWork(ctx)

	docIds, err := uow.DocumentChunkRepository().AllDocumentIds(ctx)
	if err != nil {
		return err
	}

	for _, docId := range docIds {
		existing, err := ds.summaryIndex.Get(ctx, docId)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		chunks, err := uow.DocumentChunkRepository().FindAll(ctx,
			specification.ByDocumentID{DocumentID: docId},
			specification.OrderBy{Field: "chunk_index", Desc: false},
		)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			continue
		}

		var sb strings.Builder
		for _, chunk := range chunks {
			sb.WriteString(chunk.Text)
			sb.WriteString("\n")
		}

		if _, err := ds.summaryIndex.Generate(ctx, docId, sb.String()); err != nil {
			ds.logger.Warn("DocumentService", "Summary bootstrap skipped a document", map[string]interface{}{
				"document_id": docId.String(),
				"error":       err.Error(),
			})
		}
	}

	return nil
}

func (ds *documentService) CacheStats() cache.Stats {
	return ds.cache.Stats()
}
