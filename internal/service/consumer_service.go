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

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService reacts to document-refresh messages: cached answers
// that referenced the document are dropped and its summary is rebuilt
// from the current chunk text.
type consumerService struct {
	pubSub        *gochannel.GoChannel
	topicName     string
	uowFactory    unitofwork.RepositoryFactory
	responseCache *cache.ResponseCache
	summaryIndex  *summary.Index
	logger        logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	responseCache *cache.ResponseCache,
	summaryIndex *summary.Index,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:        pubSub,
		topicName:     topicName,
		uowFactory:    uowFactory,
		responseCache: responseCache,
		summaryIndex:  summaryIndex,
		logger:        log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.DocumentRefreshMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal refresh message", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	removed := cs.responseCache.InvalidateDocument(payload.DocumentId)
	cs.logger.Info("ConsumerService", "Document refresh received", map[string]interface{}{
		"document_id":     payload.DocumentId.String(),
		"cache_evictions": removed,
	})

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	chunks, err := uow.DocumentChunkRepository().FindAll(ctx,
		specification.ByDocumentID{DocumentID: payload.DocumentId},
		specification.OrderBy{Field: "chunk_index", Desc: false},
	)
	if err != nil {
		cs.logger.Error("ConsumerService", "Failed to load chunks for summary rebuild", map[string]interface{}{
			"document_id": payload.DocumentId.String(),
			"error":       err.Error(),
		})
		msg.Nack() // Nack for retriable errors
		return
	}

	if len(chunks) == 0 {
		// Document deleted or emptied; drop its summary as well.
		if err := cs.summaryIndex.Invalidate(ctx, payload.DocumentId); err != nil {
			cs.logger.Error("ConsumerService", "Failed to drop summary", map[string]interface{}{
				"document_id": payload.DocumentId.String(),
				"error":       err.Error(),
			})
			msg.Nack()
			return
		}
		msg.Ack()
		return
	}

	var sb strings.Builder
	for _, chunk := range chunks {
		sb.WriteString(chunk.Text)
		sb.WriteString("\n")
	}

	if _, err := cs.summaryIndex.Generate(ctx, payload.DocumentId, sb.String()); err != nil {
		cs.logger.Error("ConsumerService", "Failed to rebuild summary", map[string]interface{}{
			"document_id": payload.DocumentId.String(),
			"error":       err.Error(),
		})
		msg.Nack()
		return
	}

	msg.Ack()
}
