package summary

import (
	"context"
	"fmt"

	"docchat-be/internal/model"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/contract"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag/generate"

	"docchat-be/pkg/embedding"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

const synopsisPrompt = "Write a 2-3 sentence synopsis of the following document excerpt. Reply with the synopsis only, no preamble.\n\n%s"

type Config struct {
	MaxChars    int // hard cap on stored summary text
	PrefixChars int // document prefix handed to the synopsis prompt
}

// Index maintains one short embedding-indexed summary per document so
// unscoped queries can pick candidate documents without scanning chunks.
type Index struct {
	client   *generate.Client
	embedder embedding.EmbeddingProvider
	repo     contract.DocumentSummaryRepository
	cfg      Config
	logger   logger.ILogger
}

func NewIndex(client *generate.Client, embedder embedding.EmbeddingProvider, repo contract.DocumentSummaryRepository, cfg Config, log logger.ILogger) *Index {
	return &Index{
		client:   client,
		embedder: embedder,
		repo:     repo,
		cfg:      cfg,
		logger:   log,
	}
}

// Generate asks the provider for a synopsis of the document's prefix,
// truncates it, embeds it and upserts the row. Called on ingest and
// again whenever the document's content changes.
func (i *Index) Generate(ctx context.Context, documentId uuid.UUID, content string) (*model.DocumentSummary, error) {
	prefix := content
	if runes := []rune(prefix); len(runes) > i.cfg.PrefixChars {
		prefix = string(runes[:i.cfg.PrefixChars])
	}

	text, err := i.client.Complete(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(synopsisPrompt, prefix)},
	})
	if err != nil {
		return nil, fmt.Errorf("generate synopsis: %w", err)
	}
	if runes := []rune(text); len(runes) > i.cfg.MaxChars {
		text = string(runes[:i.cfg.MaxChars])
	}

	embeddingRes, err := i.embedder.Generate(text, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return nil, fmt.Errorf("embed summary: %w", err)
	}

	summaryRow := &model.DocumentSummary{
		DocumentId:     documentId,
		Summary:        text,
		EmbeddingValue: pgvector.NewVector(embeddingRes.Embedding.Values),
	}
	if err := i.repo.Upsert(ctx, summaryRow); err != nil {
		return nil, fmt.Errorf("persist summary: %w", err)
	}

	if i.logger != nil {
		i.logger.Info("SummaryIndex", "Document summary refreshed", map[string]interface{}{
			"document_id": documentId.String(),
			"chars":       len(text),
		})
	}

	return summaryRow, nil
}

// Get returns the summary for a document, or nil when absent. Absence
// is not an error; retrieval falls back to searching all documents.
func (i *Index) Get(ctx context.Context, documentId uuid.UUID) (*model.DocumentSummary, error) {
	return i.repo.FindByDocumentId(ctx, documentId)
}

// All lists every stored summary.
func (i *Index) All(ctx context.Context) ([]*model.DocumentSummary, error) {
	return i.repo.FindAll(ctx)
}

// Invalidate drops a document's summary, forcing regeneration.
func (i *Index) Invalidate(ctx context.Context, documentId uuid.UUID) error {
	return i.repo.DeleteByDocumentId(ctx, documentId)
}
