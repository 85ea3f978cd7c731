package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/contract"
	"docchat-be/pkg/embedding"
	"docchat-be/pkg/tokens"

	"github.com/google/uuid"
)

// RetrievedChunk is one passage admitted into the context window.
type RetrievedChunk struct {
	ChunkId    uuid.UUID
	DocumentId uuid.UUID
	Text       string
	Similarity float64
	StartChar  int
	EndChar    int
	TokenCount int
}

// RetrievalResult is the ranked, token-budgeted context for one query.
type RetrievalResult struct {
	Chunks            []RetrievedChunk
	TotalTokens       int
	SelectedDocuments []uuid.UUID
}

type Config struct {
	SimilarityThreshold float64
	FocusBoost          float64
	TopK                int
	CandidateDocuments  int
	ContextTokenBudget  int
}

// ContextRetriever turns a query into ranked, token-budgeted passages.
type ContextRetriever struct {
	embedder    embedding.EmbeddingProvider
	chunkRepo   contract.DocumentChunkRepository
	summaryRepo contract.DocumentSummaryRepository
	counter     *tokens.Counter
	cfg         Config
	logger      logger.ILogger
}

func NewContextRetriever(
	embedder embedding.EmbeddingProvider,
	chunkRepo contract.DocumentChunkRepository,
	summaryRepo contract.DocumentSummaryRepository,
	counter *tokens.Counter,
	cfg Config,
	log logger.ILogger,
) *ContextRetriever {
	return &ContextRetriever{
		embedder:    embedder,
		chunkRepo:   chunkRepo,
		summaryRepo: summaryRepo,
		counter:     counter,
		cfg:         cfg,
		logger:      log,
	}
}

// Retrieve embeds the query, picks candidate documents, gathers nearest
// chunks above the similarity threshold and greedily fills the token
// budget. An empty result is not an error; the caller still generates
// with a "no context" notice.
func (r *ContextRetriever) Retrieve(ctx context.Context, query string, documentId *uuid.UUID, focus *dto.FocusContextDTO) (*RetrievalResult, error) {
	embeddingRes, err := r.embedder.Generate(query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVector := embeddingRes.Embedding.Values

	candidates, err := r.candidateDocuments(ctx, queryVector, documentId)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &RetrievalResult{SelectedDocuments: []uuid.UUID{}}, nil
	}

	var survivors []RetrievedChunk
	for _, docId := range candidates {
		scored, err := r.chunkRepo.SearchSimilarWithScore(ctx, queryVector, r.cfg.TopK, docId)
		if err != nil {
			return nil, fmt.Errorf("search chunks for document %s: %w", docId, err)
		}

		for _, sc := range scored {
			similarity := sc.Similarity
			if focus != nil && r.focusOverlaps(sc.Chunk.DocumentId, sc.Chunk.StartChar, sc.Chunk.EndChar, focus) {
				similarity += r.cfg.FocusBoost
				if similarity > 1.0 {
					similarity = 1.0
				}
			}
			if similarity < r.cfg.SimilarityThreshold {
				continue
			}

			tokenCount := sc.Chunk.TokenCount
			if tokenCount == 0 {
				tokenCount = r.counter.Count(sc.Chunk.Text)
			}

			survivors = append(survivors, RetrievedChunk{
				ChunkId:    sc.Chunk.Id,
				DocumentId: sc.Chunk.DocumentId,
				Text:       sc.Chunk.Text,
				Similarity: similarity,
				StartChar:  sc.Chunk.StartChar,
				EndChar:    sc.Chunk.EndChar,
				TokenCount: tokenCount,
			})
		}
	}

	// Ties keep their retrieval order.
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Similarity > survivors[j].Similarity
	})

	result := &RetrievalResult{SelectedDocuments: candidates}
	for _, chunk := range survivors {
		if result.TotalTokens+chunk.TokenCount > r.cfg.ContextTokenBudget {
			break
		}
		result.Chunks = append(result.Chunks, chunk)
		result.TotalTokens += chunk.TokenCount
	}

	if r.logger != nil {
		r.logger.Debug("ContextRetriever", "Retrieval complete", map[string]interface{}{
			"candidates":   len(candidates),
			"chunks":       len(result.Chunks),
			"total_tokens": result.TotalTokens,
		})
	}

	return result, nil
}

// candidateDocuments resolves the document set to search. A scoped query
// searches only its document. Otherwise summaries are ranked by cosine
// similarity and the best few are kept; with no summaries at all the
// search falls back to every known document.
func (r *ContextRetriever) candidateDocuments(ctx context.Context, queryVector []float32, documentId *uuid.UUID) ([]uuid.UUID, error) {
	if documentId != nil {
		return []uuid.UUID{*documentId}, nil
	}

	summaries, err := r.summaryRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}

	if len(summaries) == 0 {
		ids, err := r.chunkRepo.AllDocumentIds(ctx)
		if err != nil {
			return nil, fmt.Errorf("list document ids: %w", err)
		}
		return ids, nil
	}

	type rankedDoc struct {
		id    uuid.UUID
		score float64
	}
	ranked := make([]rankedDoc, 0, len(summaries))
	for _, s := range summaries {
		vec := s.EmbeddingValue.Slice()
		if len(vec) == 0 {
			continue // summary without an embedding cannot be ranked
		}
		ranked = append(ranked, rankedDoc{id: s.DocumentId, score: cosineSimilarity(queryVector, vec)})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	limit := r.cfg.CandidateDocuments
	if limit > len(ranked) {
		limit = len(ranked)
	}
	ids := make([]uuid.UUID, 0, limit)
	for _, d := range ranked[:limit] {
		ids = append(ids, d.id)
	}
	return ids, nil
}

func (r *ContextRetriever) focusOverlaps(chunkDoc uuid.UUID, chunkStart, chunkEnd int, focus *dto.FocusContextDTO) bool {
	if chunkDoc != focus.DocumentId {
		return false
	}
	return chunkStart < focus.EndChar && chunkEnd > focus.StartChar
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
