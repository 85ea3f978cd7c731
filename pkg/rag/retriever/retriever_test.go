package retriever

import (
	"context"
	"testing"

	"docchat-be/internal/dto"
	"docchat-be/internal/model"
	"docchat-be/internal/repository/contract"
	"docchat-be/internal/repository/specification"
	"docchat-be/pkg/embedding"
	"docchat-be/pkg/tokens"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector []float32
}

func (f *fakeEmbedder) Generate(text, taskType string) (*embedding.EmbeddingResponse, error) {
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: f.vector},
	}, nil
}

type fakeChunkRepo struct {
	byDocument map[uuid.UUID][]*contract.ScoredDocumentChunk
	allDocIds  []uuid.UUID
}

func (f *fakeChunkRepo) CreateBulk(ctx context.Context, chunks []*model.DocumentChunk) error {
	return nil
}

func (f *fakeChunkRepo) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	return nil
}

func (f *fakeChunkRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.DocumentChunk, error) {
	return nil, nil
}

func (f *fakeChunkRepo) SearchSimilarWithScore(ctx context.Context, emb []float32, limit int, documentId uuid.UUID) ([]*contract.ScoredDocumentChunk, error) {
	return f.byDocument[documentId], nil
}

func (f *fakeChunkRepo) AllDocumentIds(ctx context.Context) ([]uuid.UUID, error) {
	return f.allDocIds, nil
}

type fakeSummaryRepo struct {
	summaries []*model.DocumentSummary
}

func (f *fakeSummaryRepo) Upsert(ctx context.Context, summary *model.DocumentSummary) error {
	return nil
}

func (f *fakeSummaryRepo) FindByDocumentId(ctx context.Context, documentId uuid.UUID) (*model.DocumentSummary, error) {
	return nil, nil
}

func (f *fakeSummaryRepo) FindAll(ctx context.Context) ([]*model.DocumentSummary, error) {
	return f.summaries, nil
}

func (f *fakeSummaryRepo) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	return nil
}

func testConfig() Config {
	return Config{
		SimilarityThreshold: 0.7,
		FocusBoost:          0.15,
		TopK:                5,
		CandidateDocuments:  3,
		ContextTokenBudget:  8000,
	}
}

func scoredChunk(docId uuid.UUID, similarity float64, tokenCount, startChar, endChar int) *contract.ScoredDocumentChunk {
	return &contract.ScoredDocumentChunk{
		Chunk: &model.DocumentChunk{
			Id:         uuid.New(),
			DocumentId: docId,
			Text:       "passage",
			StartChar:  startChar,
			EndChar:    endChar,
			TokenCount: tokenCount,
		},
		Similarity: similarity,
	}
}

func newTestRetriever(chunks *fakeChunkRepo, summaries *fakeSummaryRepo) *ContextRetriever {
	return NewContextRetriever(
		&fakeEmbedder{vector: []float32{1, 0, 0}},
		chunks,
		summaries,
		tokens.NewCounter(),
		testConfig(),
		nil,
	)
}

func TestThresholdFiltering(t *testing.T) {
	docId := uuid.New()
	chunks := &fakeChunkRepo{byDocument: map[uuid.UUID][]*contract.ScoredDocumentChunk{
		docId: {
			scoredChunk(docId, 0.9, 100, 0, 100),
			scoredChunk(docId, 0.6, 100, 100, 200),
		},
	}}
	r := newTestRetriever(chunks, &fakeSummaryRepo{})

	result, err := r.Retrieve(context.Background(), "query", &docId, nil)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1, "only the chunk above threshold survives")
	assert.InDelta(t, 0.9, result.Chunks[0].Similarity, 1e-9)
}

func TestFocusBoostLiftsChunkOverThreshold(t *testing.T) {
	docId := uuid.New()
	chunks := &fakeChunkRepo{byDocument: map[uuid.UUID][]*contract.ScoredDocumentChunk{
		docId: {
			scoredChunk(docId, 0.6, 100, 50, 150),
		},
	}}
	r := newTestRetriever(chunks, &fakeSummaryRepo{})

	focus := &dto.FocusContextDTO{DocumentId: docId, StartChar: 100, EndChar: 200}
	result, err := r.Retrieve(context.Background(), "query", &docId, focus)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1, "boosted chunk crosses the threshold")
	assert.InDelta(t, 0.75, result.Chunks[0].Similarity, 1e-9)
}

func TestFocusBoostIgnoresNonOverlappingChunks(t *testing.T) {
	docId := uuid.New()
	chunks := &fakeChunkRepo{byDocument: map[uuid.UUID][]*contract.ScoredDocumentChunk{
		docId: {
			scoredChunk(docId, 0.6, 100, 0, 50),
		},
	}}
	r := newTestRetriever(chunks, &fakeSummaryRepo{})

	focus := &dto.FocusContextDTO{DocumentId: docId, StartChar: 100, EndChar: 200}
	result, err := r.Retrieve(context.Background(), "query", &docId, focus)
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
}

func TestBoostCappedAtOne(t *testing.T) {
	docId := uuid.New()
	chunks := &fakeChunkRepo{byDocument: map[uuid.UUID][]*contract.ScoredDocumentChunk{
		docId: {
			scoredChunk(docId, 0.95, 100, 0, 100),
		},
	}}
	r := newTestRetriever(chunks, &fakeSummaryRepo{})

	focus := &dto.FocusContextDTO{DocumentId: docId, StartChar: 0, EndChar: 100}
	result, err := r.Retrieve(context.Background(), "query", &docId, focus)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.InDelta(t, 1.0, result.Chunks[0].Similarity, 1e-9)
}

func TestTokenBudgetGreedyAccept(t *testing.T) {
	docId := uuid.New()
	chunks := &fakeChunkRepo{byDocument: map[uuid.UUID][]*contract.ScoredDocumentChunk{
		docId: {
			scoredChunk(docId, 0.95, 5000, 0, 100),
			scoredChunk(docId, 0.90, 2500, 100, 200),
			scoredChunk(docId, 0.85, 1000, 200, 300), // would push past 8000
		},
	}}
	r := newTestRetriever(chunks, &fakeSummaryRepo{})

	result, err := r.Retrieve(context.Background(), "query", &docId, nil)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, 7500, result.TotalTokens)
	assert.LessOrEqual(t, result.TotalTokens, 8000)
}

func TestChunksSortedBySimilarityDescending(t *testing.T) {
	docId := uuid.New()
	chunks := &fakeChunkRepo{byDocument: map[uuid.UUID][]*contract.ScoredDocumentChunk{
		docId: {
			scoredChunk(docId, 0.75, 10, 0, 10),
			scoredChunk(docId, 0.95, 10, 10, 20),
			scoredChunk(docId, 0.85, 10, 20, 30),
		},
	}}
	r := newTestRetriever(chunks, &fakeSummaryRepo{})

	result, err := r.Retrieve(context.Background(), "query", &docId, nil)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)
	for i := 1; i < len(result.Chunks); i++ {
		assert.GreaterOrEqual(t, result.Chunks[i-1].Similarity, result.Chunks[i].Similarity)
	}
}

func TestSummaryRankingPicksCandidates(t *testing.T) {
	near, far, farther := uuid.New(), uuid.New(), uuid.New()
	summaries := &fakeSummaryRepo{summaries: []*model.DocumentSummary{
		{DocumentId: far, EmbeddingValue: pgvector.NewVector([]float32{0, 1, 0})},
		{DocumentId: near, EmbeddingValue: pgvector.NewVector([]float32{1, 0, 0})},
		{DocumentId: farther, EmbeddingValue: pgvector.NewVector([]float32{-1, 0, 0})},
	}}
	chunks := &fakeChunkRepo{byDocument: map[uuid.UUID][]*contract.ScoredDocumentChunk{}}

	r := NewContextRetriever(
		&fakeEmbedder{vector: []float32{1, 0, 0}},
		chunks,
		summaries,
		tokens.NewCounter(),
		Config{SimilarityThreshold: 0.7, TopK: 5, CandidateDocuments: 2, ContextTokenBudget: 8000},
		nil,
	)

	result, err := r.Retrieve(context.Background(), "query", nil, nil)
	require.NoError(t, err)
	require.Len(t, result.SelectedDocuments, 2)
	assert.Equal(t, near, result.SelectedDocuments[0], "closest summary ranks first")
	assert.NotContains(t, result.SelectedDocuments, farther)
}

func TestFallbackToAllDocumentsWithoutSummaries(t *testing.T) {
	docA, docB := uuid.New(), uuid.New()
	chunks := &fakeChunkRepo{
		byDocument: map[uuid.UUID][]*contract.ScoredDocumentChunk{},
		allDocIds:  []uuid.UUID{docA, docB},
	}
	r := newTestRetriever(chunks, &fakeSummaryRepo{})

	result, err := r.Retrieve(context.Background(), "query", nil, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{docA, docB}, result.SelectedDocuments)
}

func TestEmptyCandidateSetReturnsEmptyResult(t *testing.T) {
	chunks := &fakeChunkRepo{byDocument: map[uuid.UUID][]*contract.ScoredDocumentChunk{}}
	r := newTestRetriever(chunks, &fakeSummaryRepo{})

	result, err := r.Retrieve(context.Background(), "What is AI?", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.Empty(t, result.SelectedDocuments)
	assert.Zero(t, result.TotalTokens)
}
