package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag/cache"
	"docchat-be/pkg/rag/pricing"
	"docchat-be/pkg/rag/ragerr"
	"docchat-be/pkg/rag/retriever"
	"docchat-be/pkg/rag/stream"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	result *retriever.RetrievalResult
	err    error
	calls  int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, documentId *uuid.UUID, focus *dto.FocusContextDTO) (*retriever.RetrievalResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGenerator struct {
	deltas []string
	usage  llm.Usage
	err    error
	calls  int
	block  chan struct{} // when set, wait here after the first delta
}

func (f *fakeGenerator) Stream(ctx context.Context, history []llm.Message, onDelta func(string), opts ...llm.Option) (string, llm.Usage, error) {
	f.calls++
	full := ""
	for i, d := range f.deltas {
		select {
		case <-ctx.Done():
			return full, f.usage, ctx.Err()
		default:
		}
		full += d
		onDelta(d)
		if i == 0 && f.block != nil {
			select {
			case <-f.block:
			case <-ctx.Done():
				return full, f.usage, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return full, f.usage, f.err
	}
	return full, f.usage, nil
}

func collect(ch <-chan stream.Event) []stream.Event {
	var events []stream.Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func testRates() pricing.Rates {
	return pricing.Rates{InputPer1K: 0.0025, CachedInputPer1K: 0.00125, OutputPer1K: 0.01}
}

func singleChunkResult(docId uuid.UUID) *retriever.RetrievalResult {
	return &retriever.RetrievalResult{
		Chunks: []retriever.RetrievedChunk{
			{ChunkId: uuid.New(), DocumentId: docId, Text: "passage", Similarity: 0.9, StartChar: 0, EndChar: 7, TokenCount: 2},
		},
		TotalTokens:       2,
		SelectedDocuments: []uuid.UUID{docId},
	}
}

func TestSuccessfulStreamEventOrder(t *testing.T) {
	docId := uuid.New()
	gen := &fakeGenerator{
		deltas: []string{"Hel", "lo"},
		usage:  llm.Usage{PromptTokens: 100, CompletionTokens: 2},
	}
	o := NewOrchestrator(
		&fakeRetriever{result: singleChunkResult(docId)},
		cache.NewResponseCache(10, time.Hour),
		gen,
		testRates(),
		nil,
	)

	events := collect(o.Generate(context.Background(), "hi", &docId, nil, nil))

	require.Len(t, events, 4)
	assert.Equal(t, stream.EventToken, events[0].Type)
	assert.Equal(t, "Hel", events[0].Token.Content)
	assert.Equal(t, stream.EventToken, events[1].Type)
	assert.Equal(t, stream.EventSource, events[2].Type)
	assert.Equal(t, docId.String(), events[2].Source.DocumentId)

	done := events[3]
	require.Equal(t, stream.EventDone, done.Type)
	assert.False(t, done.Done.Cached)
	assert.Equal(t, 100, done.Done.PromptTokens)
	assert.InDelta(t, pricing.Cost(gen.usage, testRates()), done.Done.CostUSD, 1e-12)
}

func TestCacheHitReplaysWithoutProviderCall(t *testing.T) {
	docId := uuid.New()
	gen := &fakeGenerator{
		deltas: []string{"answer"},
		usage:  llm.Usage{PromptTokens: 50, CompletionTokens: 1},
	}
	o := NewOrchestrator(
		&fakeRetriever{result: singleChunkResult(docId)},
		cache.NewResponseCache(10, time.Hour),
		gen,
		testRates(),
		nil,
	)

	first := collect(o.Generate(context.Background(), "same question", &docId, nil, nil))
	require.Equal(t, stream.EventDone, first[len(first)-1].Type)

	second := collect(o.Generate(context.Background(), "same question", &docId, nil, nil))
	assert.Equal(t, 1, gen.calls, "cache hit must not call the provider")

	require.Len(t, second, 3)
	assert.Equal(t, "answer", second[0].Token.Content, "full cached text replayed as one token event")
	assert.Equal(t, stream.EventSource, second[1].Type)

	done := second[2]
	require.Equal(t, stream.EventDone, done.Type)
	assert.True(t, done.Done.Cached)
	assert.Zero(t, done.Done.CostUSD, "cache hits report zero incremental cost")
}

func TestProviderErrorBecomesErrorEvent(t *testing.T) {
	docId := uuid.New()
	gen := &fakeGenerator{
		deltas: []string{"partial "},
		err:    ragerr.NewProviderError("The assistant failed to generate a response. Please try again.", errors.New("status 500 raw detail")),
	}
	o := NewOrchestrator(
		&fakeRetriever{result: singleChunkResult(docId)},
		cache.NewResponseCache(10, time.Hour),
		gen,
		testRates(),
		nil,
	)

	events := collect(o.Generate(context.Background(), "hi", &docId, nil, nil))

	last := events[len(events)-1]
	require.Equal(t, stream.EventError, last.Type)
	assert.Equal(t, "partial ", last.Error.PartialResponse, "partial text rides on the error event")
	assert.NotContains(t, last.Error.Message, "raw detail", "internal detail must not leak")
}

func TestRetrievalErrorBecomesErrorEvent(t *testing.T) {
	o := NewOrchestrator(
		&fakeRetriever{err: errors.New("pg: connection refused")},
		cache.NewResponseCache(10, time.Hour),
		&fakeGenerator{},
		testRates(),
		nil,
	)

	events := collect(o.Generate(context.Background(), "hi", nil, nil, nil))
	require.Len(t, events, 1)
	require.Equal(t, stream.EventError, events[0].Type)
	assert.NotContains(t, events[0].Error.Message, "connection refused")
}

func TestEmptyRetrievalStillGenerates(t *testing.T) {
	gen := &fakeGenerator{
		deltas: []string{"I could not find anything about that in your documents."},
		usage:  llm.Usage{PromptTokens: 30, CompletionTokens: 12},
	}
	o := NewOrchestrator(
		&fakeRetriever{result: &retriever.RetrievalResult{SelectedDocuments: []uuid.UUID{}}},
		cache.NewResponseCache(10, time.Hour),
		gen,
		testRates(),
		nil,
	)

	events := collect(o.Generate(context.Background(), "What is AI?", nil, nil, nil))

	require.Equal(t, 1, gen.calls, "empty context must still attempt generation")
	last := events[len(events)-1]
	assert.Equal(t, stream.EventDone, last.Type)
}

func TestCancellationStopsStream(t *testing.T) {
	docId := uuid.New()
	gen := &fakeGenerator{
		deltas: []string{"first ", "never delivered"},
		block:  make(chan struct{}),
	}
	o := NewOrchestrator(
		&fakeRetriever{result: singleChunkResult(docId)},
		cache.NewResponseCache(10, time.Hour),
		gen,
		testRates(),
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	ch := o.Generate(ctx, "hi", &docId, nil, nil)

	first := <-ch
	require.Equal(t, stream.EventToken, first.Type)
	cancel()

	events := collect(ch)
	require.NotEmpty(t, events, "terminal error event must still be delivered")
	last := events[len(events)-1]
	require.Equal(t, stream.EventError, last.Type)
	assert.Contains(t, last.Error.PartialResponse, "first ")
}
