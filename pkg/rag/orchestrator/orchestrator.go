package orchestrator

import (
	"context"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag/cache"
	"docchat-be/pkg/rag/pricing"
	"docchat-be/pkg/rag/prompt"
	"docchat-be/pkg/rag/ragerr"
	"docchat-be/pkg/rag/retriever"
	"docchat-be/pkg/rag/stream"

	"github.com/google/uuid"
)

// Retriever is the slice of ContextRetriever the orchestrator consumes.
type Retriever interface {
	Retrieve(ctx context.Context, query string, documentId *uuid.UUID, focus *dto.FocusContextDTO) (*retriever.RetrievalResult, error)
}

// Generator is the slice of the generation client the orchestrator consumes.
type Generator interface {
	Stream(ctx context.Context, history []llm.Message, onDelta func(delta string), opts ...llm.Option) (string, llm.Usage, error)
}

// Orchestrator composes retrieval, the response cache and streaming
// generation into the end-to-end answer operation. Every failure mode
// is expressed as a terminal stream event; nothing raises past the
// returned channel.
type Orchestrator struct {
	retriever Retriever
	cache     *cache.ResponseCache
	generator Generator
	builder   *prompt.Builder
	rates     pricing.Rates
	logger    logger.ILogger
}

func NewOrchestrator(r Retriever, c *cache.ResponseCache, g Generator, rates pricing.Rates, log logger.ILogger) *Orchestrator {
	return &Orchestrator{
		retriever: r,
		cache:     c,
		generator: g,
		builder:   prompt.NewBuilder(),
		rates:     rates,
		logger:    log,
	}
}

// Generate answers one user message as an ordered event stream. The
// channel closes after the terminal event. Cancelling ctx stops the
// stream; whatever partial text was produced rides on the final error
// event so the caller can persist it.
func (o *Orchestrator) Generate(ctx context.Context, query string, documentId *uuid.UUID, focus *dto.FocusContextDTO, history []llm.Message) <-chan stream.Event {
	out := make(chan stream.Event, 64)
	go func() {
		defer close(out)
		o.run(ctx, query, documentId, focus, history, out)
	}()
	return out
}

func (o *Orchestrator) run(ctx context.Context, query string, documentId *uuid.UUID, focus *dto.FocusContextDTO, history []llm.Message, out chan<- stream.Event) {
	send := func(ev stream.Event) bool {
		// Prefer the buffer even after cancellation so terminal events
		// reach a caller that is still draining.
		select {
		case out <- ev:
			return true
		default:
		}
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	result, err := o.retriever.Retrieve(ctx, query, documentId, focus)
	if err != nil {
		if o.logger != nil {
			o.logger.Error("RAGOrchestrator", "Retrieval failed", map[string]interface{}{"error": err.Error()})
		}
		send(stream.Error(ragerr.Sanitize(err), ""))
		return
	}

	key := cache.ComputeKey(query, result.SelectedDocuments, focus)
	if entry := o.cache.Get(key); entry != nil {
		o.replay(entry, send)
		return
	}

	messages := o.builder.Build(query, result, focus, history)

	var partial string
	full, usage, err := o.generator.Stream(ctx, messages, func(delta string) {
		partial += delta
		send(stream.Token(delta))
	})
	if err != nil {
		if full == "" {
			full = partial
		}
		if o.logger != nil {
			o.logger.Error("RAGOrchestrator", "Generation failed", map[string]interface{}{
				"error":   err.Error(),
				"partial": len(full) > 0,
			})
		}
		send(stream.Error(ragerr.Sanitize(err), full))
		return
	}

	sources := make([]stream.SourceData, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		src := stream.SourceData{
			ChunkId:    chunk.ChunkId.String(),
			DocumentId: chunk.DocumentId.String(),
			Similarity: chunk.Similarity,
			StartChar:  chunk.StartChar,
			EndChar:    chunk.EndChar,
			TokenCount: chunk.TokenCount,
		}
		sources = append(sources, src)
		if !send(stream.Source(src)) {
			return
		}
	}

	cost := pricing.Cost(usage, o.rates)
	send(stream.Done(stream.DoneData{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CachedTokens:     usage.CachedTokens,
		CostUSD:          cost,
		Cached:           false,
	}))

	o.cache.Set(key, full, sources, usage.PromptTokens+usage.CompletionTokens)
}

// replay serves a cache hit: the whole response as one token event, the
// cached source snapshot, then a zero-cost done event.
func (o *Orchestrator) replay(entry *cache.Entry, send func(stream.Event) bool) {
	if !send(stream.Token(entry.Response)) {
		return
	}
	for _, src := range entry.Sources {
		if !send(stream.Source(src)) {
			return
		}
	}
	done := stream.Done(stream.DoneData{
		CostUSD: 0,
		Cached:  true,
	})
	done.Done.TokenCount = entry.TokenCount
	send(done)
}
