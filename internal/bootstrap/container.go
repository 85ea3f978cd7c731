package bootstrap

import (
	"context"
	"log"
	"time"

	"docchat-be/internal/config"
	"docchat-be/internal/controller"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/implementation"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/internal/service"
	"docchat-be/pkg/embedding"
	"docchat-be/pkg/events"
	"docchat-be/pkg/llm/factory"
	"docchat-be/pkg/rag/breaker"
	"docchat-be/pkg/rag/cache"
	"docchat-be/pkg/rag/generate"
	"docchat-be/pkg/rag/orchestrator"
	"docchat-be/pkg/rag/pricing"
	"docchat-be/pkg/rag/ratelimit"
	"docchat-be/pkg/rag/retriever"
	"docchat-be/pkg/rag/summary"
	"docchat-be/pkg/rag/validate"
	"docchat-be/pkg/tokens"

	pktNats "docchat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	ChatService     service.IChatService
	DocumentService service.IDocumentService

	// Infrastructure handles for shutdown
	NatsPublisher  *pktNats.Publisher
	NatsSubscriber *pktNats.Subscriber
	PubSub         *gochannel.GoChannel
	Logger         logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	var eventPublisher service.EventPublisher
	if natsPub != nil {
		eventPublisher = natsPub
	}

	// 3. Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.EmbeddingModel,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.EmbeddingModel)
	} else {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	llmBaseURL := cfg.Ai.OllamaBaseURL
	if cfg.Ai.LLMProvider == "openai" {
		llmBaseURL = cfg.Ai.OpenAIBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		llmBaseURL,
		cfg.Keys.OpenAI,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Generation pipeline
	circuitBreaker := breaker.NewCircuitBreaker(
		cfg.Rag.BreakerFailureLimit,
		cfg.Rag.BreakerSuccessLimit,
		cfg.Rag.BreakerRecoveryAfter,
		sysLogger,
	)
	genClient := generate.NewClient(llmProvider, circuitBreaker, generate.Options{
		Timeout:       cfg.Rag.GenerationTimeout,
		StreamCeiling: cfg.Rag.StreamCeiling,
		MaxAttempts:   cfg.Rag.RetryMaxAttempts,
		BaseWait:      cfg.Rag.RetryBaseWait,
		RateLimitWait: cfg.Rag.RateLimitRetryWait,
	}, sysLogger)

	counter := tokens.NewCounter()
	chunkRepo := implementation.NewDocumentChunkRepository(db)
	summaryRepo := implementation.NewDocumentSummaryRepository(db)

	contextRetriever := retriever.NewContextRetriever(
		embeddingProvider,
		chunkRepo,
		summaryRepo,
		counter,
		retriever.Config{
			SimilarityThreshold: cfg.Rag.SimilarityThreshold,
			FocusBoost:          cfg.Rag.FocusBoost,
			TopK:                cfg.Rag.TopK,
			CandidateDocuments:  cfg.Rag.CandidateDocuments,
			ContextTokenBudget:  cfg.Rag.ContextTokenBudget,
		},
		sysLogger,
	)

	responseCache := cache.NewResponseCache(cfg.Rag.CacheMaxSize, cfg.Rag.CacheTTL)
	limiter := ratelimit.NewRateLimiter(
		cfg.Limits.QueriesPerHour,
		cfg.Limits.ConcurrentStreams,
		10*time.Minute,
	)

	ragOrchestrator := orchestrator.NewOrchestrator(
		contextRetriever,
		responseCache,
		genClient,
		pricing.Rates{
			InputPer1K:       cfg.Pricing.InputRate,
			CachedInputPer1K: cfg.Pricing.CachedInputRate,
			OutputPer1K:      cfg.Pricing.OutputRate,
		},
		sysLogger,
	)

	summaryIndex := summary.NewIndex(genClient, embeddingProvider, summaryRepo, summary.Config{
		MaxChars:    cfg.Rag.SummaryMaxChars,
		PrefixChars: cfg.Rag.SummaryPrefixChars,
	}, sysLogger)

	inputValidator := validate.NewInputValidator(
		cfg.Limits.MaxMessageChars,
		cfg.Limits.MaxFocusRangeChars,
		cfg.Limits.MaxSurroundingChars,
		sysLogger,
	)

	// 5. Services
	publisherService := service.NewPublisherService(cfg.App.DocumentTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.DocumentTopic,
		uowFactory,
		responseCache,
		summaryIndex,
		sysLogger,
	)

	chatService := service.NewChatService(
		uowFactory,
		inputValidator,
		limiter,
		ragOrchestrator,
		eventPublisher,
		cfg.Limits,
		sysLogger,
	)
	documentService := service.NewDocumentService(
		uowFactory,
		publisherService,
		summaryIndex,
		responseCache,
		sysLogger,
	)

	// Bridge external DOCUMENT_UPDATED events onto the refresh topic.
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	} else {
		err = natsSub.Subscribe("events."+events.TypeDocumentUpdated, "docchat-document-refresh",
			func(ctx context.Context, event events.Event) error {
				raw, _ := event.Payload()["document_id"].(string)
				documentId, parseErr := uuid.Parse(raw)
				if parseErr != nil {
					// Malformed payloads are dropped, never retried.
					sysLogger.Warn("Bootstrap", "Ignoring DOCUMENT_UPDATED with bad document_id", map[string]interface{}{
						"document_id": raw,
					})
					return nil
				}
				_, refreshErr := documentService.RefreshDocument(ctx, documentId)
				return refreshErr
			})
		if err != nil {
			log.Printf("[WARN] Failed to subscribe to document events: %v", err)
		}
	}

	// 6. Controllers
	return &Container{
		ChatController: controller.NewChatController(chatService, documentService, inputValidator),

		ConsumerService: consumerService,
		ChatService:     chatService,
		DocumentService: documentService,

		NatsPublisher:  natsPub,
		NatsSubscriber: natsSub,
		PubSub:         pubSub,
		Logger:         sysLogger,
	}
}
