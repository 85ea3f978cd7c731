package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Rag      RAGConfig
	Limits   LimitConfig
	Pricing  PricingConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	DocumentTopic      string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	OpenAI       string
	JwtSecret    string
}

type AIConfig struct {
	EmbeddingProvider string // "gemini" or "ollama"
	EmbeddingModel    string
	OllamaBaseURL     string
	LLMProvider       string // "ollama" or "openai"
	LLMModel          string
	OpenAIBaseURL     string
}

// RAGConfig collects every retrieval/generation tuning knob in one place
// so components never carry hard-coded constants.
type RAGConfig struct {
	SimilarityThreshold  float64       // minimum post-boost cosine similarity
	FocusBoost           float64       // additive boost for focus-overlapping chunks
	TopK                 int           // chunks fetched per candidate document
	CandidateDocuments   int           // documents kept from summary ranking
	ContextTokenBudget   int           // max tokens of retrieved context
	SummaryMaxChars      int           // hard cap on stored summary text
	SummaryPrefixChars   int           // document prefix handed to the synopsis prompt
	CacheMaxSize         int
	CacheTTL             time.Duration
	StreamCeiling        time.Duration // hard per-turn streaming ceiling
	GenerationTimeout    time.Duration // per provider call
	RetryMaxAttempts     int
	RetryBaseWait        time.Duration
	RateLimitRetryWait   time.Duration
	BreakerFailureLimit  int
	BreakerSuccessLimit  int
	BreakerRecoveryAfter time.Duration
}

type LimitConfig struct {
	QueriesPerHour       int
	ConcurrentStreams    int
	MaxMessageChars      int
	MaxFocusRangeChars   int
	MaxSurroundingChars  int
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	SpendingCeilingUSD   float64
}

// PricingConfig holds per-1K-token USD rates used by the cost model.
type PricingConfig struct {
	InputRate       float64
	CachedInputRate float64
	OutputRate      float64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			DocumentTopic:      getEnv("DOCUMENT_REFRESH_TOPIC_NAME", "DOCUMENT_REFRESH"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
			JwtSecret:    getEnv("JWT_SECRET", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "gemini"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		},
		Rag: RAGConfig{
			SimilarityThreshold:  getEnvAsFloat("RAG_SIMILARITY_THRESHOLD", 0.7),
			FocusBoost:           getEnvAsFloat("RAG_FOCUS_BOOST", 0.15),
			TopK:                 getEnvAsInt("RAG_TOP_K", 5),
			CandidateDocuments:   getEnvAsInt("RAG_CANDIDATE_DOCUMENTS", 3),
			ContextTokenBudget:   getEnvAsInt("RAG_CONTEXT_TOKEN_BUDGET", 8000),
			SummaryMaxChars:      getEnvAsInt("RAG_SUMMARY_MAX_CHARS", 500),
			SummaryPrefixChars:   getEnvAsInt("RAG_SUMMARY_PREFIX_CHARS", 4000),
			CacheMaxSize:         getEnvAsInt("RAG_CACHE_MAX_SIZE", 1000),
			CacheTTL:             getEnvAsDuration("RAG_CACHE_TTL", 24*time.Hour),
			StreamCeiling:        getEnvAsDuration("RAG_STREAM_CEILING", 60*time.Second),
			GenerationTimeout:    getEnvAsDuration("RAG_GENERATION_TIMEOUT", 30*time.Second),
			RetryMaxAttempts:     getEnvAsInt("RAG_RETRY_MAX_ATTEMPTS", 3),
			RetryBaseWait:        getEnvAsDuration("RAG_RETRY_BASE_WAIT", 5*time.Second),
			RateLimitRetryWait:   getEnvAsDuration("RAG_RATE_LIMIT_RETRY_WAIT", 60*time.Second),
			BreakerFailureLimit:  getEnvAsInt("RAG_BREAKER_FAILURE_LIMIT", 5),
			BreakerSuccessLimit:  getEnvAsInt("RAG_BREAKER_SUCCESS_LIMIT", 2),
			BreakerRecoveryAfter: getEnvAsDuration("RAG_BREAKER_RECOVERY_AFTER", 60*time.Second),
		},
		Limits: LimitConfig{
			QueriesPerHour:       getEnvAsInt("LIMIT_QUERIES_PER_HOUR", 100),
			ConcurrentStreams:    getEnvAsInt("LIMIT_CONCURRENT_STREAMS", 5),
			MaxMessageChars:      getEnvAsInt("LIMIT_MAX_MESSAGE_CHARS", 6000),
			MaxFocusRangeChars:   getEnvAsInt("LIMIT_MAX_FOCUS_RANGE_CHARS", 10000),
			MaxSurroundingChars:  getEnvAsInt("LIMIT_MAX_SURROUNDING_CHARS", 2000),
			SessionTTL:           getEnvAsDuration("LIMIT_SESSION_TTL", 24*time.Hour),
			SessionSweepInterval: getEnvAsDuration("LIMIT_SESSION_SWEEP_INTERVAL", 5*time.Minute),
			SpendingCeilingUSD:   getEnvAsFloat("LIMIT_SPENDING_CEILING_USD", 5.00),
		},
		Pricing: PricingConfig{
			InputRate:       getEnvAsFloat("PRICE_INPUT_PER_1K", 0.0025),
			CachedInputRate: getEnvAsFloat("PRICE_CACHED_INPUT_PER_1K", 0.00125),
			OutputRate:      getEnvAsFloat("PRICE_OUTPUT_PER_1K", 0.01),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
