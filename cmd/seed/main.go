package main

import (
	"context"
	"log"

	"docchat-be/internal/config"
	"docchat-be/internal/model"
	"docchat-be/pkg/database"
	"docchat-be/pkg/embedding"
	"docchat-be/pkg/tokens"
	"docchat-be/pkg/utils"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

const sampleDocument = `Service Level Agreement

1. Availability. The provider guarantees 99.9% monthly uptime for the
hosted service, measured across all regions. Scheduled maintenance
windows are announced at least 72 hours in advance and excluded from
the availability calculation.

2. Support. Priority-one incidents receive a first response within 30
minutes, around the clock. Priority-two incidents receive a first
response within 4 business hours. All other requests are handled within
2 business days.

3. Credits. If monthly uptime falls below 99.9%, the customer is
entitled to a service credit of 10% of the monthly fee. Below 99.0% the
credit rises to 25%. Credits must be requested within 30 days of the
incident and never exceed the fee for the affected month.

4. Data handling. Customer data is encrypted at rest and in transit.
Backups are taken every 6 hours and retained for 35 days. On contract
termination all customer data is deleted within 90 days.

5. Termination. Either party may terminate with 60 days written notice.
Material breach allows immediate termination if the breach is not cured
within 14 days of notification.`

func main() {
	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var embedder embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embedder = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel)
	} else {
		embedder = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
	}
	counter := tokens.NewCounter()

	ctx := context.Background()
	userId := uuid.New()

	doc := model.Document{
		Id:     uuid.New(),
		UserId: userId,
		Title:  "Sample Service Level Agreement",
	}
	if err := db.WithContext(ctx).Create(&doc).Error; err != nil {
		log.Fatalf("Failed to create document: %v", err)
	}
	color.Green("✔ Created document %s (owner %s)", doc.Id, userId)

	chunks := utils.SplitText(sampleDocument, 600, 100)
	rows := make([]*model.DocumentChunk, 0, len(chunks))
	for i, chunk := range chunks {
		embeddingRes, err := embedder.Generate(chunk.Text, "RETRIEVAL_DOCUMENT")
		if err != nil {
			log.Fatalf("Failed to embed chunk %d: %v", i, err)
		}
		rows = append(rows, &model.DocumentChunk{
			Id:             uuid.New(),
			DocumentId:     doc.Id,
			Text:           chunk.Text,
			EmbeddingValue: pgvector.NewVector(embeddingRes.Embedding.Values),
			ChunkIndex:     i,
			StartChar:      chunk.Start,
			EndChar:        chunk.End,
			TokenCount:     counter.Count(chunk.Text),
		})
		color.Cyan("  chunk %d: chars %d-%d, %d tokens", i, chunk.Start, chunk.End, counter.Count(chunk.Text))
	}

	if err := db.WithContext(ctx).Create(&rows).Error; err != nil {
		log.Fatalf("Failed to create chunks: %v", err)
	}

	color.Green("✔ Seeded %d chunks. Summaries are generated on server startup.", len(rows))
}
