package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// DocumentSummary is one short synopsis per document, embedding-indexed
// so multi-document queries can pick candidate documents cheaply.
type DocumentSummary struct {
	Id             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DocumentId     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Summary        string          `gorm:"type:text;not null"` // <= 500 chars, hard-truncated
	EmbeddingValue pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
	DeletedAt      gorm.DeletedAt  `gorm:"index"`
}

func (DocumentSummary) TableName() string {
	return "document_summaries"
}
