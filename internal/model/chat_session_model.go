package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatSession struct {
	Id         uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId     uuid.UUID      `gorm:"type:uuid;not null;index"` // User ownership for data isolation
	DocumentId *uuid.UUID     `gorm:"type:uuid;index"`          // Optional: session scoped to one document
	Title      string         `gorm:"type:text;not null"`
	// Accumulated turn metadata. Counters are additive, never replaced.
	TotalTokens   int            `gorm:"default:0"`
	TotalCostUSD  float64        `gorm:"default:0"`
	CacheHitCount int            `gorm:"default:0"`
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime;index"`
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}
