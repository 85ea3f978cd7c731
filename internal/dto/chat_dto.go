package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	DocumentId *uuid.UUID `json:"document_id,omitempty"`
}

type CreateSessionResponse struct {
	Id uuid.UUID `json:"id"`
}

type GetAllSessionsResponse struct {
	Id         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	DocumentId *uuid.UUID `json:"document_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type GetChatHistoryResponse struct {
	Id        uuid.UUID              `json:"id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	CreatedAt time.Time              `json:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// FocusContextDTO is the user's cursor position: a document plus a
// character range used to bias retrieval toward the passage on screen.
type FocusContextDTO struct {
	DocumentId      uuid.UUID `json:"document_id" validate:"required"`
	StartChar       int       `json:"start_char" validate:"min=0"`
	EndChar         int       `json:"end_char" validate:"min=0"`
	SurroundingText string    `json:"surrounding_text,omitempty"`
}

type SendMessageRequest struct {
	Message      string           `json:"message" validate:"required"`
	FocusContext *FocusContextDTO `json:"focus_context,omitempty"`
}

type SessionStatsResponse struct {
	Id            uuid.UUID `json:"id"`
	MessageCount  int64     `json:"message_count"`
	TotalTokens   int       `json:"total_tokens"`
	TotalCostUSD  float64   `json:"total_cost_usd"`
	CacheHitCount int       `json:"cache_hit_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
