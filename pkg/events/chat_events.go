package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeChatTurnCompleted = "CHAT_TURN_COMPLETED"
	TypeSessionExpired    = "SESSION_EXPIRED"
	TypeSpendingExceeded  = "SPENDING_EXCEEDED"

	// Emitted by the external ingestion service when a document's
	// content changes. This service only consumes it.
	TypeDocumentUpdated = "DOCUMENT_UPDATED"
)

// NewChatTurnCompleted records the usage of one finished assistant turn.
func NewChatTurnCompleted(sessionId uuid.UUID, userId string, promptTokens, completionTokens int, costUSD float64, cached bool) Event {
	return BaseEvent{
		Type: TypeChatTurnCompleted,
		Data: map[string]interface{}{
			"session_id":        sessionId.String(),
			"user_id":           userId,
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"cost_usd":          costUSD,
			"cached":            cached,
		},
		OccurredAt: time.Now(),
	}
}

func NewSessionExpired(sessionId uuid.UUID, userId string) Event {
	return BaseEvent{
		Type: TypeSessionExpired,
		Data: map[string]interface{}{
			"session_id": sessionId.String(),
			"user_id":    userId,
		},
		OccurredAt: time.Now(),
	}
}

func NewSpendingExceeded(sessionId uuid.UUID, userId string, totalCostUSD, ceilingUSD float64) Event {
	return BaseEvent{
		Type: TypeSpendingExceeded,
		Data: map[string]interface{}{
			"session_id":     sessionId.String(),
			"user_id":        userId,
			"total_cost_usd": totalCostUSD,
			"ceiling_usd":    ceilingUSD,
		},
		OccurredAt: time.Now(),
	}
}
