package service

import (
	"context"
	"time"

	"docchat-be/internal/config"
	"docchat-be/internal/constant"
	"docchat-be/internal/dto"
	"docchat-be/internal/model"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/events"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag/ragerr"
	"docchat-be/pkg/rag/ratelimit"
	"docchat-be/pkg/rag/stream"
	"docchat-be/pkg/rag/validate"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Orchestrator is the slice of the RAG orchestrator this service consumes.
type Orchestrator interface {
	Generate(ctx context.Context, query string, documentId *uuid.UUID, focus *dto.FocusContextDTO, history []llm.Message) <-chan stream.Event
}

// EventPublisher pushes domain events onto the external bus.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// IChatService owns session and message lifecycle, spend accounting and
// the coordination around each streamed turn.
type IChatService interface {
	CreateSession(ctx context.Context, userId uuid.UUID, request *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error)
	GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllSessionsResponse, error)
	GetChatHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.GetChatHistoryResponse, error)
	GetSessionStats(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.SessionStatsResponse, error)
	DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error
	SendMessage(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, request *dto.SendMessageRequest) (<-chan stream.Event, error)
	SweepExpiredSessions(ctx context.Context) (int, error)
	StartSessionSweeper(ctx context.Context)
}

type chatService struct {
	uowFactory unitofwork.RepositoryFactory
	validator  *validate.InputValidator
	limiter    *ratelimit.RateLimiter
	rag        Orchestrator
	publisher  EventPublisher
	limits     config.LimitConfig
	logger     logger.ILogger
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	validator *validate.InputValidator,
	limiter *ratelimit.RateLimiter,
	rag Orchestrator,
	publisher EventPublisher,
	limits config.LimitConfig,
	log logger.ILogger,
) IChatService {
	return &chatService{
		uowFactory: uowFactory,
		validator:  validator,
		limiter:    limiter,
		rag:        rag,
		publisher:  publisher,
		limits:     limits,
		logger:     log,
	}
}

func (cs *chatService) CreateSession(ctx context.Context, userId uuid.UUID, request *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	if request.DocumentId != nil {
		doc, err := uow.DocumentRepository().FindOne(ctx,
			specification.ByID{ID: *request.DocumentId},
			specification.UserOwnedBy{UserID: userId},
		)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, ragerr.ErrDocumentNotFound
		}
	}

	chatSession := model.ChatSession{
		Id:         uuid.New(),
		UserId:     userId,
		DocumentId: request.DocumentId,
		Title:      "New session",
	}

	if err := uow.ChatSessionRepository().Create(ctx, &chatSession); err != nil {
		return nil, err
	}

	return &dto.CreateSessionResponse{Id: chatSession.Id}, nil
}

func (cs *chatService) GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllSessionsResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	chatSessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "updated_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	response := make([]*dto.GetAllSessionsResponse, 0, len(chatSessions))
	for _, s := range chatSessions {
		response = append(response, &dto.GetAllSessionsResponse{
			Id:         s.Id,
			Title:      s.Title,
			DocumentId: s.DocumentId,
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  s.UpdatedAt,
		})
	}

	return response, nil
}

func (cs *chatService) GetChatHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.GetChatHistoryResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	sess, err := cs.ownedSession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	chatMessages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sess.Id},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	response := make([]*dto.GetChatHistoryResponse, 0, len(chatMessages))
	for _, m := range chatMessages {
		response = append(response, &dto.GetChatHistoryResponse{
			Id:        m.Id,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
			Metadata:  m.Metadata,
		})
	}

	return response, nil
}

func (cs *chatService) GetSessionStats(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.SessionStatsResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	sess, err := cs.ownedSession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	messageCount, err := uow.ChatMessageRepository().Count(ctx,
		specification.ByChatSessionID{ChatSessionID: sess.Id},
	)
	if err != nil {
		return nil, err
	}

	return &dto.SessionStatsResponse{
		Id:            sess.Id,
		MessageCount:  messageCount,
		TotalTokens:   sess.TotalTokens,
		TotalCostUSD:  sess.TotalCostUSD,
		CacheHitCount: sess.CacheHitCount,
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
	}, nil
}

func (cs *chatService) DeleteSession(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) error {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	sess, err := cs.ownedSession(ctx, uow, userId, sessionId)
	if err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteByChatSessionId(ctx, sess.Id); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, sess.Id); err != nil {
		return err
	}

	return uow.Commit()
}

// SendMessage runs the pre-flight checks, persists the user message and
// starts the streamed turn. The returned channel mirrors the orchestrator
// stream; the terminal event also triggers assistant-message persistence
// and session accounting before the channel closes.
func (cs *chatService) SendMessage(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID, request *dto.SendMessageRequest) (<-chan stream.Event, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	sess, err := cs.ownedSession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	message, err := cs.validator.ValidateMessage(request.Message)
	if err != nil {
		return nil, err
	}
	focus, err := cs.validator.ValidateFocus(request.FocusContext)
	if err != nil {
		return nil, err
	}

	if sess.TotalCostUSD >= cs.limits.SpendingCeilingUSD {
		cs.publishEvent(events.NewSpendingExceeded(sess.Id, userId.String(), sess.TotalCostUSD, cs.limits.SpendingCeilingUSD))
		return nil, ragerr.ErrSpendingExceeded
	}

	if err := cs.limiter.CheckQueryLimit(sess.Id); err != nil {
		return nil, err
	}
	if err := cs.limiter.AcquireStream(sess.Id); err != nil {
		return nil, err
	}

	history, err := cs.loadHistory(ctx, uow, sess.Id)
	if err != nil {
		cs.limiter.ReleaseStream(sess.Id)
		return nil, err
	}

	userMessage := &model.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: sess.Id,
		Role:          constant.ChatMessageRoleUser,
		Content:       message,
	}
	if err := uow.ChatMessageRepository().Create(ctx, userMessage); err != nil {
		cs.limiter.ReleaseStream(sess.Id)
		return nil, err
	}

	if len(history) == 0 {
		cs.setSessionTitle(ctx, uow, sess.Id, message)
	}

	ragEvents := cs.rag.Generate(ctx, message, sess.DocumentId, focus, history)

	out := make(chan stream.Event, 64)
	go cs.consumeTurn(ctx, sess, userId, ragEvents, out)
	return out, nil
}

// consumeTurn forwards orchestrator events to the caller while
// accumulating the assistant text, then persists the outcome. The write
// happens exactly once per turn, whatever way the stream ended.
func (cs *chatService) consumeTurn(ctx context.Context, sess *model.ChatSession, userId uuid.UUID, in <-chan stream.Event, out chan<- stream.Event) {
	defer close(out)
	defer cs.limiter.ReleaseStream(sess.Id)

	var (
		text     string
		sources  []stream.SourceData
		terminal *stream.Event
	)

	for ev := range in {
		switch ev.Type {
		case stream.EventToken:
			text += ev.Token.Content
		case stream.EventSource:
			sources = append(sources, *ev.Source)
		case stream.EventDone, stream.EventError:
			evCopy := ev
			terminal = &evCopy
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			// Caller disconnected; keep consuming so the turn still
			// completes and persists.
		}
	}

	// Persistence must survive the request context being cancelled.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	metadata := datatypes.JSONMap{}
	if len(sources) > 0 {
		srcList := make([]interface{}, 0, len(sources))
		for _, s := range sources {
			srcList = append(srcList, map[string]interface{}{
				"chunk_id":    s.ChunkId,
				"document_id": s.DocumentId,
				"similarity":  s.Similarity,
				"start_char":  s.StartChar,
				"end_char":    s.EndChar,
			})
		}
		metadata[constant.MetaSources] = srcList
	}

	tokensUsed := 0
	costUSD := 0.0
	cacheHit := 0
	interrupted := false

	switch {
	case terminal == nil:
		interrupted = true
	case terminal.Type == stream.EventError:
		interrupted = true
		if text == "" {
			text = terminal.Error.PartialResponse
		}
	default:
		done := terminal.Done
		metadata[constant.MetaPromptTokens] = done.PromptTokens
		metadata[constant.MetaCompletionTokens] = done.CompletionTokens
		metadata[constant.MetaCachedTokens] = done.CachedTokens
		metadata[constant.MetaCostUSD] = done.CostUSD
		metadata[constant.MetaCached] = done.Cached
		tokensUsed = done.TokenCount
		costUSD = done.CostUSD
		if done.Cached {
			cacheHit = 1
		}
	}
	if interrupted {
		metadata[constant.MetaInterrupted] = true
	}

	if text == "" && interrupted {
		text = "(no response)"
	}

	uow := cs.uowFactory.NewUnitOfWork(persistCtx)
	assistantMessage := &model.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: sess.Id,
		Role:          constant.ChatMessageRoleAssistant,
		Content:       text,
		Metadata:      metadata,
	}
	if err := uow.ChatMessageRepository().Create(persistCtx, assistantMessage); err != nil {
		cs.logger.Error("ChatService", "Failed to persist assistant message", map[string]interface{}{
			"session_id": sess.Id.String(),
			"error":      err.Error(),
		})
		return
	}

	if err := uow.ChatSessionRepository().ApplyMetadataDeltas(persistCtx, sess.Id, tokensUsed, costUSD, cacheHit); err != nil {
		cs.logger.Error("ChatService", "Failed to update session accounting", map[string]interface{}{
			"session_id": sess.Id.String(),
			"error":      err.Error(),
		})
	}

	if terminal != nil && terminal.Type == stream.EventDone {
		done := terminal.Done
		cs.publishEvent(events.NewChatTurnCompleted(sess.Id, userId.String(), done.PromptTokens, done.CompletionTokens, done.CostUSD, done.Cached))
	}
}

// SweepExpiredSessions deletes sessions idle past the TTL, cascading
// their messages. Returns the number of sessions removed.
func (cs *chatService) SweepExpiredSessions(ctx context.Context) (int, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)

	cutoff := time.Now().Add(-cs.limits.SessionTTL)
	stale, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.UpdatedBefore{Cutoff: cutoff},
	)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, sess := range stale {
		if err := uow.Begin(ctx); err != nil {
			return removed, err
		}
		if err := uow.ChatMessageRepository().DeleteByChatSessionId(ctx, sess.Id); err != nil {
			uow.Rollback()
			continue
		}
		if err := uow.ChatSessionRepository().Delete(ctx, sess.Id); err != nil {
			uow.Rollback()
			continue
		}
		if err := uow.Commit(); err != nil {
			continue
		}
		removed++
		cs.publishEvent(events.NewSessionExpired(sess.Id, sess.UserId.String()))
	}

	if removed > 0 {
		cs.logger.Info("ChatService", "Expired sessions swept", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed, nil
}

// StartSessionSweeper runs the TTL sweep periodically until ctx ends.
func (cs *chatService) StartSessionSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cs.limits.SessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := cs.SweepExpiredSessions(ctx); err != nil {
					cs.logger.Error("ChatService", "Session sweep failed", map[string]interface{}{
						"error": err.Error(),
					})
				}
			}
		}
	}()
}

func (cs *chatService) ownedSession(ctx context.Context, uow unitofwork.UnitOfWork, userId, sessionId uuid.UUID) (*model.ChatSession, error) {
	sess, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ragerr.ErrSessionNotFound
	}
	return sess, nil
}

func (cs *chatService) loadHistory(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID) ([]llm.Message, error) {
	chatMessages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(chatMessages))
	for _, m := range chatMessages {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

func (cs *chatService) setSessionTitle(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID, firstMessage string) {
	title := firstMessage
	if runes := []rune(title); len(runes) > constant.SessionTitleMaxChars {
		title = string(runes[:constant.SessionTitleMaxChars])
	}
	if err := uow.ChatSessionRepository().UpdateTitle(ctx, sessionId, title); err != nil {
		cs.logger.Warn("ChatService", "Failed to set session title", map[string]interface{}{
			"session_id": sessionId.String(),
			"error":      err.Error(),
		})
	}
}

func (cs *chatService) publishEvent(event events.Event) {
	if cs.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cs.publisher.Publish(ctx, event); err != nil {
		cs.logger.Warn("ChatService", "Failed to publish event", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}
