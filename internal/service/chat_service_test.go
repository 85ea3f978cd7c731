package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"docchat-be/internal/config"
	"docchat-be/internal/constant"
	"docchat-be/internal/dto"
	"docchat-be/internal/model"
	"docchat-be/internal/repository/contract"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/events"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag/ragerr"
	"docchat-be/pkg/rag/ratelimit"
	"docchat-be/pkg/rag/stream"
	"docchat-be/pkg/rag/validate"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debug(module, message string, details map[string]interface{}) {}
func (noopLogger) Info(module, message string, details map[string]interface{})  {}
func (noopLogger) Warn(module, message string, details map[string]interface{})  {}
func (noopLogger) Error(module, message string, details map[string]interface{}) {}
func (noopLogger) Sync() error                                                  { return nil }

// fakeOrchestrator replays a scripted event sequence and closes.
type fakeOrchestrator struct {
	events []stream.Event
	calls  int
}

func (f *fakeOrchestrator) Generate(ctx context.Context, query string, documentId *uuid.UUID, focus *dto.FocusContextDTO, history []llm.Message) <-chan stream.Event {
	f.calls++
	out := make(chan stream.Event, len(f.events)+1)
	for _, ev := range f.events {
		out <- ev
	}
	close(out)
	return out
}

type metadataDelta struct {
	tokens    int
	costUSD   float64
	cacheHits int
	ctxErr    error
}

type fakeSessionRepo struct {
	mu      sync.Mutex
	session *model.ChatSession
	deltas  []metadataDelta
	titles  []string
}

func (f *fakeSessionRepo) Create(ctx context.Context, s *model.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
	return nil
}

func (f *fakeSessionRepo) Update(ctx context.Context, s *model.ChatSession) error { return nil }

func (f *fakeSessionRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeSessionRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeSessionRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.ChatSession, error) {
	return nil, nil
}

func (f *fakeSessionRepo) ApplyMetadataDeltas(ctx context.Context, id uuid.UUID, tokens int, costUSD float64, cacheHits int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, metadataDelta{tokens: tokens, costUSD: costUSD, cacheHits: cacheHits, ctxErr: ctx.Err()})
	return nil
}

func (f *fakeSessionRepo) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeSessionRepo) appliedDeltas() []metadataDelta {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]metadataDelta, len(f.deltas))
	copy(out, f.deltas)
	return out
}

type createdMessage struct {
	message *model.ChatMessage
	ctxErr  error
}

type fakeMessageRepo struct {
	mu      sync.Mutex
	created []createdMessage
	history []*model.ChatMessage
}

func (f *fakeMessageRepo) Create(ctx context.Context, m *model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, createdMessage{message: m, ctxErr: ctx.Err()})
	return nil
}

func (f *fakeMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.created)), nil
}

func (f *fakeMessageRepo) DeleteByChatSessionId(ctx context.Context, chatSessionId uuid.UUID) error {
	return nil
}

func (f *fakeMessageRepo) byRole(role string) []createdMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []createdMessage
	for _, c := range f.created {
		if c.message.Role == role {
			out = append(out, c)
		}
	}
	return out
}

type fakeUnitOfWork struct {
	sessions *fakeSessionRepo
	messages *fakeMessageRepo
}

func (f *fakeUnitOfWork) Begin(ctx context.Context) error { return nil }
func (f *fakeUnitOfWork) Commit() error                   { return nil }
func (f *fakeUnitOfWork) Rollback() error                 { return nil }

func (f *fakeUnitOfWork) ChatSessionRepository() contract.ChatSessionRepository { return f.sessions }
func (f *fakeUnitOfWork) ChatMessageRepository() contract.ChatMessageRepository { return f.messages }
func (f *fakeUnitOfWork) DocumentRepository() contract.DocumentRepository       { return nil }
func (f *fakeUnitOfWork) DocumentChunkRepository() contract.DocumentChunkRepository {
	return nil
}
func (f *fakeUnitOfWork) DocumentSummaryRepository() contract.DocumentSummaryRepository {
	return nil
}

type fakeUowFactory struct {
	uow *fakeUnitOfWork
}

func (f *fakeUowFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork { return f.uow }

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(ctx context.Context, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) published() []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.Event, len(f.events))
	copy(out, f.events)
	return out
}

type chatServiceFixture struct {
	svc       IChatService
	rag       *fakeOrchestrator
	sessions  *fakeSessionRepo
	messages  *fakeMessageRepo
	publisher *fakePublisher
	userId    uuid.UUID
	sessionId uuid.UUID
}

func newChatServiceFixture() *chatServiceFixture {
	userId := uuid.New()
	sessionId := uuid.New()

	sessions := &fakeSessionRepo{session: &model.ChatSession{
		Id:     sessionId,
		UserId: userId,
		Title:  "New session",
	}}
	messages := &fakeMessageRepo{}
	rag := &fakeOrchestrator{}
	publisher := &fakePublisher{}

	svc := NewChatService(
		&fakeUowFactory{uow: &fakeUnitOfWork{sessions: sessions, messages: messages}},
		validate.NewInputValidator(6000, 10000, 2000, nil),
		ratelimit.NewRateLimiter(100, 5, time.Hour),
		rag,
		publisher,
		config.LimitConfig{
			QueriesPerHour:     100,
			ConcurrentStreams:  5,
			SessionTTL:         24 * time.Hour,
			SpendingCeilingUSD: 5.00,
		},
		noopLogger{},
	)

	return &chatServiceFixture{
		svc:       svc,
		rag:       rag,
		sessions:  sessions,
		messages:  messages,
		publisher: publisher,
		userId:    userId,
		sessionId: sessionId,
	}
}

// sendAndDrain runs one turn and consumes the caller channel until it
// closes; the channel only closes after the turn has been persisted.
func (f *chatServiceFixture) sendAndDrain(t *testing.T, ctx context.Context, message string) []stream.Event {
	t.Helper()
	out, err := f.svc.SendMessage(ctx, f.userId, f.sessionId, &dto.SendMessageRequest{Message: message})
	require.NoError(t, err)

	var received []stream.Event
	for ev := range out {
		received = append(received, ev)
	}
	return received
}

func TestSendMessageDoneTerminalPersistsAccounting(t *testing.T) {
	f := newChatServiceFixture()
	f.rag.events = []stream.Event{
		stream.Token("The uptime "),
		stream.Token("guarantee is 99.9%."),
		stream.Source(stream.SourceData{ChunkId: "c1", DocumentId: "d1", Similarity: 0.91}),
		stream.Done(stream.DoneData{PromptTokens: 12, CompletionTokens: 3, CachedTokens: 2, CostUSD: 0.05}),
	}

	received := f.sendAndDrain(t, context.Background(), "what is the uptime guarantee?")
	assert.Len(t, received, 4, "all events reach the caller")

	assistant := f.messages.byRole(constant.ChatMessageRoleAssistant)
	require.Len(t, assistant, 1, "exactly one assistant write per turn")
	msg := assistant[0].message
	assert.Equal(t, "The uptime guarantee is 99.9%.", msg.Content)
	assert.Equal(t, 12, msg.Metadata[constant.MetaPromptTokens])
	assert.Equal(t, 0.05, msg.Metadata[constant.MetaCostUSD])
	assert.NotContains(t, msg.Metadata, constant.MetaInterrupted)

	deltas := f.sessions.appliedDeltas()
	require.Len(t, deltas, 1)
	assert.Equal(t, 15, deltas[0].tokens, "prompt + completion tokens")
	assert.Equal(t, 0.05, deltas[0].costUSD)
	assert.Equal(t, 0, deltas[0].cacheHits)

	published := f.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeChatTurnCompleted, published[0].EventType())
}

func TestSendMessageCachedTurnCountsCacheHit(t *testing.T) {
	f := newChatServiceFixture()
	f.rag.events = []stream.Event{
		stream.Token("cached answer"),
		stream.Done(stream.DoneData{Cached: true}),
	}

	f.sendAndDrain(t, context.Background(), "same question again")

	deltas := f.sessions.appliedDeltas()
	require.Len(t, deltas, 1)
	assert.Equal(t, 1, deltas[0].cacheHits)
	assert.Equal(t, 0.0, deltas[0].costUSD)
}

func TestSendMessageErrorTerminalPersistsPartialAsInterrupted(t *testing.T) {
	f := newChatServiceFixture()
	f.rag.events = []stream.Event{
		stream.Token("The contract says "),
		stream.Error("The assistant failed to generate a response. Please try again.", "The contract says "),
	}

	f.sendAndDrain(t, context.Background(), "what does the contract say?")

	assistant := f.messages.byRole(constant.ChatMessageRoleAssistant)
	require.Len(t, assistant, 1, "exactly one assistant write per turn")
	msg := assistant[0].message
	assert.Equal(t, "The contract says ", msg.Content, "partial text is never discarded")
	assert.Equal(t, true, msg.Metadata[constant.MetaInterrupted])

	deltas := f.sessions.appliedDeltas()
	require.Len(t, deltas, 1, "accounting still applied once")
	assert.Equal(t, 0, deltas[0].tokens)
	assert.Empty(t, f.publisher.published(), "no turn-completed event for a failed turn")
}

func TestSendMessageStreamWithoutTerminalIsInterrupted(t *testing.T) {
	f := newChatServiceFixture()
	f.rag.events = []stream.Event{
		stream.Token("half an "),
		stream.Token("answer"),
	}

	f.sendAndDrain(t, context.Background(), "tell me everything")

	assistant := f.messages.byRole(constant.ChatMessageRoleAssistant)
	require.Len(t, assistant, 1)
	assert.Equal(t, "half an answer", assistant[0].message.Content)
	assert.Equal(t, true, assistant[0].message.Metadata[constant.MetaInterrupted])
}

func TestSendMessageCancelledCallerStillPersists(t *testing.T) {
	f := newChatServiceFixture()
	f.rag.events = []stream.Event{
		stream.Token("partial before disconnect"),
		stream.Error("The response took too long to generate. Please try again.", "partial before disconnect"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	out, err := f.svc.SendMessage(ctx, f.userId, f.sessionId, &dto.SendMessageRequest{Message: "slow question"})
	require.NoError(t, err)

	// Client disconnects immediately; the turn must still finish.
	cancel()
	for range out {
	}

	assistant := f.messages.byRole(constant.ChatMessageRoleAssistant)
	require.Len(t, assistant, 1, "exactly one assistant write despite disconnect")
	msg := assistant[0].message
	assert.Equal(t, "partial before disconnect", msg.Content)
	assert.Equal(t, true, msg.Metadata[constant.MetaInterrupted])
	assert.NoError(t, assistant[0].ctxErr, "persistence runs on a live background context")

	deltas := f.sessions.appliedDeltas()
	require.Len(t, deltas, 1)
	assert.NoError(t, deltas[0].ctxErr)
}

func TestSendMessageFirstTurnSetsSessionTitle(t *testing.T) {
	f := newChatServiceFixture()
	f.rag.events = []stream.Event{stream.Done(stream.DoneData{})}

	f.sendAndDrain(t, context.Background(), "summarize the termination clause")

	require.Len(t, f.sessions.titles, 1)
	assert.Equal(t, "summarize the termination clause", f.sessions.titles[0])
}

func TestSendMessageSpendingCeilingRefusesTurn(t *testing.T) {
	f := newChatServiceFixture()
	f.sessions.session.TotalCostUSD = 5.00

	_, err := f.svc.SendMessage(context.Background(), f.userId, f.sessionId, &dto.SendMessageRequest{Message: "one more"})
	require.ErrorIs(t, err, ragerr.ErrSpendingExceeded)
	assert.Equal(t, 0, f.rag.calls, "no generation once the ceiling is hit")

	published := f.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeSpendingExceeded, published[0].EventType())
}
