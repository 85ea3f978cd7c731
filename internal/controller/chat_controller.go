package controller

import (
	"bufio"
	"encoding/json"
	"fmt"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/internal/service"
	"docchat-be/pkg/rag/stream"
	"docchat-be/pkg/rag/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	GetAllSessions(ctx *fiber.Ctx) error
	GetChatHistory(ctx *fiber.Ctx) error
	GetSessionStats(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	RefreshDocument(ctx *fiber.Ctx) error
	CacheStats(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService     service.IChatService
	documentService service.IDocumentService
	validator       *validate.InputValidator
}

func NewChatController(chatService service.IChatService, documentService service.IDocumentService, validator *validate.InputValidator) IChatController {
	return &chatController{
		chatService:     chatService,
		documentService: documentService,
		validator:       validator,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(serverutils.SuccessResponse("ok", nil))
	})
	h.Use(serverutils.JwtMiddleware)
	h.Post("/sessions", c.CreateSession)
	h.Get("/sessions", c.GetAllSessions)
	h.Get("/sessions/:id/messages", c.GetChatHistory)
	h.Get("/sessions/:id/stats", c.GetSessionStats)
	h.Delete("/sessions/:id", c.DeleteSession)
	h.Post("/sessions/:id/messages", c.SendMessage)
	h.Post("/documents/:id/refresh", c.RefreshDocument)
	h.Get("/cache/stats", c.CacheStats)
}

func (c *chatController) userId(ctx *fiber.Ctx) uuid.UUID {
	userIdStr, _ := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)
	return userId
}

func (c *chatController) CreateSession(ctx *fiber.Ctx) error {
	userId := c.userId(ctx)

	var req dto.CreateSessionRequest
	if err := ctx.BodyParser(&req); err != nil && err != fiber.ErrUnprocessableEntity {
		return &fiber.Error{Code: fiber.StatusBadRequest, Message: "Malformed request body"}
	}

	res, err := c.chatService.CreateSession(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success create session", res))
}

func (c *chatController) GetAllSessions(ctx *fiber.Ctx) error {
	userId := c.userId(ctx)

	res, err := c.chatService.GetAllSessions(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list sessions", res))
}

func (c *chatController) GetChatHistory(ctx *fiber.Ctx) error {
	userId := c.userId(ctx)

	sessionId, err := c.validator.ValidateSessionId(ctx.Params("id"))
	if err != nil {
		return err
	}

	res, err := c.chatService.GetChatHistory(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get chat history", res))
}

func (c *chatController) GetSessionStats(ctx *fiber.Ctx) error {
	userId := c.userId(ctx)

	sessionId, err := c.validator.ValidateSessionId(ctx.Params("id"))
	if err != nil {
		return err
	}

	res, err := c.chatService.GetSessionStats(ctx.Context(), userId, sessionId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get session stats", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	userId := c.userId(ctx)

	sessionId, err := c.validator.ValidateSessionId(ctx.Params("id"))
	if err != nil {
		return err
	}

	if err := c.chatService.DeleteSession(ctx.Context(), userId, sessionId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success delete session", nil))
}

// SendMessage streams the assistant's answer over SSE. Pre-flight
// failures (validation, limits, spend) surface as regular JSON errors
// before any SSE bytes are written; once streaming starts every failure
// arrives as an "error" event instead.
func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	userId := c.userId(ctx)

	sessionId, err := c.validator.ValidateSessionId(ctx.Params("id"))
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return &fiber.Error{Code: fiber.StatusBadRequest, Message: "Malformed request body"}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// ctx.Context() is the fasthttp request context; it is cancelled
	// when the client disconnects, which propagates into the stream.
	eventsCh, err := c.chatService.SendMessage(ctx.Context(), userId, sessionId, &req)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for ev := range eventsCh {
			if err := writeSSE(w, ev); err != nil {
				// Client is gone; drain the channel so the turn finishes.
				for range eventsCh {
				}
				return
			}
			if err := w.Flush(); err != nil {
				for range eventsCh {
				}
				return
			}
		}
	}))

	return nil
}

func (c *chatController) RefreshDocument(ctx *fiber.Ctx) error {
	documentId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return &fiber.Error{Code: fiber.StatusBadRequest, Message: "Invalid document id"}
	}

	res, err := c.documentService.RefreshDocument(ctx.Context(), documentId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Document refresh queued", res))
}

func (c *chatController) CacheStats(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success get cache stats", c.documentService.CacheStats()))
}

// writeSSE frames one event as "event: <type>\ndata: <json>\n\n".
func writeSSE(w *bufio.Writer, ev stream.Event) error {
	payload, err := json.Marshal(ev.Payload())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}
