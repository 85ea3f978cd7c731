package serverutils

import (
	"errors"
	"fmt"

	"docchat-be/pkg/rag/ragerr"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type ApiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func SuccessResponse(message string, data interface{}) ApiResponse {
	return ApiResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

var validate = validator.New()

func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return &ragerr.ValidationError{
				Field:  ve[0].Field(),
				Reason: fmt.Sprintf("failed on '%s' rule", ve[0].Tag()),
			}
		}
		return err
	}
	return nil
}

// ErrorHandlerMiddleware maps the error taxonomy onto HTTP statuses.
// Anything unrecognized becomes an opaque 500.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var (
			validationErr *ragerr.ValidationError
			injectionErr  *ragerr.InjectionSuspected
			rateLimitErr  *ragerr.RateLimitExceeded
			streamErr     *ragerr.StreamLimitExceeded
			fiberErr      *fiber.Error
		)

		switch {
		case errors.As(err, &validationErr):
			return ctx.Status(fiber.StatusBadRequest).JSON(ApiResponse{
				Message: validationErr.Error(),
			})
		case errors.As(err, &injectionErr):
			return ctx.Status(fiber.StatusBadRequest).JSON(ApiResponse{
				Message: injectionErr.Error(),
			})
		case errors.As(err, &rateLimitErr):
			ctx.Set("Retry-After", fmt.Sprintf("%d", int(rateLimitErr.RetryAfter.Seconds())+1))
			return ctx.Status(fiber.StatusTooManyRequests).JSON(ApiResponse{
				Message: rateLimitErr.Error(),
			})
		case errors.As(err, &streamErr):
			return ctx.Status(fiber.StatusTooManyRequests).JSON(ApiResponse{
				Message: streamErr.Error(),
			})
		case errors.Is(err, ragerr.ErrSessionNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(ApiResponse{
				Message: ragerr.ErrSessionNotFound.Error(),
			})
		case errors.Is(err, ragerr.ErrDocumentNotFound):
			return ctx.Status(fiber.StatusNotFound).JSON(ApiResponse{
				Message: ragerr.ErrDocumentNotFound.Error(),
			})
		case errors.Is(err, ragerr.ErrSpendingExceeded):
			return ctx.Status(fiber.StatusPaymentRequired).JSON(ApiResponse{
				Message: ragerr.ErrSpendingExceeded.Error(),
			})
		case errors.Is(err, ragerr.ErrCircuitOpen):
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(ApiResponse{
				Message: ragerr.Sanitize(err),
			})
		case errors.As(err, &fiberErr):
			return ctx.Status(fiberErr.Code).JSON(ApiResponse{
				Message: fiberErr.Message,
			})
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(ApiResponse{
				Message: "Internal server error",
			})
		}
	}
}
