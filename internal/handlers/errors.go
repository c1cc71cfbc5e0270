package handlers

import (
	"errors"

	"pasar/internal/apperror"
	"pasar/internal/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperror.ErrInvalidState), errors.Is(err, apperror.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, apperror.ErrInsufficientResource):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, apperror.ErrValidation):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as {"message", "error", "details"}. Unclassified
// errors are logged and reported without their cause.
func respondError(c *fiber.Ctx, message string, err error) error {
	status := statusOf(err)
	body := fiber.Map{"message": message, "error": err.Error()}

	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Detail != nil {
		body["details"] = appErr.Detail
	}
	if status == fiber.StatusInternalServerError {
		logger.FromCtx(c.UserContext()).Error(message, zap.String("path", c.Path()), zap.Error(err))
		body["error"] = "internal server error"
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}
