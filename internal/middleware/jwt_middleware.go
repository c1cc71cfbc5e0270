package middleware

import (
	"strings"

	"pasar/internal/logger"
	"pasar/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	LocalUserID = "user_id"
	LocalRole   = "role"
)

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*services.Claims, error)
}

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(tokens TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}
		return authenticate(c, tokens, authHeader)
	}
}

// AuthOptional authenticates the caller when an Authorization header is sent
// and lets anonymous requests through.
func AuthOptional(tokens TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Next()
		}
		return authenticate(c, tokens, authHeader)
	}
}

func authenticate(c *fiber.Ctx, tokens TokenValidator, authHeader string) error {
	// Expected format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if !(len(parts) == 2 && parts[0] == "Bearer") {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Authorization header format must be 'Bearer <token>'",
		})
	}

	claims, err := tokens.ValidateToken(parts[1])
	if err != nil {
		logger.FromCtx(c.UserContext()).Info("jwt validation failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Invalid or expired token",
			"error":   err.Error(),
		})
	}

	c.Locals(LocalUserID, claims.UserID)
	c.Locals(LocalRole, claims.Role)
	return c.Next()
}

// UserID returns the authenticated caller, or "" for anonymous requests.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
