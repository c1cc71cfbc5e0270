package middleware

import (
	"pasar/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// RequestContext copies the request id set by the requestid middleware into
// the user context so service logs carry it.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
		c.SetUserContext(logger.WithRequestID(c.UserContext(), reqID))
		return c.Next()
	}
}
