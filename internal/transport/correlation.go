package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/kursadbilgin/notification-hub/internal/observability"
)

const CorrelationHeader = "X-Correlation-Id"

// CorrelationMiddleware adopts the caller's correlation id or mints one, puts
// it on the request context for downstream logging and the outbound envelope,
// and echoes it in the response.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), id))
		c.Set(CorrelationHeader, id)
		return c.Next()
	}
}
