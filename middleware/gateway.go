// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GatewayAuthMiddleware validates the Bearer token the gateway attaches to every request.
// An empty expected token rejects everything.
func GatewayAuthMiddleware(expectedToken string, logger *zap.Logger) fiber.Handler {
	log := logger.Named("gateway_auth")
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Debug("missing authorization header", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// The gateway may send the raw token without the Bearer prefix.
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Warn("invalid gateway token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}
		return c.Next()
	}
}
