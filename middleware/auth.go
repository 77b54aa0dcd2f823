// middleware/auth.go
package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"

	RoleAdmin = "admin"
)

// UserContextMiddleware extracts the user identity and roles set by the gateway.
// Requests without X-User-ID are rejected.
func UserContextMiddleware(logger *zap.Logger) fiber.Handler {
	log := logger.Named("user_ctx")
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Warn("X-User-ID missing", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through the gateway",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserRoles, roles)
		return c.Next()
	}
}

// RequireRole rejects requests whose gateway roles do not include role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals(LocalUserRoles).([]string)
		if !slices.Contains(roles, role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "insufficient role",
			})
		}
		return c.Next()
	}
}

// UserID returns the caller set by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
