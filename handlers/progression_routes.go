// handlers/progression_routes.go
package handlers

import (
	"context"
	"strconv"

	"journal-gamification/middleware"
	"journal-gamification/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ProgressionReader is the read side of the engine served over HTTP.
type ProgressionReader interface {
	GetPlayerProgress(ctx context.Context, userID string) (*services.PlayerProfile, error)
	GetBadgeCatalog(ctx context.Context, userID string) ([]services.BadgeStatus, error)
	GetLeaderboard(ctx context.Context, periodKey string, limit int, callerID string) (*services.Leaderboard, error)
	RerankPeriod(ctx context.Context, periodKey string) (int, error)
}

// SetupProgressionRoutes mounts the user and admin routes. The gateway forwards
// /api/v1/journal/s/user/progress to /user/progress.
func SetupProgressionRoutes(app *fiber.App, engine ProgressionReader, logger *zap.Logger) {
	log := logger.Named("http")
	secured := app.Group("/", middleware.UserContextMiddleware(logger))

	secured.Get("/user/progress", func(c *fiber.Ctx) error {
		profile, err := engine.GetPlayerProgress(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return errorResponse(c, log, "failed to get progress", err)
		}
		return c.JSON(profile)
	})

	secured.Get("/user/badges", func(c *fiber.Ctx) error {
		badges, err := engine.GetBadgeCatalog(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return errorResponse(c, log, "failed to get badges", err)
		}
		return c.JSON(badges)
	})

	secured.Get("/leaderboard/:period", func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", strconv.Itoa(services.DefaultLeaderboardLimit)))
		if err != nil || limit < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		board, err := engine.GetLeaderboard(c.UserContext(), c.Params("period"), limit, middleware.UserID(c))
		if err != nil {
			return errorResponse(c, log, "failed to get leaderboard", err)
		}
		return c.JSON(board)
	})

	admin := app.Group("/s/admin", middleware.UserContextMiddleware(logger), middleware.RequireRole(middleware.RoleAdmin))

	admin.Post("/periods/:period/rerank", func(c *fiber.Ctx) error {
		period := c.Params("period")
		rows, err := engine.RerankPeriod(c.UserContext(), period)
		if err != nil {
			return errorResponse(c, log, "rerank failed", err)
		}
		log.Info("period reranked by admin", zap.String("period", period), zap.String("by", middleware.UserID(c)))
		return c.JSON(fiber.Map{
			"message":    "period reranked",
			"period_key": period,
			"rows":       rows,
		})
	})
}

func errorResponse(c *fiber.Ctx, log *zap.Logger, msg string, err error) error {
	if services.IsValidation(err) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": msg,
			"cause": err.Error(),
		})
	}
	log.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}
