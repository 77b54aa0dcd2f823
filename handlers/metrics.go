package handlers

import (
	"journal-gamification/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupMetricsRoute exposes the engine registry. Routes registered earlier than the
// gateway middleware are served without a token, so call it first.
func SetupMetricsRoute(app *fiber.App) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(services.Registry, promhttp.HandlerOpts{})))
}
