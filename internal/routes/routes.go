package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comandocentral/edge-svc/internal/handlers"
)

// SetupRoutes configures the dispatch service routes with dependencies.
func SetupRoutes(app *fiber.App, d *handlers.DispatchHandler, health *handlers.HealthHandler) {
	app.Get("/health", health.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/scheduler-tick", d.SchedulerTick)
	app.Post("/process-events", d.ProcessEvents)
	app.Post("/run-notifications", d.RunNotifications)
	app.Post("/replay-events", d.ReplayEvents)
	app.Get("/ticks", d.ListTicks)
}
