package mockapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/pubflow/pubflow-go/internal/telemetry"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, handler *Handler, metrics *telemetry.Metrics, cfg *Config) {
	// Health and metrics endpoints (no auth required)
	app.Get("/health", handler.Health)
	app.Get(cfg.MetricsPath, adaptor.HTTPHandler(metrics.Handler()))

	auth := app.Group("/auth")
	auth.Post("/login", handler.Login)
	auth.Post("/logout", handler.Logout)
	auth.Post("/validation", handler.Validate)

	bridge := app.Group("/bridge")
	if cfg.RequireSession {
		bridge.Use(handler.RequireSession)
	}
	// search is registered before :id so it is not taken for a record id
	bridge.Get("/:resource/search", handler.Search)
	bridge.Get("/:resource", handler.List)
	bridge.Post("/:resource", handler.Create)
	bridge.Get("/:resource/:id", handler.Get)
	bridge.Put("/:resource/:id", handler.Update)
	bridge.Delete("/:resource/:id", handler.Delete)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "pubflow-mock",
			"version": "1.0.0",
			"status":  "running",
			"endpoints": fiber.Map{
				"auth": fiber.Map{
					"login":      "POST /auth/login",
					"logout":     "POST /auth/logout",
					"validation": "POST /auth/validation",
				},
				"bridge": fiber.Map{
					"list":   "GET /bridge/:resource",
					"search": "GET /bridge/:resource/search?q=",
					"get":    "GET /bridge/:resource/:id",
					"create": "POST /bridge/:resource",
					"update": "PUT /bridge/:resource/:id",
					"delete": "DELETE /bridge/:resource/:id",
				},
				"health":  "GET /health",
				"metrics": "GET " + cfg.MetricsPath,
			},
		})
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(Failure("Endpoint not found"))
	})
}
