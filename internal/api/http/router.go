package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-hub/internal/api/http/handlers"
	"github.com/spec-kit/support-hub/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", cfg.Auth.Signup)
	authGroup.Post("/login", cfg.Auth.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", cfg.Tickets.Create)
	tickets.Get("", cfg.Tickets.List)
	tickets.Get("/stats", cfg.Tickets.Stats)
	tickets.Get("/number/:number", cfg.Tickets.GetByNumber)
	tickets.Post("/exports/closed", auth.RequireAgent(), cfg.Tickets.ExportClosed)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/assign", auth.RequireAgent(), cfg.Tickets.Assign)
	tickets.Post("/:id/resolve", auth.RequireAgent(), cfg.Tickets.Resolve)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)
}
