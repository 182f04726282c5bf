package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maplebug/helpdesk/internal/api/http/handlers"
	"github.com/maplebug/helpdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Users          *handlers.UsersHandler
	Chat           *handlers.ChatHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/api/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Post("/", cfg.Tickets.Create)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Patch("/:id/views", cfg.Tickets.IncrementViews)
	tickets.Post("/:id/replies", cfg.Tickets.AddReply)
	tickets.Delete("/:id/replies/:replyId", cfg.Tickets.DeleteReply)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Delete("/:id", cfg.Tickets.Delete)

	chat := app.Group("/chat")
	chat.Get("/messages", cfg.Chat.ListMessages)
	chat.Post("/messages", cfg.Chat.PostMessage)
}
