package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/uni-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/uni-helpdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Staff          *handlers.StaffHandler
	Uploads        *handlers.UploadsHandler
	Pipeline       *Pipeline
	AuthMiddleware *auth.SessionMiddleware
	// UploadsDir, when set, is served read-only under UploadsPrefix.
	UploadsDir    string
	UploadsPrefix string
}

// RegisterRoutes wires HTTP routes. Mutating routes pass origin, rate limit
// and credential checks in that order before reaching a handler.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	p := cfg.Pipeline
	sameOrigin := p.SameOrigin()
	session := cfg.AuthMiddleware.Handle
	admin := auth.RequireAdmin()

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")
	api.Get("/health", cfg.Health.Health)

	tickets := api.Group("/tickets")
	tickets.Post("/", sameOrigin, p.Limit("ticket:create"), cfg.Tickets.CreateTicket)
	tickets.Get("/:publicTicketId", cfg.Tickets.RequireViewToken, p.Limit("ticket:view", "publicTicketId"), cfg.Tickets.GetTicket)
	tickets.Post("/:publicTicketId/note", sameOrigin, p.Limit("ticket:note", "publicTicketId"), cfg.Tickets.AddNote)
	tickets.Post("/:publicTicketId/attachments", sameOrigin, p.Limit("ticket:attach", "publicTicketId"), cfg.Tickets.AddAttachments)

	api.Post("/upload", sameOrigin, p.Limit("upload"), cfg.Uploads.Upload)

	authGroup := api.Group("/auth")
	authGroup.Post("/login", sameOrigin, p.Limit("auth:login"), cfg.Staff.Login)
	authGroup.Post("/logout", sameOrigin, cfg.Staff.Logout)

	adminGroup := api.Group("/admin")
	adminGroup.Get("/me", session, admin, cfg.Staff.Me)
	adminGroup.Get("/metrics", session, admin, cfg.Health.Metrics)
	adminGroup.Get("/tickets", session, admin, cfg.StaffTickets.ListTickets)
	adminGroup.Get("/tickets/:id", session, admin, cfg.StaffTickets.GetTicket)
	adminGroup.Post("/tickets/:id/status", sameOrigin, p.Limit("admin:status"), session, admin, cfg.StaffTickets.ChangeStatus)
	adminGroup.Post("/tickets/:id/reply", sameOrigin, p.Limit("admin:reply"), session, admin, cfg.StaffTickets.Reply)
	adminGroup.Post("/tickets/:id/assign", sameOrigin, p.Limit("admin:assign"), session, admin, cfg.StaffTickets.Assign)

	if cfg.UploadsDir != "" && cfg.UploadsPrefix != "" {
		app.Static(cfg.UploadsPrefix, cfg.UploadsDir, fiber.Static{Browse: false})
	}
}
