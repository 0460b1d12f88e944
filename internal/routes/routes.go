package routes

import (
	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/handlers"
	"github.com/BradenHooton/cadence/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes.
// The security guard and session middleware are installed on the router by the caller.
func RegisterRoutes(
	router chi.Router,
	env string,
	healthHandler *handlers.HealthHandler,
	taskHandler *handlers.TaskHandler,
	securityHandler *handlers.SecurityHandler,
) {
	router.Get("/health", healthHandler.Health)

	// Session required
	router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession)

			r.Get("/tasks", taskHandler.ListTasks)
			r.Post("/tasks", taskHandler.CreateTask)
			r.Get("/tasks/{id}", taskHandler.GetTask)
			r.Put("/tasks/{id}", taskHandler.UpdateTask)
			r.Delete("/tasks/{id}", taskHandler.DeleteTask)

			r.Get("/calendar", taskHandler.GetCalendar)
			r.Post("/migrate", taskHandler.ImportTasks)

			// Operator view. Any signed-in user can reach it; there is no role check yet.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitByIP(middleware.DefaultAdminRateLimit()))
				r.Get("/admin/security", securityHandler.GetSecurityOverview)
				r.Get("/admin/security/events", securityHandler.GetEventHistory)
				r.Delete("/admin/security", securityHandler.UnblockIP)
			})
		})

		if env == "development" {
			r.Post("/dev/reset-rate-limits", securityHandler.ResetRateLimits)
		}
	})
}
