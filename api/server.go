/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client address from proxy headers
  3. RequestLogger: One logrus entry per request (logger.go)
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for the frontend
  6. Authenticate:  Bearer token on every route except auth and health

ROUTE GROUPS:
  /api/auth/*        Registration and login (public)
  /api/health        Liveness (public)
  /api/me            Caller profile
  /api/managers/*    Manager management
  /api/resources/*   Team member management
  /api/projects/*    Projects
  /api/dashboard/*   Team overview
  /api/statistics    Company totals
  /api/admin/*       Recalculation

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes the router. Zero value is usable.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewRequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Get("/me", h.Me)

			r.Route("/managers", func(r chi.Router) {
				r.Post("/", h.CreateManager)
				r.Put("/{id}", h.UpdateManager)
				r.Delete("/{id}", h.DeleteManager)
				r.Get("/{id}/charge", h.GetManagerCharge)
			})

			r.Route("/resources", func(r chi.Router) {
				r.Post("/", h.CreateResource)
				r.Get("/{id}", h.GetResource)
				r.Put("/{id}", h.UpdateResource)
				r.Delete("/{id}", h.DeleteResource)
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", h.ListProjects)
				r.Post("/", h.CreateProject)
				r.Get("/{id}", h.GetProject)
				r.Put("/{id}", h.UpdateProject)
				r.Delete("/{id}", h.DeleteProject)
			})

			r.Get("/dashboard/resources", h.Dashboard)
			r.Get("/statistics", h.Statistics)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/recalculate", h.TriggerRecalculation)
				r.Get("/recalculation-runs", h.ListRecalculationRuns)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found", nil)
	})

	return r
}
