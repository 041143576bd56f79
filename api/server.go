/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request logging (level by status)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Headers:    Baseline security headers
  5. CORS:       Cross-origin requests for the operator frontend

ROUTE GROUPS:
  /healthz                   Liveness
  /api/login                 Exchange the access password for a token
  /api/samples/*             Sample source files (public)
  /api/tables/*              Upload, inspect and reset session tables
  /api/settlement/*          Results, pivot, export and email
  /api/logout                Drop the session

AUTHENTICATION:
  Everything except login, health and sample downloads goes through
  requireSession, which resolves the bearer token to a live Session.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Logging, headers and session resolution
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		// Auth is a bearer header, never a cookie.
		AllowCredentials: false,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)

		// Sample routes
		r.Get("/samples", h.ListSamples)
		r.Get("/samples/{name}", h.GetSample)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Post("/logout", h.Logout)
			r.Post("/samples/load", h.LoadSamples)

			// Table routes
			r.Route("/tables", func(r chi.Router) {
				r.Get("/", h.GetTables)
				r.Post("/reset", h.ResetTables)
				r.Post("/{table}", h.UploadTable)
			})

			// Settlement routes
			r.Route("/settlement", func(r chi.Router) {
				r.Get("/", h.GetSettlement)
				r.Get("/options", h.GetOptions)
				r.Get("/pivot", h.GetPivot)
				r.Get("/export", h.Export)
				r.Post("/email", h.Email)
			})
		})
	})

	return r
}
