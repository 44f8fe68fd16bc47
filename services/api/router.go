package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	limit := a.config.RateLimitPerMin
	if limit <= 0 {
		limit = 120
	}
	r.Use(httprate.Limit(limit, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReadyz)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(a.requireAuthFeature)
			r.Post("/register", a.handleRegister)
			r.Post("/login", a.handleLogin)
			r.Post("/refresh", a.handleRefresh)
			r.Post("/logout", a.handleLogout)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Post("/sessions", a.handleCreateSession)
			r.Get("/sessions", a.handleListSessions)
			r.Get("/sessions/{id}", a.handleGetSession)

			r.Post("/batch", a.handleBatchSave)

			r.Post("/flashcards", a.handleCreateFlashcard)
			r.Get("/flashcards", a.handleListFlashcards)
			r.Get("/flashcards/{id}", a.handleGetFlashcard)
			r.Put("/flashcards/{id}", a.handleUpdateFlashcard)
			r.Delete("/flashcards/{id}", a.handleDeleteFlashcard)
			r.Post("/flashcards/export", a.handleExportFlashcards)
		})
	})

	return r
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.store.DB != nil {
		ctx, cancel := withTimeout(r.Context())
		defer cancel()
		if err := a.store.DB.Ping(ctx); err != nil {
			respondError(w, &apiError{
				Status:  http.StatusServiceUnavailable,
				Code:    codeDependencyMissing,
				Message: "database unreachable",
			})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
