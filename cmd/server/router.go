package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/lexis-api/internal/api"
	apiMiddleware "github.com/phrazzld/lexis-api/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// requestTimeout bounds every request. Lesson completions are additionally
// bounded by scheduler.completion_timeout.
const requestTimeout = 30 * time.Second

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Metrics)
	r.Use(middleware.Timeout(requestTimeout))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	lessonHandler := api.NewLessonHandler(app.lessonService, app.dueSetService, app.logger)
	statsHandler := api.NewStatsHandler(app.dueSetService, app.logger)
	schedulerHandler := api.NewSchedulerHandler(app.schedulerConfigs, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/lessons/complete", lessonHandler.CompleteLesson)
		r.Get("/lessons/candidates", lessonHandler.GetCandidates)
		r.Get("/stats/due", statsHandler.GetDueStats)

		r.Post("/users/me", schedulerHandler.Provision)
		r.Get("/users/me/scheduler", schedulerHandler.GetConfig)
		r.Put("/users/me/scheduler", schedulerHandler.UpdateConfig)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
