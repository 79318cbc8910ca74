// Package api assembles the HTTP surface.
package api

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"priority-agent-backend/internal/agent"
	"priority-agent-backend/internal/auth"
	"priority-agent-backend/internal/dashboard"
	"priority-agent-backend/internal/feedback"
	"priority-agent-backend/internal/logging"
	"priority-agent-backend/internal/tasks"
)

type Deps struct {
	Store     tasks.Store
	Validator *tasks.Validator
	Advisor   *agent.Advisor
	Dashboard *dashboard.Dashboard
	Auth      auth.Middleware
	Logger    *log.Logger
	Gatherer  prometheus.Gatherer
	Origins   []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Requests(d.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK"))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(d.Auth.Handler)
		r.Use(feedback.Middleware)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", tasks.ListHandler(d.Store))
			r.Post("/", tasks.CreateHandler(d.Store, d.Validator))
			r.Get("/by-status/{status}", tasks.ByStatusHandler(d.Store))
			r.Get("/{id}", tasks.GetHandler(d.Store))
			r.Patch("/{id}", tasks.UpdateHandler(d.Store, d.Validator))
			r.Patch("/{id}/status", tasks.SetStatusHandler(d.Store, d.Advisor))
			r.Delete("/{id}", tasks.DeleteHandler(d.Store))
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/stats", dashboard.StatsHandler(d.Dashboard))
			r.Get("/timeline", dashboard.TimelineHandler(d.Dashboard))
			r.Get("/tasks-by-date/{date}", dashboard.TasksByDateHandler(d.Dashboard))
			r.Get("/high-stress-mode", dashboard.HighStressModeHandler(d.Dashboard))
		})

		r.Route("/agent", func(r chi.Router) {
			r.Get("/next-action", agent.NextActionHandler(d.Advisor))
			r.Post("/priorizar", agent.RankHandler(d.Advisor))
			r.Post("/accept/{id}", agent.AcceptHandler(d.Advisor))
			r.Post("/ignore/{id}", agent.IgnoreHandler(d.Advisor))
			r.Get("/weights", agent.GetWeightsHandler(d.Advisor))
			r.Post("/weights", agent.SetWeightsHandler(d.Advisor))
			r.Delete("/weights", agent.ResetWeightsHandler(d.Advisor))
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   d.Origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Session-Id", "X-Platform", "X-App-Version", "Idempotency-Key", "X-Source-Event-Key"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
