package dashboard

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"priority-agent-backend/internal/api/response"
	"priority-agent-backend/internal/auth"
	"priority-agent-backend/internal/tasks"
)

func StatsHandler(d *Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := d.Stats(r.Context())
		if err != nil {
			tasks.WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, stats)
	}
}

func TimelineHandler(d *Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := d.Timeline(r.Context())
		if err != nil {
			tasks.WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, days)
	}
}

func TasksByDateHandler(d *Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := d.TasksByDate(r.Context(), chi.URLParam(r, "date"))
		var perr *time.ParseError
		if errors.As(err, &perr) {
			response.WriteBadRequest(w, err.Error())
			return
		}
		if err != nil {
			tasks.WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, list)
	}
}

func HighStressModeHandler(d *Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := d.HighStressMode(r.Context(), auth.SessionFromContext(r.Context()))
		if err != nil {
			tasks.WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, mode)
	}
}
