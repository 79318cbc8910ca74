package agent

import (
	"encoding/json"
	"net/http"
	"time"

	"priority-agent-backend/internal/api/response"
	"priority-agent-backend/internal/auth"
	"priority-agent-backend/internal/scoring"
	"priority-agent-backend/internal/tasks"
)

// NextActionHandler answers 204 when nothing is eligible.
func NextActionHandler(a *Advisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok, err := a.NextAction(r.Context(), auth.SessionFromContext(r.Context()))
		if err != nil {
			tasks.WriteError(w, err)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		response.JSON(w, http.StatusOK, rec)
	}
}

func RankHandler(a *Advisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ranked, err := a.Rank(r.Context(), auth.SessionFromContext(r.Context()))
		if err != nil {
			tasks.WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, ranked)
	}
}

func AcceptHandler(a *Advisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := tasks.IDParam(r)
		if !ok {
			response.WriteBadRequest(w, "invalid task id")
			return
		}
		t, err := a.Accept(r.Context(), auth.SessionFromContext(r.Context()), id)
		if err != nil {
			tasks.WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, t)
	}
}

type ignoreResponse struct {
	Message       string    `json:"message"`
	TaskID        int64     `json:"task_id"`
	IgnoredCount  int       `json:"ignored_count"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

func IgnoreHandler(a *Advisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := tasks.IDParam(r)
		if !ok {
			response.WriteBadRequest(w, "invalid task id")
			return
		}
		res, err := a.Ignore(r.Context(), auth.SessionFromContext(r.Context()), id)
		if err != nil {
			tasks.WriteError(w, err)
			return
		}

		msg := "task ignored"
		if !res.Recorded {
			msg = "cool-down refreshed"
		}
		response.JSON(w, http.StatusOK, ignoreResponse{
			Message:       msg,
			TaskID:        id,
			IgnoredCount:  res.Task.IgnoredCount,
			CooldownUntil: res.CooldownUntil,
		})
	}
}

func GetWeightsHandler(a *Advisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		weights, err := a.learner.Weights(r.Context(), auth.SessionFromContext(r.Context()))
		if err != nil {
			tasks.WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, weights)
	}
}

// SetWeightsHandler replaces the session's weights; values are clipped into bounds.
func SetWeightsHandler(a *Advisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body scoring.Weights
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.WriteBadRequest(w, "invalid json")
			return
		}
		weights, err := a.learner.Set(r.Context(), auth.SessionFromContext(r.Context()), body)
		if err != nil {
			tasks.WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, weights)
	}
}

func ResetWeightsHandler(a *Advisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		weights, err := a.learner.Reset(r.Context(), auth.SessionFromContext(r.Context()))
		if err != nil {
			tasks.WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, weights)
	}
}
