package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"priority-agent-backend/internal/api/response"
	"priority-agent-backend/internal/auth"
)

// RetryAfterSeconds is sent with 503 responses.
const RetryAfterSeconds = 5

// Acceptor turns a status change to doing into an accepted suggestion when
// the task is the session's outstanding one.
type Acceptor interface {
	AcceptIfSuggested(ctx context.Context, session string, id int64) (Task, bool, error)
}

// WriteError maps store and validation errors onto the error envelope.
func WriteError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		response.WriteValidationError(w, verr.Fields)
	case errors.Is(err, ErrNotFound):
		response.WriteNotFound(w, "task not found")
	case errors.Is(err, ErrUnavailable):
		response.WriteUnavailable(w, RetryAfterSeconds)
	default:
		response.WriteInternalError(w, "internal error")
	}
}

// IDParam reads the {id} URL parameter.
func IDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func ListHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := store.List(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, all)
	}
}

func GetHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IDParam(r)
		if !ok {
			response.WriteBadRequest(w, "invalid task id")
			return
		}
		t, err := store.Get(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, t)
	}
}

func ByStatusHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, ok := ParseStatus(chi.URLParam(r, "status"))
		if !ok {
			response.WriteBadRequest(w, "status must be backlog, doing or done")
			return
		}
		all, err := store.List(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, FilterStatus(all, status))
	}
}

func CreateHandler(store Store, v *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.WriteBadRequest(w, "invalid json")
			return
		}

		draft, err := v.Draft(req)
		if err != nil {
			WriteError(w, err)
			return
		}

		t, err := store.Create(r.Context(), draft)
		if err != nil {
			WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusCreated, t)
	}
}

func UpdateHandler(store Store, v *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IDParam(r)
		if !ok {
			response.WriteBadRequest(w, "invalid task id")
			return
		}

		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.WriteBadRequest(w, "invalid json")
			return
		}

		patch, err := v.Patch(req)
		if err != nil {
			WriteError(w, err)
			return
		}

		t, err := store.Update(r.Context(), id, patch)
		if err != nil {
			WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, t)
	}
}

// SetStatusHandler serves PATCH /tasks/{id}/status?status=...
// Moving the session's outstanding suggestion to doing accepts it.
func SetStatusHandler(store Store, acceptor Acceptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IDParam(r)
		if !ok {
			response.WriteBadRequest(w, "invalid task id")
			return
		}
		status, ok := ParseStatus(r.URL.Query().Get("status"))
		if !ok {
			response.WriteValidationError(w, map[string]string{"status": "must be one of: backlog doing done"})
			return
		}

		if status == StatusDoing && acceptor != nil {
			t, accepted, err := acceptor.AcceptIfSuggested(r.Context(), auth.SessionFromContext(r.Context()), id)
			if err != nil {
				WriteError(w, err)
				return
			}
			if accepted {
				response.JSON(w, http.StatusOK, t)
				return
			}
		}

		t, err := store.SetStatus(r.Context(), id, status)
		if err != nil {
			WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, t)
	}
}

func DeleteHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IDParam(r)
		if !ok {
			response.WriteBadRequest(w, "invalid task id")
			return
		}
		if err := store.Delete(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		response.JSON(w, http.StatusOK, map[string]any{"message": "task deleted", "id": id})
	}
}
