package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"priority-agent-backend/internal/api/response"
)

type ctxKey string

const sessionKey ctxKey = "session_id"

// DefaultSession scopes anonymous single-user setups.
const DefaultSession = "default"

type Middleware struct {
	secret   []byte
	required bool
}

func New(secret []byte, required bool) Middleware {
	return Middleware{secret: secret, required: required}
}

// Handler resolves the session for preference scoping:
// bearer token -> "user:<id>", else X-Session-Id, else DefaultSession.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := ""

		h := r.Header.Get("Authorization")
		switch {
		case strings.HasPrefix(h, "Bearer "):
			userID, err := ParseToken(m.secret, strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, response.ErrorCodeUnauthorized, "invalid token")
				return
			}
			session = "user:" + strconv.Itoa(userID)
		case m.required:
			response.WriteError(w, http.StatusUnauthorized, response.ErrorCodeUnauthorized, "missing token")
			return
		default:
			session = strings.TrimSpace(r.Header.Get("X-Session-Id"))
		}

		if session == "" {
			session = DefaultSession
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext never fails; requests that skipped the middleware get DefaultSession.
func SessionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey).(string); ok && v != "" {
		return v
	}
	return DefaultSession
}
