package feedback

import (
	"context"
	"net/http"
	"strings"
)

// Envelope is what we store with every event.
type Envelope struct {
	Platform   string `json:"platform"`
	AppVersion string `json:"app_version"`
}

// FromRequest extracts event envelope fields from request.
// Backend-trustable fields only.
func FromRequest(r *http.Request) Envelope {
	platform := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Platform")))
	switch platform {
	case "ios", "android", "web":
	default:
		platform = "unknown"
	}

	return Envelope{
		Platform:   platform,
		AppVersion: strings.TrimSpace(r.Header.Get("X-App-Version")),
	}
}

// SourceEventKeyFromRequest returns the client idempotency key, if any.
// A repeated key means the event was already recorded.
func SourceEventKeyFromRequest(r *http.Request) string {
	k := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("X-Source-Event-Key"))
}

// Meta is the request-scoped part of an event.
type Meta struct {
	Envelope  Envelope
	SourceKey string
}

type ctxKey struct{}

func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

func MetaFromContext(ctx context.Context) Meta {
	if m, ok := ctx.Value(ctxKey{}).(Meta); ok {
		return m
	}
	return Meta{Envelope: Envelope{Platform: "unknown"}}
}

// Middleware stores the request's Meta in its context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := Meta{Envelope: FromRequest(r), SourceKey: SourceEventKeyFromRequest(r)}
		next.ServeHTTP(w, r.WithContext(WithMeta(r.Context(), m)))
	})
}
