package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priority-agent-backend/internal/api/response"
)

var testSecret = []byte("test-secret")

func sessionEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(SessionFromContext(r.Context())))
	})
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(testSecret, 42, time.Hour)
	require.NoError(t, err)

	uid, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, 42, uid)

	_, err = ParseToken([]byte("other"), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddlewareResolvesSession(t *testing.T) {
	token, err := GenerateToken(testSecret, 7, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer " + token}, "user:7"},
		{"header", map[string]string{"X-Session-Id": "tab-1"}, "tab-1"},
		{"anonymous", nil, DefaultSession},
	}

	h := New(testSecret, false).Handler(sessionEcho())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.want, rec.Body.String())
		})
	}
}

func TestMiddlewareRejectsBadToken(t *testing.T) {
	h := New(testSecret, false).Handler(sessionEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assertUnauthorizedBody(t, rec, "invalid token")
}

func assertUnauthorizedBody(t *testing.T, rec *httptest.ResponseRecorder, message string) {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body response.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, response.ErrorCodeUnauthorized, body.Error.Code)
	assert.Equal(t, message, body.Error.Message)
}

func TestMiddlewareRequiredToken(t *testing.T) {
	h := New(testSecret, true).Handler(sessionEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Session-Id", "tab-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assertUnauthorizedBody(t, rec, "missing token")
}

func TestExpiredTokenIsRejected(t *testing.T) {
	token, err := GenerateToken(testSecret, 3, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
