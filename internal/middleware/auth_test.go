package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/volunteerd/internal/auth"
)

type stubVerifier map[string]auth.AuthContext

func (s stubVerifier) Verify(token string) (auth.AuthContext, error) {
	ac, ok := s[token]
	if !ok {
		return auth.AuthContext{}, errors.New("unknown token")
	}
	return ac, nil
}

var verifier = stubVerifier{
	"staff-token":     {UserID: 1, Role: auth.RoleStaff},
	"volunteer-token": {UserID: 2, Role: auth.RoleVolunteer},
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer volunteer-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got auth.AuthContext
			handler := RequireAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = auth.FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, int64(2), got.UserID)
				assert.Equal(t, auth.RoleVolunteer, got.Role)
			} else {
				assert.Contains(t, rec.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
}

func TestTokenFromQuery(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		status int
		userID int64
	}{
		{"no token", "/ws", "", http.StatusUnauthorized, 0},
		{"query token", "/ws?access_token=volunteer-token", "", http.StatusOK, 2},
		{"bad query token", "/ws?access_token=nope", "", http.StatusUnauthorized, 0},
		{"header wins", "/ws?access_token=volunteer-token", "Bearer staff-token", http.StatusOK, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got auth.AuthContext
			handler := TokenFromQuery(RequireAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = auth.FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})))

			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.userID, got.UserID)
		})
	}
}

func TestRequireStaff(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAuth(verifier)(RequireStaff(ok))

	for token, want := range map[string]int{
		"staff-token":     http.StatusOK,
		"volunteer-token": http.StatusForbidden,
	} {
		req := httptest.NewRequest("DELETE", "/api/opportunities/1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, token)
	}
}

func TestRequestLoggerRecordsCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	inner := RequireAuth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler := RequestLogger(logger)(inner)

	req := httptest.NewRequest("POST", "/api/opportunities", nil)
	req.Header.Set("Authorization", "Bearer staff-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	assert.Contains(t, line, "status=201")
	assert.Contains(t, line, "path=/api/opportunities")
	assert.Contains(t, line, "user_id=1")
	assert.Contains(t, line, "role=staff")
}

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil).WithContext(context.Background()))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "panic in handler")
}
