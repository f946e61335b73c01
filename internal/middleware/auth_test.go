package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/appkit/internal/model"
)

type mockTokenParser struct {
	parseAccessFn func(raw string) (string, error)
}

func (m *mockTokenParser) ParseAccess(raw string) (string, error) {
	if m.parseAccessFn != nil {
		return m.parseAccessFn(raw)
	}
	return "", errors.New("invalid token")
}

func acceptToken(valid, userID string) *mockTokenParser {
	return &mockTokenParser{parseAccessFn: func(raw string) (string, error) {
		if raw == valid {
			return userID, nil
		}
		return "", errors.New("invalid token")
	}}
}

func TestBearerAuthMiddleware_ValidToken_InjectsUserID(t *testing.T) {
	mw := NewBearerAuthMiddleware(acceptToken("good-token", "user-1"))

	var captured string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	for _, header := range []string{"Bearer good-token", "bearer good-token"} {
		captured = ""
		req := httptest.NewRequest(http.MethodPost, "/resource-a", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%q: status = %d, want %d", header, w.Code, http.StatusOK)
		}
		if captured != "user-1" {
			t.Errorf("%q: userID = %q, want %q", header, captured, "user-1")
		}
	}
}

func TestBearerAuthMiddleware_RejectsMissingOrInvalidToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"invalid token", "Bearer forged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewBearerAuthMiddleware(acceptToken("good-token", "user-1"))
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodDelete, "/resource-a/r1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != model.ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestUserIDFromContext_Missing_ReturnsError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := UserIDFromContext(req.Context()); err == nil {
		t.Error("expected error when user ID is not in context")
	}
}

// TestLoggingMiddleware_WithBearerAuth_LogsUserID は内側の認証ミドルウェアが判明したユーザーIDを
// 外側のロギングミドルウェアが出力することを検証する。
func TestLoggingMiddleware_WithBearerAuth_LogsUserID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	inner := NewBearerAuthMiddleware(acceptToken("good-token", "user-42"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler := NewLoggingMiddleware(logger)(inner)

	req := httptest.NewRequest(http.MethodPost, "/resource-a", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	if entry["user_id"] != "user-42" {
		t.Errorf("user_id = %v, want %q", entry["user_id"], "user-42")
	}
	if status := int(entry["status"].(float64)); status != http.StatusCreated {
		t.Errorf("status = %d, want %d", status, http.StatusCreated)
	}
}
