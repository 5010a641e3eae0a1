package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medicortex/medicortex/internal/api/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	t.Setenv("MEDICORTEX_API_KEYS", "")

	auth := middleware.NewAPIKeyAuth()
	if auth.Enabled() {
		t.Error("auth should be disabled when MEDICORTEX_API_KEYS is not set")
	}

	handler := auth.Middleware(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("disabled auth: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	t.Setenv("MEDICORTEX_API_KEYS", "test-key-1, test-key-2")

	auth := middleware.NewAPIKeyAuth()
	if !auth.Enabled() {
		t.Fatal("auth should be enabled")
	}
	handler := auth.Middleware(okHandler())

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer test-key-1") }},
		{"x-api-key header", func(r *http.Request) { r.Header.Set("X-API-Key", "test-key-2") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
		})
	}
}

func TestAPIKeyAuth_QueryParamForSSE(t *testing.T) {
	t.Setenv("MEDICORTEX_API_KEYS", "stream-key")

	auth := middleware.NewAPIKeyAuth()
	handler := auth.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/chat/stream?api_key=stream-key", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("query param key: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAPIKeyAuth_InvalidKey(t *testing.T) {
	t.Setenv("MEDICORTEX_API_KEYS", "valid-key")

	auth := middleware.NewAPIKeyAuth()
	handler := auth.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("invalid key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAPIKeyAuth_MissingKey(t *testing.T) {
	t.Setenv("MEDICORTEX_API_KEYS", "valid-key")

	auth := middleware.NewAPIKeyAuth()
	handler := auth.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAPIKeyAuth_PublicPaths(t *testing.T) {
	t.Setenv("MEDICORTEX_API_KEYS", "valid-key")

	auth := middleware.NewAPIKeyAuth()
	handler := auth.Middleware(okHandler())

	publicPaths := []string{"/health", "/version", "/.well-known/agent-cards", "/.well-known/agent-cards/pubmed"}
	for _, path := range publicPaths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("public path %q: status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}
