package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name       string
		apiKey     string
		headers    map[string]string
		wantStatus int
		wantNext   bool
	}{
		{
			name:       "disabled when no key configured",
			apiKey:     "",
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "valid bearer token",
			apiKey:     "secret-key",
			headers:    map[string]string{"Authorization": "Bearer secret-key"},
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "bearer scheme is case insensitive",
			apiKey:     "secret-key",
			headers:    map[string]string{"Authorization": "bearer secret-key"},
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "valid X-API-Key header",
			apiKey:     "secret-key",
			headers:    map[string]string{"X-API-Key": "secret-key"},
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "missing token",
			apiKey:     "secret-key",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong token",
			apiKey:     "secret-key",
			headers:    map[string]string{"Authorization": "Bearer wrong"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme is ignored",
			apiKey:     "secret-key",
			headers:    map[string]string{"Authorization": "Basic secret-key"},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, called := okHandler()
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			Auth(tt.apiKey)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantNext, *called)
		})
	}
}

func TestWebhookSecret(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
		wantNext   bool
	}{
		{
			name:       "disabled when no secret configured",
			secret:     "",
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "matching secret",
			secret:     "hunter2",
			header:     "hunter2",
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "missing secret header",
			secret:     "hunter2",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong secret",
			secret:     "hunter2",
			header:     "hunter3",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, called := okHandler()
			req := httptest.NewRequest(http.MethodPost, "/walmart/webhook", nil)
			if tt.header != "" {
				req.Header.Set("X-Webhook-Secret", tt.header)
			}
			rec := httptest.NewRecorder()

			WebhookSecret(tt.secret)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantNext, *called)
		})
	}
}
