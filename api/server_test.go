package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ormelin/croupier/internal/log"
)

func TestServerRoutes(t *testing.T) {
	s := NewServer(&mockGenerator{}, newMockConversations(), nil, log.NewNop())
	handler := s.Handler()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/personas", http.StatusOK},
		{http.MethodGet, "/api/conversations/1/history", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
