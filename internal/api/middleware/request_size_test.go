package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestSize(t *testing.T) {
	tests := []struct {
		name           string
		maxBytes       int64
		bodySize       int
		expectStatus   int
		expectBodyRead bool
	}{
		{
			name:           "small request accepted",
			maxBytes:       1024,
			bodySize:       512,
			expectStatus:   http.StatusOK,
			expectBodyRead: true,
		},
		{
			name:           "exact limit accepted",
			maxBytes:       1024,
			bodySize:       1024,
			expectStatus:   http.StatusOK,
			expectBodyRead: true,
		},
		{
			name:           "oversized request rejected",
			maxBytes:       1024,
			bodySize:       2048,
			expectStatus:   http.StatusRequestEntityTooLarge,
			expectBodyRead: false,
		},
		{
			name:           "default limit",
			maxBytes:       DefaultMaxBodySize,
			bodySize:       int(DefaultMaxBodySize) + 1,
			expectStatus:   http.StatusRequestEntityTooLarge,
			expectBodyRead: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bodyRead := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					var maxErr *http.MaxBytesError
					assert.True(t, errors.As(err, &maxErr))
					w.WriteHeader(http.StatusRequestEntityTooLarge)
					return
				}
				bodyRead = true
				assert.Len(t, body, tt.bodySize, "body size should match")
				w.WriteHeader(http.StatusOK)
			})

			body := bytes.Repeat([]byte("x"), tt.bodySize)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/curves", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			RequestSize(tt.maxBytes)(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectStatus, rec.Code, "status code should match")
			assert.Equal(t, tt.expectBodyRead, bodyRead, "body read status should match")
		})
	}
}
