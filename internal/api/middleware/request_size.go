package middleware

import (
	"net/http"
)

// DefaultMaxBodySize bounds API request bodies. A batch of star names is
// small; 64KB leaves room for a few thousand names.
const DefaultMaxBodySize int64 = 64 << 10

// RequestSize limits the size of incoming request bodies.
//
// It wraps the request body with http.MaxBytesReader; handlers see an
// *http.MaxBytesError when they read past maxBytes.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
