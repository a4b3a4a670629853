package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platemill/platemill/pkg/contextkeys"
)

// RequestID assigns each request a UUID, honoring an inbound
// X-Request-ID header so IDs survive proxy hops.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
