package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platemill/platemill/pkg/contextkeys"
	"github.com/platemill/platemill/pkg/httputil"
)

// statusWriter wraps http.ResponseWriter to capture the status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// AccessLog logs every request with its outcome and puts a
// request-scoped logrus entry into the context for handlers.
func AccessLog(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			entry := logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"request_id": contextkeys.GetRequestID(r.Context()),
			})
			ctx := contextkeys.WithLogger(r.Context(), entry)

			next.ServeHTTP(sw, r.WithContext(ctx))

			entry.WithFields(logrus.Fields{
				"status":      sw.status,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
			}).Info("request completed")
		})
	}
}

// Recover converts handler panics into a 500 envelope.
func Recover(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithFields(logrus.Fields{
						"panic":      rec,
						"path":       r.URL.Path,
						"request_id": contextkeys.GetRequestID(r.Context()),
						"stack":      string(debug.Stack()),
					}).Error("handler panicked")
					httputil.WriteInternal(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger returns the request-scoped log entry, or a fallback
// entry on the standard logger when middleware did not run.
func RequestLogger(r *http.Request) *logrus.Entry {
	if entry, ok := r.Context().Value(contextkeys.LoggerKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
