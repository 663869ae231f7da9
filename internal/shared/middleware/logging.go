package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailledger/internal/shared/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) Status() int {
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Logging assigns each request an id, puts a request-scoped logger in the
// context and logs one line per request once the handler returns.
func Logging(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			reqLog := log.With().Str("request_id", requestID).Logger()
			ctx := logger.WithContext(r.Context(), reqLog)

			wrapped := wrapResponseWriter(w)
			defer func() {
				if p := recover(); p != nil {
					reqLog.Error().Interface("panic", p).Str("path", r.URL.Path).Msg("handler panicked")
					if !wrapped.wroteHeader {
						http.Error(wrapped, "Internal server error", http.StatusInternalServerError)
					}
				}

				status := wrapped.status
				if status == 0 {
					status = http.StatusOK
				}

				event := reqLog.Info()
				if status >= http.StatusInternalServerError {
					event = reqLog.Error()
				} else if status >= http.StatusBadRequest {
					event = reqLog.Warn()
				}
				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Dur("duration", time.Since(start)).
					Msg("http_request")
			}()

			next.ServeHTTP(wrapped, r.WithContext(ctx))
		})
	}
}
