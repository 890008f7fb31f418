package middleware

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/logger"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestLog must run after chi's RequestID middleware. It echoes the id in
// X-Request-ID, stores it for logger.FromContext and emits one log line per
// request.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimw.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set("X-Request-ID", requestID)
		}
		ctx := logger.WithRequestID(r.Context(), requestID)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.FromContext(ctx).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"latency", time.Since(start),
			"response_bytes", ww.BytesWritten(),
		)
	})
}
