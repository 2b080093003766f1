package httpapi

import (
	"net/http"
	"time"

	"frontdesk/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// LoggingMiddleware attaches a request-scoped logger and records one line and
// the request metrics per request.
func (h *Handler) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())
		log := logger.L().With(logger.RequestID(requestID))
		r = r.WithContext(logger.ToContext(r.Context(), log))

		writer := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		h.metrics.inflight.Inc()
		defer h.metrics.inflight.Dec()
		next.ServeHTTP(writer, r)

		status := writer.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		h.metrics.observeRequest(r.Method, routePattern(r), status, duration)

		fields := []zap.Field{
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(status),
			logger.Duration(duration),
			logger.ClientIP(clientIP(r)),
		}
		if status >= http.StatusInternalServerError {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	})
}

func requestLogger(r *http.Request) *zap.Logger {
	return logger.From(r.Context())
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
