package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Intent-Gate/Intentgate/internal/ctxkey"
	"github.com/Intent-Gate/Intentgate/internal/domain/auth"
	"github.com/Intent-Gate/Intentgate/internal/telemetry"
)

// principalFrom returns the authenticated principal, or nil.
func principalFrom(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(ctxkey.PrincipalKey{}).(*auth.Principal)
	return p
}

// loggerFrom returns the request-enriched logger, or slog.Default.
func loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// authMiddleware resolves the bearer token to a principal. With no
// keyring configured every request runs as an admin of the "default"
// tenant.
func (h *APIHandler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.keyring == nil {
			p := &auth.Principal{KeyID: "dev", TenantID: "default", Role: auth.RoleAdmin}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxkey.PrincipalKey{}, p)))
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			h.respondError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		p, err := h.keyring.Validate(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			h.respondError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxkey.PrincipalKey{}, p)))
	})
}

// requestIDMiddleware extracts or generates a request id, enriches the
// logger and echoes the id back for correlation.
func (h *APIHandler) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, requestID)
		ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, h.logger.With("request_id", requestID))

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MetricsMiddleware records request duration and status for every API
// request. /metrics and /health are excluded.
func MetricsMiddleware(metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			metrics.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
			metrics.RequestsTotal.WithLabelValues(r.Method, statusToLabel(wrapped.status)).Inc()
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
