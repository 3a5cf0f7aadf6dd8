package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/healthbot/healthbot/internal/core"
)

type contextKey string

const identityKey contextKey = "identity"

const headerRequestID = "X-Request-Id"

func withIdentity(ctx context.Context, id core.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func identityFrom(ctx context.Context) (core.Identity, bool) {
	id, ok := ctx.Value(identityKey).(core.Identity)
	return id, ok
}

// IdentityMiddleware resolves the caller before the handler runs. Routes that
// do not accept guests answer the guest sentinel with 401.
func (h *APIHandler) IdentityMiddleware(allowGuest bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := h.authService.ResolveIdentity(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				status, detail := identityError(err)
				if status == http.StatusInternalServerError {
					h.log.Error("identity resolution failed", zap.Error(err))
				}
				writeError(w, status, detail)
				return
			}
			if id.IsGuest() && !allowGuest {
				h.log.Debug("identity rejected on registered-only route", zap.Stringer("identity", id.Kind))
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			h.log.Debug("identity resolved",
				zap.Stringer("identity", id.Kind),
				zap.String("username", id.Username),
			)
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

// RequestLogger writes one log line per request, tagged with the caller's
// X-Request-Id or a generated one.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(headerRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(headerRequestID, requestID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			switch {
			case status >= 500:
				log.Error("http request", fields...)
			case status >= 400:
				log.Warn("http request", fields...)
			default:
				log.Info("http request", fields...)
			}
		})
	}
}
