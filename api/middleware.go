package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/partner-settlement/auth"
	"github.com/warp/partner-settlement/session"
	"github.com/warp/partner-settlement/settlement"
)

type contextKey string

const (
	loggerContextKey  contextKey = "logger"
	sessionContextKey contextKey = "session"
)

// requestLogger puts a request-scoped logger in the context and logs each
// completed request. 4xx logs at warn, 5xx at error.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := context.WithValue(r.Context(), loggerContextKey, reqLogger)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := zapcore.InfoLevel
			if status >= 500 {
				level = zapcore.ErrorLevel
			} else if status >= 400 {
				level = zapcore.WarnLevel
			}
			reqLogger.Log(level, "HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// loggerFrom returns the request logger, or a no-op logger outside a request.
func loggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// requireSession resolves the bearer token to a live session. A valid token
// whose session was dropped (logout, expiry) is rejected like a bad token.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}
		claims, err := h.Gate.ParseToken(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}
		s, err := h.Registry.Get(claims.SessionID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Session expired, please log in again", settlement.ErrSessionNotFound)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, s)
		if l, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok {
			ctx = context.WithValue(ctx, loggerContextKey, l.With(zap.String("session_id", s.ID)))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the session resolved by requireSession.
func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionContextKey).(*session.Session)
	return s
}
