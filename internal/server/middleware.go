package server

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyLogAttrs  ctxKey = "log_attrs"
)

// validRequestID bounds the request IDs accepted from callers.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// requestIDMiddleware reuses a well-formed X-Request-ID from the caller or
// generates one, and stores it in context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !validRequestID.MatchString(reqID) {
			reqID = requestID()
		}
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logAttrs collects attributes handlers attach to the request log line.
type logAttrs struct {
	mu    sync.Mutex
	attrs []any
}

// annotate adds key/value pairs to the request's log line. It is a no-op
// outside loggingMiddleware.
func annotate(ctx context.Context, args ...any) {
	la, ok := ctx.Value(ctxKeyLogAttrs).(*logAttrs)
	if !ok {
		return
	}
	la.mu.Lock()
	la.attrs = append(la.attrs, args...)
	la.mu.Unlock()
}

// loggingMiddleware logs one line per request. Routes on a task add its name,
// and handlers may annotate the line with invocation details. Server errors
// log at WARN.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			la := &logAttrs{}
			r = r.WithContext(context.WithValue(r.Context(), ctxKeyLogAttrs, la))

			next.ServeHTTP(sw, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
				"request_id", RequestIDFromContext(r.Context()),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if name := rctx.URLParam("name"); name != "" {
					args = append(args, "task", name)
				}
			}
			la.mu.Lock()
			args = append(args, la.attrs...)
			la.mu.Unlock()

			level := slog.LevelInfo
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request", args...)
		})
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
