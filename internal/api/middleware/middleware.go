package middleware

import (
	"io"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/rs/zerolog/log"
)

// Config holds the HTTP middleware settings
type Config struct {
	AllowedOrigins []string
	AccessLog      io.Writer // Apache combined format; nil disables
	SkipPaths      []string  // not request-logged (e.g. /health)
}

// Chain wraps h with request id, real ip, panic recovery, CORS, request logging and access log.
// The outermost handler runs first.
func Chain(h http.Handler, cfg Config) http.Handler {
	h = Logging(cfg.SkipPaths)(h)
	h = cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})(h)
	h = chimw.Recoverer(h)
	h = chimw.RealIP(h)
	h = requestIDHeader(h)
	h = chimw.RequestID(h)
	if cfg.AccessLog != nil {
		h = gorillaHandlers.CombinedLoggingHandler(cfg.AccessLog, h)
	}
	return h
}

// requestIDHeader echoes the request id back to the client
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

// Logging logs each request with status and duration
func Logging(skipPaths []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			event := log.Info()
			if status >= 500 {
				event = log.Error()
			} else if status >= 400 {
				event = log.Warn()
			}

			event.
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Str("ip", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}
