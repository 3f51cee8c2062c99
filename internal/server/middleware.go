//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	// requestIDHeader carries the request ID back to the client.
	requestIDHeader = "X-Request-ID"

	// maxBodyBytes bounds request bodies; requests carry a topic or a
	// question.
	maxBodyBytes = 64 << 10
)

// quietPaths are polled by health checks and scrapers and logged at debug level.
var quietPaths = []string{"/v1/health", "/metrics"}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wrote {
		rw.status = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wrote = true
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher for Server-Sent Events.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// applyMiddleware wraps the handler with all middleware. The first
// wrapper listed runs innermost.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = limitBody(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	if s.config.Server.CORS.Enabled {
		handler = s.corsMiddleware(handler)
	}
	return handler
}

// limitBody caps the size of request bodies.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware assigns a request ID and logs each request once it
// completes. Server errors are logged as errors.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case slices.Contains(quietPaths, r.URL.Path):
			level = slog.LevelDebug
		}

		s.logger.Log(r.Context(), level, "request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

// recoveryMiddleware turns a panicking handler into a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					"error", rec,
					"path", r.URL.Path,
					"stack", string(debug.Stack()))

				s.respondError(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for allowed origins and answers
// preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, X-Request-ID")
			h.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
			h.Set("Access-Control-Max-Age", "86400")
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowedOrigin returns the value for Access-Control-Allow-Origin, or ""
// when origin may not make cross-origin requests. No configured origins
// allows none.
func (s *Server) allowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}

	for _, allowed := range s.config.Server.CORS.AllowedOrigins {
		switch allowed {
		case "*":
			return "*"
		case origin:
			return origin
		}
	}

	return ""
}
