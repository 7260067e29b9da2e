package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuslabs/nimbus/internal/log"
)

const requestIDHeader = "X-Request-ID"

// loggingWriter captures the status code and body size for access logs.
type loggingWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *loggingWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

func (w *loggingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap supports http.ResponseController.
func (w *loggingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// recoveryMiddleware turns panics into 500s instead of dropped
// connections. If the handler already started writing, the response is
// left as is.
func recoveryMiddleware(next http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapper := &loggingWriter{ResponseWriter: w}
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered in handler",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
				)
				if wrapper.statusCode == 0 {
					writeError(wrapper, http.StatusInternalServerError,
						"internal_error", "Internal server error", logger)
				}
			}
		}()
		next.ServeHTTP(wrapper, r)
	})
}

// requestIDMiddleware tags every request with an ID for log
// correlation. A valid UUID supplied by the client is kept.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware writes one access log line per request. It reuses
// the recovery middleware's wrapper when present.
func loggingMiddleware(next http.Handler, logger log.Logger, trustProxy bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper, ok := w.(*loggingWriter)
		if !ok {
			wrapper = &loggingWriter{ResponseWriter: w}
		}

		next.ServeHTTP(wrapper, r)

		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"bytes", wrapper.bytesWritten,
			"duration", time.Since(start),
			"ip", clientIP(r, trustProxy),
			"request_id", wrapper.Header().Get(requestIDHeader),
		)
	})
}

// corsMiddleware answers preflight requests and stamps CORS headers for
// allowed origins. An empty allow list disables CORS entirely.
func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[strings.TrimSuffix(o, "/")] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originSet[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
