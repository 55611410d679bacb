package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Recoverer returns middleware that recovers from panics and logs the stack
// trace on logger. fallback writes the response; nil answers with a 500 JSON
// error. It should be mounted after StructuredLogger so the request ID is
// available.
func Recoverer(logger *slog.Logger, fallback http.HandlerFunc) func(http.Handler) http.Handler {
	if fallback == nil {
		fallback = func(w http.ResponseWriter, _ *http.Request) {
			writeAuthError(w, http.StatusInternalServerError, "internal server error")
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					"request_id", chimw.GetReqID(r.Context()),
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				fallback(w, r)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
