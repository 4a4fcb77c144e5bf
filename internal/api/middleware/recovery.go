package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/seatmetrics/seatwatch/internal/api/response"
)

// Recovery turns a panicking handler into a 500 and keeps the worker-facing
// endpoints (detect, frames) alive for the next request.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				client, ok := getClientID(r)
				if !ok {
					client = clientAddr(r)
				}
				slog.Error("panic recovered",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"client", client,
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
