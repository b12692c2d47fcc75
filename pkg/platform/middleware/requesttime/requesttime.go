// Package requesttime pins one "now" per HTTP request so every resolver call
// made while serving it evaluates the log at the same instant.
package requesttime

import (
	"net/http"
	"time"

	"regwatch/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request
// and stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
