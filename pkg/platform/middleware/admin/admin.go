// Package admin guards write endpoints behind a shared admin token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"regwatch/pkg/platform/secrets"
	"regwatch/pkg/requestcontext"
)

// HeaderAdminToken carries the shared admin secret.
const HeaderAdminToken = "X-Admin-Token"

// HeaderActor optionally names the principal behind an admin call; it is
// recorded on audit events.
const HeaderActor = "X-Actor"

// Verifier reports whether a presented admin token is valid.
type Verifier func(token string) bool

// StaticToken compares against a plaintext token in constant time.
// An empty expected token rejects everything.
func StaticToken(expected string) Verifier {
	return func(token string) bool {
		return expected != "" && subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
	}
}

// HashedToken verifies against a bcrypt hash produced by secrets.Hash.
// An empty hash rejects everything.
func HashedToken(hash string) Verifier {
	return func(token string) bool {
		return hash != "" && token != "" && secrets.Verify(token, hash) == nil
	}
}

// RequireAdminToken rejects requests whose admin token does not match.
// An empty expectedToken rejects everything.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return RequireAdmin(StaticToken(expectedToken), logger)
}

// RequireAdmin rejects requests whose admin token the verifier refuses.
func RequireAdmin(verify Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !verify(r.Header.Get(HeaderAdminToken)) {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
					"client_ip", requestcontext.ClientIP(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			actor := r.Header.Get(HeaderActor)
			if actor == "" {
				actor = "admin"
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}
