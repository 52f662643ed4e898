package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/config"
)

type contextKey string

const ctxKeyUserID contextKey = "intake_user_id"

// UserIDFromContext returns the operator id the API key auth middleware
// attached to the request context.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxKeyUserID).(uuid.UUID)
	return id, ok
}

// APIKeyAuth returns middleware that validates the X-API-Key header
// against cfg.APIKeys ("key:userUUID" pairs) and, once valid, attaches the
// paired user id to the request context for audit attribution. If
// RequireAPIKey is false, requests pass through unauthenticated and
// CurrentUser resolution is left to the caller (e.g. a query parameter for
// local development).
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	keys := parseAPIKeys(cfg.APIKeys)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				slog.Warn("auth: missing API key", "path", r.URL.Path, "method", r.Method, "remote_addr", r.RemoteAddr)
				http.Error(w, `{"success":false,"errors":["missing API key"]}`, http.StatusUnauthorized)
				return
			}

			userID, ok := lookupAPIKey(apiKey, keys)
			if !ok {
				slog.Warn("auth: invalid API key", "path", r.URL.Path, "method", r.Method, "remote_addr", r.RemoteAddr)
				http.Error(w, `{"success":false,"errors":["invalid API key"]}`, http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseAPIKeys splits each "key:userUUID" config entry, silently dropping
// malformed entries. config.Validate does not check the entry format; it
// only rejects an empty list when RequireAPIKey is set.
func parseAPIKeys(entries []string) map[string]uuid.UUID {
	out := make(map[string]uuid.UUID, len(entries))
	for _, entry := range entries {
		key, idStr, found := strings.Cut(entry, ":")
		if !found {
			continue
		}
		id, err := uuid.Parse(strings.TrimSpace(idStr))
		if err != nil {
			continue
		}
		out[key] = id
	}
	return out
}

// lookupAPIKey checks candidate against every configured key using a
// constant-time comparison for each, so the comparison time does not leak
// which key (if any) matched.
func lookupAPIKey(candidate string, keys map[string]uuid.UUID) (uuid.UUID, bool) {
	var matched uuid.UUID
	found := 0
	for key, id := range keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			matched = id
			found = 1
		}
	}
	return matched, found == 1
}
