package web

import (
	"net/http"

	"github.com/google/uuid"

	intakemiddleware "github.com/landtenure/intake/internal/web/middleware"
)

// currentUserFromRequest resolves the authenticated operator id for r,
// falling back to a "user_id" query parameter when API key auth is
// disabled (local development / watched-folder replay), the generalized
// replacement for the teacher's IP/User-Agent-only audit context
// (internal/core/context.go).
func currentUserFromRequest(r *http.Request) (uuid.UUID, bool) {
	if id, ok := intakemiddleware.UserIDFromContext(r.Context()); ok {
		return id, true
	}
	if q := r.URL.Query().Get("user_id"); q != "" {
		if id, err := uuid.Parse(q); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}
