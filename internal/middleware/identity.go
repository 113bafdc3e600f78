package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/domain"
)

// Headers set by the upstream credential verifier.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

type identityKey struct{}

// RequireIdentity reads the verified caller from the identity headers and
// stores it in the request context. Requests without a well-formed identity
// are rejected with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(HeaderActorID))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or malformed "+HeaderActorID)
			return
		}
		role := domain.Role(r.Header.Get(HeaderActorRole))
		if !role.Valid() {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or unknown "+HeaderActorRole)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), domain.Identity{ActorID: id, Role: role})))
	})
}

// WithIdentity returns a copy of ctx carrying who.
func WithIdentity(ctx context.Context, who domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, who)
}

// IdentityFrom returns the caller stored by RequireIdentity.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	who, ok := ctx.Value(identityKey{}).(domain.Identity)
	return who, ok
}

// writeError writes the same error body shape the handlers use.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {"code": code, "message": message},
	})
}
