package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mind-engage/mindengage-courses/internal/rbac"
	"github.com/mind-engage/mindengage-courses/internal/users"
)

// AttachRole replaces the token's role with the one stored for the subject,
// so role changes apply before tokens expire. allowClaimFallback=true in
// dev/offline; false in prod, where unknown subjects are denied.
func AttachRole(store users.Store, allowClaimFallback bool, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claim, ok := rbac.ActorFromContext(ctx)
			if !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			u, err := store.Get(ctx, claim.ID)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(rbac.WithActor(ctx, u.Actor())))
			case errors.Is(err, users.ErrNotFound) && allowClaimFallback:
				next.ServeHTTP(w, r)
			case errors.Is(err, users.ErrNotFound):
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				log.ErrorContext(ctx, "auth: role lookup failed", "sub", claim.ID, "err", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		})
	}
}
