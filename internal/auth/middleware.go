package auth

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Manulynx/gestores/internal/platform/httpx"
	"github.com/Manulynx/gestores/internal/shared"
)

type userContextKey struct{}

// ContextWithUser stores the authenticated user in context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext extracts the authenticated user from context.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userContextKey{}).(*User)
	return u
}

// RequireUser resolves the session user and injects it into the request
// context, rejecting unauthenticated requests.
func (s *Service) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		id, err := strconv.ParseInt(sess.User(), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		user, err := s.GetUser(r.Context(), id)
		if err != nil || !user.IsActive {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

// RequireAdmin allows only administrator accounts through. It must be
// mounted inside RequireUser.
func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil || !user.Admin {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "administrator required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
