package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ten-platform/ten/internal/shared"
)

// Middleware wires authorization helpers for HTTP handlers. A store
// failure is surfaced as 500, never collapsed into a 403: a lookup error
// must stay distinguishable from a denial.
type Middleware struct {
	Engine *Engine
	Logger *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := dedupe(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, perm := range required {
				allowed, err := m.Engine.Check(r.Context(), userID, perm)
				if err != nil {
					m.fail(w, "rbac require any", err)
					return
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the current user has every required permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := dedupe(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, perm := range required {
				allowed, err := m.Engine.Check(r.Context(), userID, perm)
				if err != nil {
					m.fail(w, "rbac require all", err)
					return
				}
				if !allowed {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSensitive restricts the route to the top role tier. Permission
// grants, including `*:*`, never satisfy this check.
func (m Middleware) RequireSensitive(op SensitiveOperation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			allowed, err := m.Engine.CheckSensitive(r.Context(), userID, op)
			if err != nil {
				m.fail(w, "rbac require sensitive", err)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrUnknownPrincipal) {
		// Session references a user that no longer exists.
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	if m.Logger != nil {
		m.Logger.Error(op, slog.Any("error", err))
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	return shared.CurrentUserID(r.Context())
}

func dedupe(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
