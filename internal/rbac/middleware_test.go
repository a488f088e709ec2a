package rbac

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ten-platform/ten/internal/shared"
)

func requestAs(t *testing.T, userID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	sess := &shared.Session{ID: "test-session"}
	if userID != "" {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAnyAllows(t *testing.T) {
	store := &stubPrincipalStore{principal: principalWith([]string{"users:read"})}
	mw := Middleware{Engine: NewEngine(store, nil)}

	rec := httptest.NewRecorder()
	mw.RequireAny("users:read", "users:update")(okHandler()).ServeHTTP(rec, requestAs(t, "7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireAnyDenies(t *testing.T) {
	store := &stubPrincipalStore{principal: principalWith([]string{"content:read"})}
	mw := Middleware{Engine: NewEngine(store, nil)}

	rec := httptest.NewRecorder()
	mw.RequireAny("users:read")(okHandler()).ServeHTTP(rec, requestAs(t, "7"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAnyWithoutSession(t *testing.T) {
	mw := Middleware{Engine: NewEngine(&stubPrincipalStore{}, nil)}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	mw.RequireAny("users:read")(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	store := &stubPrincipalStore{principal: principalWith([]string{"users:read", "roles:read"})}
	mw := Middleware{Engine: NewEngine(store, nil)}

	rec := httptest.NewRecorder()
	mw.RequireAll("users:read", "roles:read")(okHandler()).ServeHTTP(rec, requestAs(t, "7"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mw.RequireAll("users:read", "roles:manage")(okHandler()).ServeHTTP(rec, requestAs(t, "7"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMiddlewareStoreFailureIsNotDenial(t *testing.T) {
	// An infrastructure failure surfaces as 500, not 403.
	store := &stubPrincipalStore{err: errors.New("connection reset")}
	mw := Middleware{Engine: NewEngine(store, nil)}

	rec := httptest.NewRecorder()
	mw.RequireAny("users:read")(okHandler()).ServeHTTP(rec, requestAs(t, "7"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestMiddlewareUnknownPrincipalIsForbidden(t *testing.T) {
	store := &stubPrincipalStore{err: ErrUnknownPrincipal}
	mw := Middleware{Engine: NewEngine(store, nil)}

	rec := httptest.NewRecorder()
	mw.RequireAny("users:read")(okHandler()).ServeHTTP(rec, requestAs(t, "7"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireSensitive(t *testing.T) {
	topTier := Principal{UserID: 1, Roles: []Role{{Code: "SUPER", Kind: RoleKindSystem, IsTopTier: true}}}
	wildcarded := Principal{UserID: 2, Direct: []string{WildcardAll}}

	mw := Middleware{Engine: NewEngine(&stubPrincipalStore{principal: topTier}, nil)}
	rec := httptest.NewRecorder()
	mw.RequireSensitive(OpDeleteRole)(okHandler()).ServeHTTP(rec, requestAs(t, "1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for top tier, got %d", rec.Code)
	}

	mw = Middleware{Engine: NewEngine(&stubPrincipalStore{principal: wildcarded}, nil)}
	rec = httptest.NewRecorder()
	mw.RequireSensitive(OpDeleteRole)(okHandler()).ServeHTTP(rec, requestAs(t, "2"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wildcard grant, got %d", rec.Code)
	}
}
