package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/ten-platform/ten/internal/auth"
	"github.com/ten-platform/ten/internal/rbac"
	"github.com/ten-platform/ten/internal/shared"
	_ "github.com/ten-platform/ten/testing"
)

type stubAuthRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubAuthRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubAuthRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = map[string]int64{}
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubAuthRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *stubAuthRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type stubPrincipals struct {
	principal rbac.Principal
}

func (s *stubPrincipals) LoadPrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	return s.principal, nil
}

func newAuthHandler(t *testing.T, repo auth.Repository, principals rbac.PrincipalStore) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	engine := rbac.NewEngine(principals, nil)
	handler := auth.NewHandler(nil, auth.NewService(repo), engine, sessionManager, csrfManager)
	return handler, sessionManager
}

func newTestRouter(handler *auth.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

func withSession(t *testing.T, sm *shared.SessionManager, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestLoginSuccess(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubAuthRepo{user: &auth.User{ID: 7, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}}
	handler, sm := newAuthHandler(t, repo, &stubPrincipals{})

	body := `{"email":"user@test.local","password":"correctpass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, sess := withSession(t, sm, req)

	res := httptest.NewRecorder()
	router := newTestRouter(handler)
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var payload struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.User.ID != 7 || payload.CSRFToken == "" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if sess.User() != "7" {
		t.Fatalf("session not bound to user, got %q", sess.User())
	}
	if repo.sessions[sess.ID] != 7 {
		t.Fatalf("session record not persisted")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	repo := &stubAuthRepo{user: &auth.User{ID: 7, Email: "user@test.local", PasswordHash: string(hashed), IsActive: true}}
	handler, sm := newAuthHandler(t, repo, &stubPrincipals{})

	body := `{"email":"user@test.local","password":"wrongpass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sm, req)

	res := httptest.NewRecorder()
	newTestRouter(handler).ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubAuthRepo{}, &stubPrincipals{})

	body := `{"email":"not-an-email","password":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req, _ = withSession(t, sm, req)

	res := httptest.NewRecorder()
	newTestRouter(handler).ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestMeRequiresSession(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubAuthRepo{}, &stubPrincipals{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req, _ = withSession(t, sm, req)

	res := httptest.NewRecorder()
	newTestRouter(handler).ServeHTTP(res, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestMeReturnsPermissions(t *testing.T) {
	principals := &stubPrincipals{principal: rbac.Principal{UserID: 7, Direct: []string{"users:read"}}}
	handler, sm := newAuthHandler(t, &stubAuthRepo{}, principals)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req, sess := withSession(t, sm, req)
	sess.SetUser("7")

	res := httptest.NewRecorder()
	newTestRouter(handler).ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var payload struct {
		UserID      int64    `json:"user_id"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.UserID != 7 || len(payload.Permissions) != 1 || payload.Permissions[0] != "users:read" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
