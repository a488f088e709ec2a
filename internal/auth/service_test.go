package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ten-platform/ten/internal/shared"
)

type stubRepo struct {
	user     *User
	findErr  error
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = map[string]int64{}
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(hash)
}

func TestAuthenticateSuccess(t *testing.T) {
	repo := &stubRepo{user: &User{ID: 7, Email: "a@example.com", PasswordHash: hashOf(t, "pw"), IsActive: true}}
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "a@example.com", "pw")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != 7 {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestAuthenticateFailuresCollapse(t *testing.T) {
	hash := hashOf(t, "pw")
	cases := []struct {
		name string
		repo *stubRepo
		pass string
	}{
		{"unknown email", &stubRepo{}, "pw"},
		{"wrong password", &stubRepo{user: &User{Email: "a@example.com", PasswordHash: hash, IsActive: true}}, "nope"},
		{"inactive account", &stubRepo{user: &User{Email: "a@example.com", PasswordHash: hash, IsActive: false}}, "pw"},
		{"repo failure", &stubRepo{findErr: errors.New("connection reset")}, "pw"},
	}
	for _, tc := range cases {
		_, err := NewService(tc.repo).Authenticate(context.Background(), "a@example.com", tc.pass)
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", tc.name, err)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.RegisterSession(ctx, "sid", 7, time.Now().Add(time.Hour), "127.0.0.1", "test"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if repo.sessions["sid"] != 7 {
		t.Fatalf("session not recorded")
	}
	if err := svc.RemoveSession(ctx, "sid"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := repo.sessions["sid"]; ok {
		t.Fatalf("session not removed")
	}
}
