package users

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/ten-platform/ten/internal/rbac"
	"github.com/ten-platform/ten/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// PrincipalPort loads RBAC state for a user's detail view.
type PrincipalPort interface {
	LoadPrincipal(ctx context.Context, userID int64) (rbac.Principal, error)
}

// Service handles user business logic.
type Service struct {
	repo       RepositoryPort
	principals PrincipalPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, principals PrincipalPort) *Service {
	return &Service{repo: repo, principals: principals}
}

// ListUsers returns one page of users with pagination metadata.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	users, total, err := s.repo.ListUsers(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(page, perPage, total), nil
}

// GetProfile returns the user with roles, direct grants and the effective
// permission set, all computed from current state.
func (s *Service) GetProfile(ctx context.Context, id int64) (Profile, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	principal, err := s.principals.LoadPrincipal(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	roles := make([]string, len(principal.Roles))
	for i, role := range principal.Roles {
		roles[i] = role.Code
	}
	return Profile{
		User:        user,
		Roles:       roles,
		Direct:      principal.Direct,
		Permissions: rbac.EffectivePermissions(principal),
	}, nil
}

// CreateUser registers an account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, email, name, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.CreateUser(ctx, email, name, string(hash))
}

// SetActive toggles an account's active flag.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}
