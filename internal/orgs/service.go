package orgs

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// RepositoryPort defines data access methods for organizations.
type RepositoryPort interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	GetOrganization(ctx context.Context, id int64) (Organization, error)
	InsertOrganization(ctx context.Context, publicID, name, slug string) (Organization, error)
	UpdateOrganization(ctx context.Context, id int64, name string, isActive bool) (Organization, error)
	AddMember(ctx context.Context, orgID, userID int64) error
	RemoveMember(ctx context.Context, orgID, userID int64) error
	MemberIDs(ctx context.Context, orgID int64) ([]int64, error)
}

var slugRE = regexp.MustCompile(`^[a-z0-9-]+$`)

// Service handles organization business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns all organizations.
func (s *Service) List(ctx context.Context) ([]Organization, error) {
	return s.repo.ListOrganizations(ctx)
}

// Get fetches one organization.
func (s *Service) Get(ctx context.Context, id int64) (Organization, error) {
	return s.repo.GetOrganization(ctx, id)
}

// Create registers a new tenant with a generated public ID.
func (s *Service) Create(ctx context.Context, name, slug string) (Organization, error) {
	name = strings.TrimSpace(name)
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name == "" {
		return Organization{}, errors.New("orgs: name required")
	}
	if !slugRE.MatchString(slug) {
		return Organization{}, errors.New("orgs: slug must be lowercase letters, digits and dashes")
	}
	return s.repo.InsertOrganization(ctx, uuid.NewString(), name, slug)
}

// Update changes the organization's name and active flag.
func (s *Service) Update(ctx context.Context, id int64, name string, isActive bool) (Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, errors.New("orgs: name required")
	}
	return s.repo.UpdateOrganization(ctx, id, name, isActive)
}

// AddMember links a user to the organization. Idempotent.
func (s *Service) AddMember(ctx context.Context, orgID, userID int64) error {
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return err
	}
	return s.repo.AddMember(ctx, orgID, userID)
}

// RemoveMember unlinks a user. Removing a non-member is a no-op.
func (s *Service) RemoveMember(ctx context.Context, orgID, userID int64) error {
	return s.repo.RemoveMember(ctx, orgID, userID)
}

// Members lists member user IDs.
func (s *Service) Members(ctx context.Context, orgID int64) ([]int64, error) {
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return s.repo.MemberIDs(ctx, orgID)
}
