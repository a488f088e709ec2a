package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ten-platform/ten/internal/shared"
)

// Seed resources and actions. The matrix plus per-resource wildcards and
// the global wildcard form the bootstrap permission registry.
var (
	seedResources = []string{
		"users", "roles", "permissions", "orgs", "content",
		"bookings", "payments", "reports", "support", "settings",
		"user_financials",
	}
	seedActions = []string{"create", "read", "update", "delete", "manage"}
)

type seedRole struct {
	Code        string
	Name        string
	Description string
	Kind        RoleKind
	IsTopTier   bool
	Permissions []string
}

// Wildcard grants are stored verbatim and matched lazily at check time,
// so roles seeded with `*:*` keep covering permissions registered later.
var seedRoles = []seedRole{
	{Code: "SUPER", Name: "Super Admin", Description: "Top tier; sole holder of sensitive operations", Kind: RoleKindSystem, IsTopTier: true, Permissions: []string{WildcardAll}},
	{Code: "ADM", Name: "Admin", Description: "System administrator with full access", Kind: RoleKindSystem, Permissions: []string{WildcardAll}},
	{Code: "EDT", Name: "Editor", Description: "Content editor", Kind: RoleKindRegular, Permissions: []string{"content:*", "users:read", "roles:read"}},
	{Code: "AUT", Name: "Author", Description: "Content author", Kind: RoleKindRegular, Permissions: []string{"content:create", "content:read", "content:update"}},
	{Code: "ACC", Name: "Accountant", Description: "Financial management", Kind: RoleKindRegular, Permissions: []string{"payments:*", "reports:*", "bookings:read", "user_financials:read", "user_financials:update"}},
	{Code: "CSS", Name: "Customer Support", Description: "Customer support staff", Kind: RoleKindRegular, Permissions: []string{"support:*", "users:read", "bookings:read"}},
}

// Seeder performs bootstrap seeding of permissions and system roles.
type Seeder struct {
	registry *Registry
	store    Store
	logger   *slog.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(registry *Registry, store Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{registry: registry, store: store, logger: logger}
}

// Seed registers the permission matrix and creates missing roles. It is
// idempotent: existing permissions and roles are left untouched, which is
// the only path that may create system roles.
func (s *Seeder) Seed(ctx context.Context) error {
	if err := s.seedPermissions(ctx); err != nil {
		return err
	}
	if err := s.seedRoles(ctx); err != nil {
		return err
	}
	// The handlers gate on shared.Perm* constants; a seed matrix that
	// stopped covering one of them would lock everyone out of a route.
	if _, err := s.registry.ResolveAll(ctx, shared.CoreScopes()); err != nil {
		return fmt.Errorf("rbac: core scope missing from seed matrix: %w", err)
	}
	return nil
}

func (s *Seeder) seedPermissions(ctx context.Context) error {
	register := func(resource, action, description string) error {
		_, err := s.registry.Register(ctx, resource, action, description)
		if err != nil && !errors.Is(err, ErrDuplicatePermission) {
			return fmt.Errorf("rbac: seed permission %s:%s: %w", resource, action, err)
		}
		return nil
	}
	for _, resource := range seedResources {
		for _, action := range seedActions {
			if err := register(resource, action, fmt.Sprintf("Can %s %s", action, resource)); err != nil {
				return err
			}
		}
		if err := register(resource, ActionWildcard, fmt.Sprintf("All actions on %s", resource)); err != nil {
			return err
		}
	}
	return register(ActionWildcard, ActionWildcard, "All permissions")
}

func (s *Seeder) seedRoles(ctx context.Context) error {
	for _, def := range seedRoles {
		_, err := s.store.GetRoleByCode(ctx, def.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrUnknownRole) {
			return fmt.Errorf("rbac: seed role %s: %w", def.Code, err)
		}
		perms, err := s.registry.ResolveAll(ctx, def.Permissions)
		if err != nil {
			return fmt.Errorf("rbac: seed role %s: %w", def.Code, err)
		}
		role, err := s.store.InsertRole(ctx, Role{
			Code:        def.Code,
			Name:        def.Name,
			Description: def.Description,
			Kind:        def.Kind,
			IsTopTier:   def.IsTopTier,
		}, permissionIDs(perms))
		if err != nil {
			if errors.Is(err, ErrDuplicateRoleName) {
				continue
			}
			return fmt.Errorf("rbac: seed role %s: %w", def.Code, err)
		}
		s.logger.Info("seeded role", slog.String("code", role.Code), slog.String("kind", string(role.Kind)))
	}
	return nil
}
