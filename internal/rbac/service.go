package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ten-platform/ten/internal/shared"
)

// Service orchestrates role and grant mutations. Every mutation runs its
// multi-step work inside one transaction (via the store) and synchronously
// drops the affected principal cache entries before returning, so a
// permission check issued after the call observes the new state.
type Service struct {
	store    Store
	registry *Registry
	cache    *PrincipalCache
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService constructs a Service. cache and audit may be nil.
func NewService(store Store, registry *Registry, cache *PrincipalCache, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, registry: registry, cache: cache, audit: audit, logger: logger}
}

// Registry exposes the permission registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// ListRoles returns all roles with their permission sets.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// CreateRole inserts a new regular role carrying the named permissions.
// Roles created through this path are never system roles and never top
// tier; those exist only via bootstrap seeding.
func (s *Service) CreateRole(ctx context.Context, actorID int64, code, name, description string, permissionNames []string) (Role, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return Role{}, fmt.Errorf("rbac: role code and name required")
	}
	perms, err := s.registry.ResolveAll(ctx, permissionNames)
	if err != nil {
		return Role{}, err
	}
	role, err := s.store.InsertRole(ctx, Role{
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(description),
		Kind:        RoleKindRegular,
	}, permissionIDs(perms))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "rbac.role.create", "role", role.ID, map[string]any{"code": role.Code, "permissions": permissionNames})
	return role, nil
}

// UpdateRolePermissions replaces the role's permission set. System roles
// are rejected with ErrSystemRoleImmutable before anything is touched.
func (s *Service) UpdateRolePermissions(ctx context.Context, actorID, roleID int64, permissionNames []string) error {
	perms, err := s.registry.ResolveAll(ctx, permissionNames)
	if err != nil {
		return err
	}
	// The store reads the member list inside the mutating transaction, so
	// a user picking up the role mid-flight is invalidated too.
	members, err := s.store.ReplaceRolePermissions(ctx, roleID, permissionIDs(perms))
	if err != nil {
		return err
	}
	if err := s.invalidate(ctx, members...); err != nil {
		return err
	}
	s.record(ctx, actorID, "rbac.role.permissions.update", "role", roleID, map[string]any{"permissions": permissionNames})
	return nil
}

// DeleteRole removes a regular role and cascades its user assignments in
// one transaction. System roles are rejected with ErrSystemRoleImmutable.
func (s *Service) DeleteRole(ctx context.Context, actorID, roleID int64) error {
	members, err := s.store.DeleteRoleCascade(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.invalidate(ctx, members...); err != nil {
		return err
	}
	s.record(ctx, actorID, "rbac.role.delete", "role", roleID, nil)
	return nil
}

// AssignRole assigns a role to the user. Idempotent.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.store.AssignRoleToUser(ctx, userID, roleID); err != nil {
		return err
	}
	if err := s.invalidate(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "rbac.user.role.assign", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// RemoveRole removes a role from the user. Removing an unheld role is a no-op.
func (s *Service) RemoveRole(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.store.RemoveRoleFromUser(ctx, userID, roleID); err != nil {
		return err
	}
	if err := s.invalidate(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "rbac.user.role.remove", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// GrantPermission attaches a direct permission grant to the user. Idempotent.
func (s *Service) GrantPermission(ctx context.Context, actorID, userID int64, permissionName string) error {
	perm, err := s.registry.Resolve(ctx, permissionName)
	if err != nil {
		return err
	}
	if err := s.store.GrantPermissionToUser(ctx, userID, perm.ID); err != nil {
		return err
	}
	if err := s.invalidate(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "rbac.user.permission.grant", "user", userID, map[string]any{"permission": permissionName})
	return nil
}

// RevokePermission removes a direct grant from the user. Idempotent.
func (s *Service) RevokePermission(ctx context.Context, actorID, userID int64, permissionName string) error {
	perm, err := s.registry.Resolve(ctx, permissionName)
	if err != nil {
		return err
	}
	if err := s.store.RevokePermissionFromUser(ctx, userID, perm.ID); err != nil {
		return err
	}
	if err := s.invalidate(ctx, userID); err != nil {
		return err
	}
	s.record(ctx, actorID, "rbac.user.permission.revoke", "user", userID, map[string]any{"permission": permissionName})
	return nil
}

func (s *Service) invalidate(ctx context.Context, userIDs ...int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, userIDs...)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("rbac audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func permissionIDs(perms []Permission) []int64 {
	ids := make([]int64, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	return ids
}
