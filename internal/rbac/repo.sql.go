package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ten-platform/ten/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the rbac module.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgErr(err error) *pgconn.PgError {
	var e *pgconn.PgError
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// ListPermissions returns every registered permission ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, resource, action, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetPermissionByName resolves a permission by its canonical name.
func (r *Repository) GetPermissionByName(ctx context.Context, name string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT id, name, resource, action, description FROM permissions WHERE name = $1`, name).
		Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrUnknownPermission
		}
		return Permission{}, err
	}
	return p, nil
}

// InsertPermission registers a permission.
func (r *Repository) InsertPermission(ctx context.Context, p Permission) (Permission, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, resource, action, description) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.Name, p.Resource, p.Action, p.Description).Scan(&p.ID)
	if err != nil {
		if e := pgErr(err); e != nil && e.Code == pgUniqueViolation {
			return Permission{}, ErrDuplicatePermission
		}
		return Permission{}, err
	}
	return p, nil
}

// ListRoles returns every role with its permission set loaded.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, description, kind, is_top_tier, created_at, updated_at FROM roles ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	index := make(map[int64]int)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.Kind, &role.IsTopTier, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		index[role.ID] = len(roles)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	permRows, err := r.pool.Query(ctx, `
		SELECT rp.role_id, p.id, p.name, p.resource, p.action, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleID int64
		var p Permission
		if err := permRows.Scan(&roleID, &p.ID, &p.Name, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, p)
		}
	}
	return roles, permRows.Err()
}

// GetRole fetches a role and its permissions by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return r.getRole(ctx, `SELECT id, code, name, description, kind, is_top_tier, created_at, updated_at FROM roles WHERE id = $1`, id)
}

// GetRoleByCode fetches a role and its permissions by code.
func (r *Repository) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	return r.getRole(ctx, `SELECT id, code, name, description, kind, is_top_tier, created_at, updated_at FROM roles WHERE code = $1`, code)
}

func (r *Repository) getRole(ctx context.Context, query string, arg any) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, query, arg).
		Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.Kind, &role.IsTopTier, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrUnknownRole
		}
		return Role{}, err
	}
	perms, err := r.rolePermissions(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

func (r *Repository) rolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.resource, p.action, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// InsertRole creates the role and attaches its permissions in one transaction.
func (r *Repository) InsertRole(ctx context.Context, role Role, permissionIDs []int64) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO roles (code, name, description, kind, is_top_tier, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			 RETURNING id, created_at, updated_at`,
			role.Code, role.Name, role.Description, role.Kind, role.IsTopTier).
			Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			if e := pgErr(err); e != nil && e.Code == pgUniqueViolation {
				return ErrDuplicateRoleName
			}
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				role.ID, permID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	perms, err := r.rolePermissions(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// ReplaceRolePermissions swaps the role's permission set in one transaction.
// The role row is locked first so concurrent replacements serialize, and
// the kind check inside the same transaction keeps system roles untouched
// even when the caller raced a concurrent change. The member list is read
// under the same lock; a membership landing after it waits on the lock and
// only commits against the already-replaced set.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) ([]int64, error) {
	var members []int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		kind, err := lockRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if kind == RoleKindSystem {
			return ErrSystemRoleImmutable
		}
		members, err = roleMemberIDs(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
				roleID, permID); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `UPDATE roles SET updated_at = NOW() WHERE id = $1`, roleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// DeleteRoleCascade drops every assignment referencing the role, then the
// role itself, atomically. No reader ever observes a half-removed role.
// Returns the users whose assignment was removed, read under the role lock.
func (r *Repository) DeleteRoleCascade(ctx context.Context, roleID int64) ([]int64, error) {
	var members []int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		kind, err := lockRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if kind == RoleKindSystem {
			return ErrSystemRoleImmutable
		}
		members, err = roleMemberIDs(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

func lockRole(ctx context.Context, tx pgx.Tx, roleID int64) (RoleKind, error) {
	var kind RoleKind
	err := tx.QueryRow(ctx, `SELECT kind FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUnknownRole
		}
		return "", err
	}
	return kind, nil
}

func roleMemberIDs(ctx context.Context, tx pgx.Tx, roleID int64) ([]int64, error) {
	rows, err := tx.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AssignRoleToUser links a user to a role. Idempotent: an already-held
// role is a no-op, not an error.
func (r *Repository) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id, created_at) VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`,
		userID, roleID)
	return mapAssignmentErr(err)
}

// RemoveRoleFromUser unlinks a user from a role. Removing an unheld role
// is a no-op.
func (r *Repository) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// GrantPermissionToUser attaches a direct permission grant. Idempotent.
func (r *Repository) GrantPermissionToUser(ctx context.Context, userID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_permissions (user_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, permissionID)
	return mapAssignmentErr(err)
}

// RevokePermissionFromUser removes a direct grant. Idempotent.
func (r *Repository) RevokePermissionFromUser(ctx context.Context, userID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
	return err
}

func mapAssignmentErr(err error) error {
	e := pgErr(err)
	if e == nil || e.Code != pgForeignKeyViolation {
		return err
	}
	switch {
	case strings.Contains(e.ConstraintName, "user"):
		return ErrUnknownPrincipal
	case strings.Contains(e.ConstraintName, "role"):
		return ErrUnknownRole
	case strings.Contains(e.ConstraintName, "permission"):
		return ErrUnknownPermission
	}
	return err
}

// LoadPrincipal assembles the evaluation-time snapshot for a user: the
// direct grants plus every held role with its permission set.
func (r *Repository) LoadPrincipal(ctx context.Context, userID int64) (Principal, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return Principal{}, err
	}
	if !exists {
		return Principal{}, ErrUnknownPrincipal
	}

	p := Principal{UserID: userID}

	directRows, err := r.pool.Query(ctx, `
		SELECT perm.name
		FROM user_permissions up
		JOIN permissions perm ON perm.id = up.permission_id
		WHERE up.user_id = $1
		ORDER BY perm.name`, userID)
	if err != nil {
		return Principal{}, err
	}
	defer directRows.Close()
	for directRows.Next() {
		var name string
		if err := directRows.Scan(&name); err != nil {
			return Principal{}, err
		}
		p.Direct = append(p.Direct, name)
	}
	if err := directRows.Err(); err != nil {
		return Principal{}, err
	}

	roleRows, err := r.pool.Query(ctx, `
		SELECT ro.id, ro.code, ro.name, ro.description, ro.kind, ro.is_top_tier, ro.created_at, ro.updated_at
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ro.code`, userID)
	if err != nil {
		return Principal{}, err
	}
	defer roleRows.Close()
	index := make(map[int64]int)
	for roleRows.Next() {
		var role Role
		if err := roleRows.Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.Kind, &role.IsTopTier, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return Principal{}, err
		}
		index[role.ID] = len(p.Roles)
		p.Roles = append(p.Roles, role)
	}
	if err := roleRows.Err(); err != nil {
		return Principal{}, err
	}
	if len(p.Roles) == 0 {
		return p, nil
	}

	permRows, err := r.pool.Query(ctx, `
		SELECT rp.role_id, perm.id, perm.name, perm.resource, perm.action, perm.description
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions perm ON perm.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY perm.name`, userID)
	if err != nil {
		return Principal{}, err
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleID int64
		var perm Permission
		if err := permRows.Scan(&roleID, &perm.ID, &perm.Name, &perm.Resource, &perm.Action, &perm.Description); err != nil {
			return Principal{}, err
		}
		if i, ok := index[roleID]; ok {
			p.Roles[i].Permissions = append(p.Roles[i].Permissions, perm)
		}
	}
	return p, permRows.Err()
}
