package rbac

import (
	"context"
	"fmt"
)

// Registry is the canonical set of permission names. Every name is
// validated against the grammar here, once, at the boundary; the rest of
// the module trusts registered names.
type Registry struct {
	store PermissionStore
}

// NewRegistry constructs a Registry over the given store.
func NewRegistry(store PermissionStore) *Registry {
	return &Registry{store: store}
}

// Register creates a permission for the resource/action pair. The pair
// must parse under the grammar; wildcard actions are registrable so roles
// can carry `resource:*` and `*:*` grants.
func (r *Registry) Register(ctx context.Context, resource, action, description string) (Permission, error) {
	name := PermissionName(resource, action)
	if !ValidPermissionName(name) {
		return Permission{}, fmt.Errorf("%w: %q", ErrInvalidPermissionFormat, name)
	}
	p, err := r.store.InsertPermission(ctx, Permission{
		Name:        name,
		Resource:    resource,
		Action:      action,
		Description: description,
	})
	if err != nil {
		if err == ErrDuplicatePermission {
			return Permission{}, fmt.Errorf("%w: %q", ErrDuplicatePermission, name)
		}
		return Permission{}, err
	}
	return p, nil
}

// Resolve looks up a permission by name.
func (r *Registry) Resolve(ctx context.Context, name string) (Permission, error) {
	if !ValidPermissionName(name) {
		return Permission{}, fmt.Errorf("%w: %q", ErrInvalidPermissionFormat, name)
	}
	p, err := r.store.GetPermissionByName(ctx, name)
	if err != nil {
		if err == ErrUnknownPermission {
			return Permission{}, fmt.Errorf("%w: %q", ErrUnknownPermission, name)
		}
		return Permission{}, err
	}
	return p, nil
}

// ResolveAll resolves every name, failing on the first unknown one.
func (r *Registry) ResolveAll(ctx context.Context, names []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		p, err := r.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// List returns every registered permission.
func (r *Registry) List(ctx context.Context) ([]Permission, error) {
	return r.store.ListPermissions(ctx)
}
