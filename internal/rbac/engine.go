package rbac

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/singleflight"
)

// HasPermission reports whether the principal may exercise the named
// permission. The query must be a concrete resource:action pair; wildcards
// are valid only as grants. Pure over the supplied snapshot: no I/O, safe
// for concurrent use.
func HasPermission(p Principal, name string) (bool, error) {
	resource, action, err := SplitPermissionName(name)
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidPermissionFormat, name)
	}
	if action == ActionWildcard {
		return false, fmt.Errorf("%w: wildcard query %q", ErrInvalidPermissionFormat, name)
	}
	for _, granted := range p.Direct {
		if matches(granted, resource, action) {
			return true, nil
		}
	}
	for _, role := range p.Roles {
		for _, perm := range role.Permissions {
			if matches(perm.Name, resource, action) {
				return true, nil
			}
		}
	}
	return false, nil
}

// EffectivePermissions returns the deduplicated, sorted union of the
// principal's direct grants and the permissions of every role it holds.
// Wildcard grants appear verbatim; they are resolved lazily by
// HasPermission, not expanded here.
func EffectivePermissions(p Principal) []string {
	seen := make(map[string]struct{}, len(p.Direct))
	for _, name := range p.Direct {
		seen[name] = struct{}{}
	}
	for _, role := range p.Roles {
		for _, perm := range role.Permissions {
			seen[perm.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PrincipalStore loads principal snapshots from persistent state.
type PrincipalStore interface {
	LoadPrincipal(ctx context.Context, userID int64) (Principal, error)
}

// Engine is the caller-facing authorization API. It resolves principals
// through an injected cache and store, then delegates to the pure check
// functions. The cache is explicit and invalidated by the mutation
// service, never a package-level map.
type Engine struct {
	store PrincipalStore
	cache *PrincipalCache
	group singleflight.Group
}

// NewEngine constructs an Engine. cache may be nil to disable caching.
func NewEngine(store PrincipalStore, cache *PrincipalCache) *Engine {
	return &Engine{store: store, cache: cache}
}

// Check reports whether the user holds the named permission.
// Lookup failures surface as errors, never as a false result.
func (e *Engine) Check(ctx context.Context, userID int64, name string) (bool, error) {
	p, err := e.principal(ctx, userID)
	if err != nil {
		return false, err
	}
	return HasPermission(p, name)
}

// PermissionsFor returns the user's effective permission set.
func (e *Engine) PermissionsFor(ctx context.Context, userID int64) ([]string, error) {
	p, err := e.principal(ctx, userID)
	if err != nil {
		return nil, err
	}
	return EffectivePermissions(p), nil
}

// CheckSensitive reports whether the user may perform a sensitive operation.
func (e *Engine) CheckSensitive(ctx context.Context, userID int64, op SensitiveOperation) (bool, error) {
	p, err := e.principal(ctx, userID)
	if err != nil {
		return false, err
	}
	return CanPerformSensitiveOperation(p, op)
}

func (e *Engine) principal(ctx context.Context, userID int64) (Principal, error) {
	if e.cache != nil {
		if p, ok := e.cache.Get(ctx, userID); ok {
			return p, nil
		}
	}
	// Concurrent checks for the same user share one load. The shared load
	// runs on a detached context so the first caller bailing out does not
	// fail every coalesced waiter.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := e.group.Do(fmt.Sprintf("principal:%d", userID), func() (any, error) {
		// The generation token is captured before the store read. An
		// invalidation landing between the two rotates the token and the
		// conditional write below drops the now-stale snapshot.
		gen, cacheable := "", false
		if e.cache != nil {
			gen, cacheable = e.cache.Generation(loadCtx, userID)
		}
		p, err := e.store.LoadPrincipal(loadCtx, userID)
		if err != nil {
			return Principal{}, err
		}
		if cacheable {
			e.cache.SetIfGeneration(loadCtx, p, gen)
		}
		return p, nil
	})
	if err != nil {
		return Principal{}, err
	}
	return v.(Principal), nil
}
