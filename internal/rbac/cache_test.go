package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*PrincipalCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPrincipalCache(client, time.Minute, nil), mr
}

func TestPrincipalCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, 7); ok {
		t.Fatalf("expected miss on empty cache")
	}

	p := Principal{UserID: 7, Direct: []string{"users:read"}, Roles: []Role{{ID: 1, Code: "EDT", Kind: RoleKindRegular}}}
	cache.Set(ctx, p)

	got, ok := cache.Get(ctx, 7)
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if got.UserID != 7 || len(got.Direct) != 1 || got.Direct[0] != "users:read" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if len(got.Roles) != 1 || got.Roles[0].Code != "EDT" {
		t.Fatalf("unexpected roles %+v", got.Roles)
	}
}

func TestPrincipalCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, Principal{UserID: 7})
	cache.Set(ctx, Principal{UserID: 8})
	if err := cache.Invalidate(ctx, 7, 8); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok := cache.Get(ctx, 7); ok {
		t.Fatalf("expected miss after invalidate")
	}
	if _, ok := cache.Get(ctx, 8); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestPrincipalCacheDropsCorruptEntries(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if err := mr.Set("rbac:principal:7", "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}
	if _, ok := cache.Get(ctx, 7); ok {
		t.Fatalf("corrupt entry must not be served")
	}
	if mr.Exists("rbac:principal:7") {
		t.Fatalf("corrupt entry must be deleted")
	}
}

func TestEngineUsesCacheUntilInvalidated(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	store := &stubPrincipalStore{principal: Principal{UserID: 7, Direct: []string{"users:read"}}}
	engine := NewEngine(store, cache)

	if _, err := engine.Check(ctx, 7, "users:read"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, err := engine.Check(ctx, 7, "users:read"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected one store load with warm cache, got %d", store.calls)
	}

	if err := cache.Invalidate(ctx, 7); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := engine.Check(ctx, 7, "users:read"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d loads", store.calls)
	}
}

func TestServiceInvalidatesCacheOnMutation(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	store := newMemStore()
	reg := NewRegistry(store)
	if _, err := reg.Register(ctx, "content", "read", ""); err != nil {
		t.Fatalf("seed permission: %v", err)
	}
	svc := NewService(store, reg, cache, nil, nil)
	engine := NewEngine(store, cache)
	store.addUser(7)

	role, err := svc.CreateRole(ctx, 1, "EDT", "Editor", "", []string{"content:read"})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	// Warm the cache with the pre-assignment snapshot.
	if ok, _ := engine.Check(ctx, 7, "content:read"); ok {
		t.Fatalf("expected deny before assignment")
	}
	if err := svc.AssignRole(ctx, 1, 7, role.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	ok, err := engine.Check(ctx, 7, "content:read")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatalf("stale snapshot served after mutation")
	}
}

func TestSetIfGenerationRejectsRotatedToken(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	p := Principal{UserID: 7, Direct: []string{"users:read"}}

	gen, ok := cache.Generation(ctx, 7)
	if !ok {
		t.Fatalf("generation read failed")
	}
	cache.SetIfGeneration(ctx, p, gen)
	if _, ok := cache.Get(ctx, 7); !ok {
		t.Fatalf("expected write with current token")
	}

	gen, ok = cache.Generation(ctx, 7)
	if !ok {
		t.Fatalf("generation read failed")
	}
	if err := cache.Invalidate(ctx, 7); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	cache.SetIfGeneration(ctx, p, gen)
	if _, ok := cache.Get(ctx, 7); ok {
		t.Fatalf("write with rotated token must be dropped")
	}
}

func TestInvalidateDuringLoadKeepsRevokedSnapshotOut(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	store := &stubPrincipalStore{principal: Principal{UserID: 1, Direct: []string{"users:read"}}}
	engine := NewEngine(store, cache)

	// The load below captures the granted snapshot; the grant is then
	// revoked and the cache invalidated before the load returns.
	store.onLoad = func() {
		store.principal = Principal{UserID: 1}
		if err := cache.Invalidate(ctx, 1); err != nil {
			t.Fatalf("invalidate: %v", err)
		}
	}
	ok, err := engine.Check(ctx, 1, "users:read")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatalf("in-flight check should still see its pre-revoke snapshot")
	}
	store.onLoad = nil

	// The racing load must not have cached the pre-revoke snapshot.
	ok, err = engine.Check(ctx, 1, "users:read")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatalf("revoked permission still allowed from cache after invalidate")
	}
	if store.calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d loads", store.calls)
	}
}

func TestUpdateRolePermissionsInvalidatesMemberAssignedMidFlight(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	store := newMemStore()
	reg := NewRegistry(store)
	for _, name := range [][2]string{{"content", "read"}, {"content", "update"}} {
		if _, err := reg.Register(ctx, name[0], name[1], ""); err != nil {
			t.Fatalf("seed permission: %v", err)
		}
	}
	svc := NewService(store, reg, cache, nil, nil)
	engine := NewEngine(store, cache)
	store.addUser(7)

	role, err := svc.CreateRole(ctx, 1, "EDT", "Editor", "", []string{"content:read"})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	// User 7 picks up the role just before the swap commits, and their
	// next request warms the cache with the old permission set.
	store.onReplace = func() {
		store.onReplace = nil
		if err := svc.AssignRole(ctx, 1, 7, role.ID); err != nil {
			t.Fatalf("assign: %v", err)
		}
		if ok, err := engine.Check(ctx, 7, "content:read"); err != nil || !ok {
			t.Fatalf("warm check: ok=%v err=%v", ok, err)
		}
	}
	if err := svc.UpdateRolePermissions(ctx, 1, role.ID, []string{"content:update"}); err != nil {
		t.Fatalf("update permissions: %v", err)
	}

	ok, err := engine.Check(ctx, 7, "content:update")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatalf("member assigned during the mutation kept a stale snapshot")
	}
}

func TestDeleteRoleInvalidatesMemberAssignedMidFlight(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	store := newMemStore()
	reg := NewRegistry(store)
	if _, err := reg.Register(ctx, "content", "read", ""); err != nil {
		t.Fatalf("seed permission: %v", err)
	}
	svc := NewService(store, reg, cache, nil, nil)
	engine := NewEngine(store, cache)
	store.addUser(7)

	role, err := svc.CreateRole(ctx, 1, "EDT", "Editor", "", []string{"content:read"})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	store.onDelete = func() {
		store.onDelete = nil
		if err := svc.AssignRole(ctx, 1, 7, role.ID); err != nil {
			t.Fatalf("assign: %v", err)
		}
		if ok, err := engine.Check(ctx, 7, "content:read"); err != nil || !ok {
			t.Fatalf("warm check: ok=%v err=%v", ok, err)
		}
	}
	if err := svc.DeleteRole(ctx, 1, role.ID); err != nil {
		t.Fatalf("delete role: %v", err)
	}

	ok, err := engine.Check(ctx, 7, "content:read")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatalf("deleted role still grants from cache")
	}
}
