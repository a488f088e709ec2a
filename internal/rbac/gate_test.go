package rbac

import (
	"errors"
	"testing"
)

func TestSensitiveGateRequiresTopTier(t *testing.T) {
	topTier := Principal{UserID: 1, Roles: []Role{{
		Code: "SUPER", Kind: RoleKindSystem, IsTopTier: true,
		Permissions: []Permission{{Name: WildcardAll}},
	}}}
	for _, op := range SensitiveOperations() {
		ok, err := CanPerformSensitiveOperation(topTier, op)
		if err != nil {
			t.Fatalf("gate %q: %v", op, err)
		}
		if !ok {
			t.Fatalf("expected top tier to pass gate for %q", op)
		}
	}
}

func TestSensitiveGateIgnoresPermissionUnion(t *testing.T) {
	// A full wildcard on a non-top-tier role must not pass the gate.
	admin := Principal{UserID: 2, Roles: []Role{{
		Code: "ADM", Kind: RoleKindSystem, IsTopTier: false,
		Permissions: []Permission{{Name: WildcardAll}},
	}}}
	ok, err := CanPerformSensitiveOperation(admin, OpDeleteRole)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if ok {
		t.Fatalf("*:* grant must not unlock sensitive operations")
	}

	// Same for a direct *:* grant.
	granted := Principal{UserID: 3, Direct: []string{WildcardAll}}
	ok, err = CanPerformSensitiveOperation(granted, OpModifyPermissions)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	if ok {
		t.Fatalf("direct *:* grant must not unlock sensitive operations")
	}
}

func TestSensitiveGateRejectsUnknownOperation(t *testing.T) {
	p := Principal{UserID: 1, Roles: []Role{{IsTopTier: true}}}
	if _, err := CanPerformSensitiveOperation(p, SensitiveOperation("drop_database")); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
}

func TestSensitiveGateStillPassesPermissionChecks(t *testing.T) {
	// The top tier passes both surfaces: gate via tier, checks via *:*.
	topTier := Principal{UserID: 1, Roles: []Role{{
		Code: "SUPER", Kind: RoleKindSystem, IsTopTier: true,
		Permissions: []Permission{{Name: WildcardAll}},
	}}}
	ok, err := HasPermission(topTier, "settings:manage")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatalf("expected wildcard to allow permission check")
	}
}
