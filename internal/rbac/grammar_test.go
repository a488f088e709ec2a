package rbac

import "testing"

func TestValidPermissionName(t *testing.T) {
	valid := []string{
		"users:create",
		"users:read",
		"roles:manage",
		"user_financials:delete",
		"reports:*",
		"*:*",
	}
	for _, name := range valid {
		if !ValidPermissionName(name) {
			t.Fatalf("expected %q to be valid", name)
		}
	}

	invalid := []string{
		"",
		"users",
		"users:",
		":read",
		"Users:read",
		"users:write",
		"users:READ",
		"users:read:extra",
		"users.financials:read",
		"*:read",
		"users-admin:read",
	}
	for _, name := range invalid {
		if ValidPermissionName(name) {
			t.Fatalf("expected %q to be invalid", name)
		}
	}
}

func TestSplitPermissionName(t *testing.T) {
	resource, action, err := SplitPermissionName("bookings:update")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if resource != "bookings" || action != "update" {
		t.Fatalf("unexpected parts %q %q", resource, action)
	}

	if _, _, err := SplitPermissionName("bookings"); err == nil {
		t.Fatalf("expected error for malformed name")
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		granted  string
		resource string
		action   string
		want     bool
	}{
		{"users:read", "users", "read", true},
		{"users:read", "users", "update", false},
		{"users:read", "roles", "read", false},
		{"users:*", "users", "delete", true},
		{"users:*", "roles", "delete", false},
		{"*:*", "anything", "manage", true},
		{"garbage", "users", "read", false},
	}
	for _, tc := range cases {
		if got := matches(tc.granted, tc.resource, tc.action); got != tc.want {
			t.Fatalf("matches(%q, %q, %q) = %v, want %v", tc.granted, tc.resource, tc.action, got, tc.want)
		}
	}
}
