package rbac

import (
	"regexp"
	"strings"
)

// Permission names follow a small closed grammar validated once at the
// boundary: `resource:action` where action is a concrete verb or the
// reserved wildcard `*`, plus the fully wildcarded `*:*`.
const (
	// ActionWildcard grants every action on a resource.
	ActionWildcard = "*"
	// WildcardAll grants every permission.
	WildcardAll = "*:*"
)

var permissionNameRE = regexp.MustCompile(`^[a-z_]+:(create|read|update|delete|manage|\*)$|^\*:\*$`)

// ValidPermissionName reports whether name parses under the grammar.
// Wildcard forms are valid names; they are acceptable as grants only.
func ValidPermissionName(name string) bool {
	return permissionNameRE.MatchString(name)
}

// SplitPermissionName parses name into its resource and action parts.
func SplitPermissionName(name string) (resource, action string, err error) {
	if !ValidPermissionName(name) {
		return "", "", ErrInvalidPermissionFormat
	}
	parts := strings.SplitN(name, ":", 2)
	return parts[0], parts[1], nil
}

// PermissionName joins a resource and action into a canonical name.
func PermissionName(resource, action string) string {
	return resource + ":" + action
}

// matches reports whether a granted permission satisfies a concrete
// resource:action query under lazy wildcard resolution. Wildcards are
// resolved logically at check time, never expanded at grant time, so
// grants stay correct as the registry grows.
func matches(granted, resource, action string) bool {
	if granted == WildcardAll {
		return true
	}
	gr, ga, err := SplitPermissionName(granted)
	if err != nil {
		// Malformed grants never match; they cannot enter through the
		// registry, but stored data is not trusted blindly.
		return false
	}
	if gr != resource {
		return false
	}
	return ga == action || ga == ActionWildcard
}
