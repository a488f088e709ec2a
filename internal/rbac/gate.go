package rbac

import "fmt"

// CanPerformSensitiveOperation reports whether the principal may perform a
// sensitive operation. Only membership in the single top-tier role grants
// access; the permission union is deliberately bypassed, so not even a
// `*:*` grant unlocks these operations. This keeps a mistakenly broad
// wildcard on a lower-tier role from escalating into role or permission
// administration.
func CanPerformSensitiveOperation(p Principal, op SensitiveOperation) (bool, error) {
	if !op.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	for _, role := range p.Roles {
		if role.IsTopTier {
			return true, nil
		}
	}
	return false, nil
}
