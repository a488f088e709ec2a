package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// TaskRBACIntegrity scans for assignments pointing at missing rows.
	TaskRBACIntegrity = "rbac:integrity"
)

// RBACIntegrityPayload carries scheduling metadata.
type RBACIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewRBACIntegrityTask constructs an Asynq task for the integrity scan.
func NewRBACIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(RBACIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRBACIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// NewRBACIntegrityHandler reports role assignments and grants whose
// referenced user, role or permission no longer exists. Foreign keys make
// this unreachable in normal operation; the scan guards bulk imports and
// manual database surgery.
func NewRBACIntegrityHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RBACIntegrityPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		var orphanedRoles, orphanedGrants int64
		err := pool.QueryRow(ctx, `
			SELECT
				(SELECT COUNT(*) FROM user_roles ur
				 WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = ur.user_id)
				    OR NOT EXISTS (SELECT 1 FROM roles r WHERE r.id = ur.role_id)),
				(SELECT COUNT(*) FROM user_permissions up
				 WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = up.user_id)
				    OR NOT EXISTS (SELECT 1 FROM permissions p WHERE p.id = up.permission_id))
		`).Scan(&orphanedRoles, &orphanedGrants)
		if err != nil {
			return err
		}
		if logger != nil {
			if orphanedRoles > 0 || orphanedGrants > 0 {
				logger.Warn("rbac integrity scan found orphans",
					slog.Int64("orphaned_role_assignments", orphanedRoles),
					slog.Int64("orphaned_grants", orphanedGrants))
			} else {
				logger.Info("rbac integrity scan clean")
			}
		}
		return nil
	}
}
