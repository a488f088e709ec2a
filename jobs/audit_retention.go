package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ten-platform/ten/internal/audit"
)

const (
	// TaskAuditRetention triggers the nightly audit log sweep.
	TaskAuditRetention = "audit:retention"
)

// AuditRetentionPayload carries scheduling metadata.
type AuditRetentionPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewAuditRetentionTask constructs an Asynq task for the retention sweep.
func NewAuditRetentionTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(AuditRetentionPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, body, asynq.Queue(QueueDefault)), nil
}

// NewAuditRetentionHandler deletes audit rows older than the retention window.
func NewAuditRetentionHandler(svc *audit.Service, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditRetentionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		removed, err := svc.Prune(ctx, retention, time.Now().UTC())
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("audit retention sweep finished",
				slog.Int64("removed", removed),
				slog.Time("scheduled_for", payload.ScheduledFor))
		}
		return nil
	}
}
