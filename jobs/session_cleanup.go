package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ten-platform/ten/internal/auth"
)

const (
	// TaskSessionCleanup prunes expired session rows.
	TaskSessionCleanup = "sessions:cleanup"
)

// SessionCleanupPayload carries scheduling metadata.
type SessionCleanupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSessionCleanupTask constructs an Asynq task for session cleanup.
func NewSessionCleanupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SessionCleanupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionCleanup, body, asynq.Queue(QueueDefault)), nil
}

// NewSessionCleanupHandler removes rows for sessions that expired.
func NewSessionCleanupHandler(svc *auth.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SessionCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		removed, err := svc.PruneSessions(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("session cleanup finished", slog.Int64("removed", removed))
		}
		return nil
	}
}
