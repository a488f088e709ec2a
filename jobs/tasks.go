package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendInvite is the task type for sending invitation emails.
	TaskTypeSendInvite = "mail:invite"
)

// SendInvitePayload describes the information required to send an invitation.
type SendInvitePayload struct {
	To       string `json:"to"`
	Name     string `json:"name"`
	RoleName string `json:"role_name"`
}

// MailConfig holds SMTP settings for outbound mail.
type MailConfig struct {
	Host string
	Port int
	From string
}

// NewSendInviteTask constructs an Asynq task.
func NewSendInviteTask(payload SendInvitePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendInvite, data), nil
}

// NewSendInviteHandler returns the handler for TaskTypeSendInvite tasks.
func NewSendInviteHandler(cfg MailConfig) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendInvitePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: You have been invited\r\n\r\nHi %s,\r\n\r\nAn administrator granted you the %s role. Sign in to get started.\r\n",
			cfg.From, payload.To, payload.Name, payload.RoleName)
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		return smtp.SendMail(addr, nil, cfg.From, []string{payload.To}, []byte(msg))
	}
}
