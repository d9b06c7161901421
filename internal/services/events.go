package services

import (
	"context"
	"strconv"

	"github.com/taskhub/apiserver/internal/logging"
	"github.com/taskhub/apiserver/internal/mq"
)

const (
	EventUserRegistered    = "user.registered"
	EventTaskCreated       = "task.created"
	EventTaskUpdated       = "task.updated"
	EventTaskDeleted       = "task.deleted"
	EventTaskAttachmentSet = "task.attachment_set"
)

// EventPublisher is satisfied by *mq.MQ.
type EventPublisher interface {
	PublishEvent(ctx context.Context, channel, eventType, subject string, payload any) (string, error)
}

var _ EventPublisher = (*mq.MQ)(nil)

// publishEvent fires an event after a committed write. Failures are logged
// and never surface to the caller.
func publishEvent(ctx context.Context, events EventPublisher, log logging.Logger, channel, eventType, subject string, payload any) {
	if events == nil {
		return
	}
	id, err := events.PublishEvent(ctx, channel, eventType, subject, payload)
	if err != nil {
		log.Warn(ctx, "publish event failed", "channel", channel, "event_type", eventType, "subject", subject, "error", err)
		return
	}
	log.Debug(ctx, "event published", "channel", channel, "event_type", eventType, "subject", subject, "message_id", id)
}

func userSubject(id int) string { return "user:" + strconv.Itoa(id) }

func taskSubject(id int) string { return "task:" + strconv.Itoa(id) }
