package notify

import (
	"context"
	"log/slog"
	"time"

	"lana/internal/amqp"
	"lana/internal/core"
)

// Recorder persists in-app notification rows.
type Recorder interface {
	CreateNotification(ctx context.Context, n core.Notification) (int64, error)
}

// Dispatcher turns queued notification messages into an in-app row and an
// email. Both sides are best-effort: a failure is logged and the message is
// still considered handled, so the consumer always acks and a bad message
// never loops back through the queue.
type Dispatcher struct {
	recorder Recorder
	mailer   Mailer
}

func NewDispatcher(recorder Recorder, mailer Mailer) *Dispatcher {
	return &Dispatcher{recorder: recorder, mailer: mailer}
}

// Handle processes one message. It always returns nil.
func (d *Dispatcher) Handle(ctx context.Context, msg *amqp.NotificationMessage) error {
	sentAt := msg.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	if d.recorder != nil {
		_, err := d.recorder.CreateNotification(ctx, core.Notification{
			UserID:  msg.UserID,
			Message: msg.Message,
			Medium:  msg.Medium,
			Kind:    core.NotificationKind(msg.Kind),
			SentAt:  sentAt,
		})
		if err != nil {
			// Unknown kinds hit the table's CHECK constraint and land here.
			slog.ErrorContext(ctx, "Failed to record notification",
				"message_id", msg.ID,
				"user_id", msg.UserID,
				"kind", msg.Kind,
				"error", err)
		}
	}

	if d.mailer == nil {
		slog.InfoContext(ctx, "No mailer configured, skipping email",
			"message_id", msg.ID,
			"user_id", msg.UserID)
		return nil
	}

	if err := d.mailer.Send(ctx, msg.UserID, msg.Subject, msg.Message); err != nil {
		slog.ErrorContext(ctx, "Failed to send notification email",
			"message_id", msg.ID,
			"user_id", msg.UserID,
			"kind", msg.Kind,
			"error", err)
	}

	return nil
}
