package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"lana/internal/core"
)

// NotificationMessage is the queue payload for one notification. It carries
// everything the worker needs to record the in-app row and send the email,
// so the worker never reads the ledger.
type NotificationMessage struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"usuario_id"`
	Kind      string    `json:"tipo"`
	Subject   string    `json:"asunto"`
	Message   string    `json:"mensaje"`
	Medium    string    `json:"medio"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNotificationMessage builds a message with a fresh UUID and timestamp.
func NewNotificationMessage(userID int64, kind core.NotificationKind, subject, message string) *NotificationMessage {
	return &NotificationMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      string(kind),
		Subject:   subject,
		Message:   message,
		Medium:    "email",
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NotificationMessageFromJSON creates a message from JSON bytes
func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
