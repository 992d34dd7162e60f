package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"lana/internal/amqp"
	"lana/internal/core"
)

type fakeRecorder struct {
	notifications []core.Notification
	err           error
}

func (f *fakeRecorder) CreateNotification(ctx context.Context, n core.Notification) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.notifications = append(f.notifications, n)
	return int64(len(f.notifications)), nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, userID int64, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, subject)
	return nil
}

func TestDispatcherRecordsAndMails(t *testing.T) {
	recorder := &fakeRecorder{}
	mailer := &fakeMailer{}
	d := NewDispatcher(recorder, mailer)

	msg := &amqp.NotificationMessage{
		ID:        "msg-1",
		UserID:    7,
		Kind:      "exceso_presupuesto",
		Subject:   "Presupuesto excedido",
		Message:   "Tu gasto supera el presupuesto de la categoría",
		Medium:    "email",
		Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if len(recorder.notifications) != 1 {
		t.Fatalf("recorded %d notifications, want 1", len(recorder.notifications))
	}
	n := recorder.notifications[0]
	if n.UserID != 7 || n.Kind != core.KindBudgetExceeded || n.Medium != "email" {
		t.Errorf("recorded notification = %+v", n)
	}
	if !n.SentAt.Equal(msg.Timestamp) {
		t.Errorf("SentAt = %v, want message timestamp %v", n.SentAt, msg.Timestamp)
	}

	if len(mailer.sent) != 1 || mailer.sent[0] != "Presupuesto excedido" {
		t.Errorf("sent emails = %v", mailer.sent)
	}
}

func TestDispatcherSwallowsRecorderError(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("CHECK constraint failed")}
	mailer := &fakeMailer{}
	d := NewDispatcher(recorder, mailer)

	msg := &amqp.NotificationMessage{ID: "msg-2", UserID: 1, Kind: "tipo_raro", Subject: "s", Message: "m"}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v, want nil (best-effort)", err)
	}

	// Email still goes out even when the row could not be recorded.
	if len(mailer.sent) != 1 {
		t.Errorf("sent %d emails, want 1", len(mailer.sent))
	}
}

func TestDispatcherSwallowsMailerError(t *testing.T) {
	recorder := &fakeRecorder{}
	d := NewDispatcher(recorder, &fakeMailer{err: errors.New("gmail unavailable")})

	msg := &amqp.NotificationMessage{ID: "msg-3", UserID: 1, Kind: "transaccion", Subject: "s", Message: "m"}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v, want nil (best-effort)", err)
	}
	if len(recorder.notifications) != 1 {
		t.Errorf("recorded %d notifications, want 1", len(recorder.notifications))
	}
}

func TestDispatcherNilMailer(t *testing.T) {
	recorder := &fakeRecorder{}
	d := NewDispatcher(recorder, nil)

	msg := &amqp.NotificationMessage{ID: "msg-4", UserID: 1, Kind: "presupuesto", Subject: "s", Message: "m"}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v, want nil", err)
	}
	if len(recorder.notifications) != 1 {
		t.Errorf("recorded %d notifications, want 1", len(recorder.notifications))
	}
}

func TestParseRecipients(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[int64]string
		wantErr bool
	}{
		{
			name: "two entries",
			raw:  "1=ana@example.com, 2=luis@example.com",
			want: map[int64]string{1: "ana@example.com", 2: "luis@example.com"},
		},
		{
			name: "empty",
			raw:  "",
			want: map[int64]string{},
		},
		{
			name:    "missing separator",
			raw:     "ana@example.com",
			wantErr: true,
		},
		{
			name:    "bad user id",
			raw:     "x=ana@example.com",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRecipients(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseRecipients(%q) succeeded, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRecipients(%q) error = %v", tt.raw, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseRecipients(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for id, addr := range tt.want {
				if got[id] != addr {
					t.Errorf("recipient[%d] = %q, want %q", id, got[id], addr)
				}
			}
		})
	}
}

func TestBuildRFC822(t *testing.T) {
	raw := buildRFC822("lana@example.com", "ana@example.com", "Alerta de pago", "Tu pago vence mañana")

	for _, want := range []string{
		"From: lana@example.com\r\n",
		"To: ana@example.com\r\n",
		"Subject: Alerta de pago\r\n",
		"charset=\"UTF-8\"",
		"\r\n\r\nTu pago vence mañana",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q:\n%s", want, raw)
		}
	}
}
