package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"lana/internal/amqp"
	"lana/internal/core"
	"lana/internal/storage"
)

// PaymentStore is the fixed-payment persistence the payment service needs.
type PaymentStore interface {
	CreateFixedPayment(ctx context.Context, p core.FixedPayment) (int64, error)
	ListFixedPaymentsByUser(ctx context.Context, userID int64) ([]core.FixedPayment, error)
}

var _ PaymentStore = (*storage.SQLiteRepository)(nil)

// PaymentService manages recurring fixed payments.
type PaymentService struct {
	store     PaymentStore
	publisher NotificationPublisher

	wg sync.WaitGroup
}

func NewPaymentService(store PaymentStore, publisher NotificationPublisher) *PaymentService {
	return &PaymentService{store: store, publisher: publisher}
}

// Create records a fixed payment and announces it to the owner.
func (s *PaymentService) Create(ctx context.Context, p core.FixedPayment) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	id, err := s.store.CreateFixedPayment(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("create fixed payment: %w", err)
	}

	s.dispatch(ctx, amqp.NewNotificationMessage(p.UserID, core.KindFixedPaymentCreated,
		"Pago fijo creado",
		fmt.Sprintf("Pago fijo %q de %s cada día %d del mes", p.Name, p.Amount, p.PayDay)))

	return id, nil
}

// List returns a user's fixed payments.
func (s *PaymentService) List(ctx context.Context, userID int64) ([]core.FixedPayment, error) {
	payments, err := s.store.ListFixedPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list fixed payments: %w", err)
	}
	return payments, nil
}

func (s *PaymentService) dispatch(ctx context.Context, msg *amqp.NotificationMessage) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Notification publisher not available, skipping message",
			"kind", msg.Kind,
			"user_id", msg.UserID)
		return
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.publisher.PublishNotification(bg, msg); err != nil {
			slog.ErrorContext(bg, "Failed to publish notification",
				"kind", msg.Kind,
				"user_id", msg.UserID,
				"error", err)
		}
	}()
}

// Wait blocks until all in-flight notification publishes finish.
func (s *PaymentService) Wait() {
	s.wg.Wait()
}
