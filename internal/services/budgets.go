package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"lana/internal/amqp"
	"lana/internal/core"
)

// BudgetService creates and updates monthly budgets and announces the
// change to the owner.
type BudgetService struct {
	budgets   BudgetStore
	publisher NotificationPublisher

	wg sync.WaitGroup
}

// BudgetResult reports where an upsert landed.
type BudgetResult struct {
	ID      int64
	Updated bool
}

func NewBudgetService(budgets BudgetStore, publisher NotificationPublisher) *BudgetService {
	return &BudgetService{budgets: budgets, publisher: publisher}
}

// Upsert stores a budget, updating the effective row for its key when one
// exists. The notification is fire-and-forget.
func (s *BudgetService) Upsert(ctx context.Context, b core.Budget) (BudgetResult, error) {
	if err := b.Validate(); err != nil {
		return BudgetResult{}, err
	}

	id, updated, err := s.budgets.UpsertBudget(ctx, b)
	if err != nil {
		return BudgetResult{}, fmt.Errorf("upsert budget: %w", err)
	}

	kind := core.KindBudgetCreated
	subject := "Presupuesto creado"
	if updated {
		kind = core.KindBudgetUpdated
		subject = "Presupuesto actualizado"
	}
	s.dispatch(ctx, amqp.NewNotificationMessage(b.UserID, kind, subject,
		fmt.Sprintf("Presupuesto de %s para la categoría %d (%02d/%d)",
			b.Ceiling, b.CategoryID, b.Month, b.Year)))

	return BudgetResult{ID: id, Updated: updated}, nil
}

func (s *BudgetService) dispatch(ctx context.Context, msg *amqp.NotificationMessage) {
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
func (s *BudgetService) Wait() {
	s.wg.Wait()
}
