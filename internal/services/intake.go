package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"lana/internal/amqp"
	"lana/internal/core"
)

// IntakeService runs the transaction submission pipeline: validate, look up
// the effective budget, sum spending to date, evaluate, persist or reject,
// then dispatch notifications without blocking the caller.
type IntakeService struct {
	ledger    LedgerStore
	budgets   BudgetStore
	publisher NotificationPublisher
	locks     *KeyLock

	wg sync.WaitGroup
}

// SubmitResult is the synchronous outcome of one submission. Transaction
// carries the persisted id only when the decision accepted.
type SubmitResult struct {
	Transaction core.Transaction
	Decision    core.Decision
}

func NewIntakeService(ledger LedgerStore, budgets BudgetStore, publisher NotificationPublisher) *IntakeService {
	return &IntakeService{
		ledger:    ledger,
		budgets:   budgets,
		publisher: publisher,
		locks:     NewKeyLock(),
	}
}

// Submit processes one transaction. Rejection is a business outcome, not an
// error: the caller distinguishes them through Decision.Outcome. Submissions
// for the same (user, category, month, year) key are serialized so two
// concurrent expenses cannot both read the same spent total and slip past
// the ceiling together.
func (s *IntakeService) Submit(ctx context.Context, t core.Transaction) (SubmitResult, error) {
	if err := t.Validate(); err != nil {
		return SubmitResult{}, err
	}

	// Income is recorded as-is; only expenses are evaluated.
	if t.Kind == core.Income {
		saved, err := s.ledger.CreateTransaction(ctx, t)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("persist transaction: %w", err)
		}
		s.dispatch(ctx, amqp.NewNotificationMessage(saved.UserID, core.KindTransaction,
			"Transacción registrada",
			fmt.Sprintf("Ingreso de %s registrado en la categoría %d", saved.Amount, saved.CategoryID)))
		return SubmitResult{
			Transaction: saved,
			Decision:    core.Decision{Outcome: core.AcceptClean},
		}, nil
	}

	year, month := t.OccurredOn.Year(), t.OccurredOn.Month()

	key := fmt.Sprintf("%d:%d:%d:%d", t.UserID, t.CategoryID, year, month)
	unlock := s.locks.Lock(key)
	defer unlock()

	budget, err := s.budgets.EffectiveBudget(ctx, t.UserID, t.CategoryID, year, month)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("effective budget: %w", err)
	}

	spent, err := s.ledger.SumExpenses(ctx, t.UserID, t.CategoryID, year, month)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("sum expenses: %w", err)
	}

	var ceiling *core.Money
	if budget != nil {
		ceiling = &budget.Ceiling
	}

	decision, err := core.Evaluate(t.Amount, ceiling, spent)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("evaluate transaction: %w", err)
	}

	if decision.Outcome == core.Reject {
		slog.InfoContext(ctx, "Transaction rejected, budget exceeded",
			"user_id", t.UserID,
			"category_id", t.CategoryID,
			"amount_cents", t.Amount.Cents,
			"spent_cents", decision.SpentBefore.Cents,
			"ceiling_cents", decision.Ceiling.Cents)
		s.dispatch(ctx, amqp.NewNotificationMessage(t.UserID, core.KindBudgetExceeded,
			"Presupuesto excedido",
			fmt.Sprintf("El gasto de %s supera el presupuesto de %s en la categoría %d (gastado: %s)",
				t.Amount, decision.Ceiling, t.CategoryID, decision.SpentBefore)))
		return SubmitResult{Transaction: t, Decision: decision}, nil
	}

	saved, err := s.ledger.CreateTransaction(ctx, t)
	if err != nil {
		// Nothing was persisted, so no notification is attempted.
		return SubmitResult{}, fmt.Errorf("persist transaction: %w", err)
	}

	s.dispatch(ctx, amqp.NewNotificationMessage(saved.UserID, core.KindTransaction,
		"Transacción registrada",
		fmt.Sprintf("Gasto de %s registrado en la categoría %d", saved.Amount, saved.CategoryID)))

	if decision.Outcome == core.AcceptWarn {
		s.dispatch(ctx, amqp.NewNotificationMessage(saved.UserID, core.KindPaymentAlert,
			"Cerca del límite del presupuesto",
			fmt.Sprintf("Llevas gastado %s de %s en la categoría %d",
				decision.SpentAfter, decision.Ceiling, saved.CategoryID)))
	}

	return SubmitResult{Transaction: saved, Decision: decision}, nil
}

// dispatch hands a message to the queue in the background. The submission
// response never waits on it, and a publish failure only gets logged.
func (s *IntakeService) dispatch(ctx context.Context, msg *amqp.NotificationMessage) {
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

// Wait blocks until all in-flight notification publishes finish. Called on
// shutdown so queued messages are not lost to process exit.
func (s *IntakeService) Wait() {
	s.wg.Wait()
}
