package services

import (
	"context"

	"lana/internal/amqp"
	"lana/internal/core"
	"lana/internal/storage"
)

// LedgerStore is the transaction persistence the intake service needs.
type LedgerStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	SumExpenses(ctx context.Context, userID, categoryID int64, year, month int) (core.Money, error)
}

// BudgetStore is the budget persistence the services need.
type BudgetStore interface {
	EffectiveBudget(ctx context.Context, userID, categoryID int64, year, month int) (*core.Budget, error)
	UpsertBudget(ctx context.Context, b core.Budget) (int64, bool, error)
}

// FixedPaymentStore is the fixed-payment persistence the alert processor needs.
type FixedPaymentStore interface {
	ActiveFixedPayments(ctx context.Context) ([]core.FixedPayment, error)
	MarkFixedPaymentAlerted(ctx context.Context, id int64, payDate core.Date) error
}

// NotificationPublisher hands a notification message to the queue.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, msg *amqp.NotificationMessage) error
}

// Ensure interface conformance
var (
	_ LedgerStore           = (*storage.SQLiteRepository)(nil)
	_ BudgetStore           = (*storage.SQLiteRepository)(nil)
	_ FixedPaymentStore     = (*storage.SQLiteRepository)(nil)
	_ NotificationPublisher = (*amqp.Client)(nil)
)
