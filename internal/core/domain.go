package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionKind = "ingreso"
	Expense TransactionKind = "gasto"
)

// Notification kinds. The notifications table carries a CHECK constraint
// over this exact set; the store rejects anything else.
const (
	KindTransaction         NotificationKind = "transaccion"
	KindBudgetCreated       NotificationKind = "presupuesto"
	KindBudgetUpdated       NotificationKind = "presupuesto_actualizado"
	KindBudgetExceeded      NotificationKind = "exceso_presupuesto"
	KindPaymentAlert        NotificationKind = "alerta_pago"
	KindFixedPaymentCreated NotificationKind = "pago_fijo_creado"
)

type (
	TransactionKind  string
	NotificationKind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a single ledger entry. Entries are append-only: the
	// engine creates them exactly once on acceptance and never mutates them.
	Transaction struct {
		ID          int64
		UserID      int64
		CategoryID  int64
		Amount      Money
		Kind        TransactionKind
		OccurredOn  Date
		Description string
	}

	// Budget is a monthly spending ceiling for one user/category pair.
	// Several rows may exist for the same (user, category, month, year);
	// the effective one is the row with the greatest id.
	Budget struct {
		ID         int64
		UserID     int64
		CategoryID int64
		Ceiling    Money
		Month      int
		Year       int
	}

	// Notification is an in-app message record. It is purely informational,
	// never a source of truth for financial state.
	Notification struct {
		ID      int64
		UserID  int64
		Message string
		Medium  string
		Kind    NotificationKind
		Read    bool
		SentAt  time.Time
	}

	// FixedPayment is a recurring monthly obligation the alert worker
	// watches. LastAlertedOn records the pay date most recently alerted,
	// so one due payment produces one alert per cycle.
	FixedPayment struct {
		ID            int64
		UserID        int64
		Name          string
		Amount        Money
		PayDay        int
		Active        bool
		LastAlertedOn Date
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidKind     = errors.New("invalid transaction kind")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidYear     = errors.New("invalid year")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidPayDay   = errors.New("invalid pay day")
	ErrMissingUser     = errors.New("missing user id")
	ErrMissingCategory = errors.New("missing category id")
	ErrEmptyName       = errors.New("empty name")
	ErrLongDescription = errors.New("description too long")
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the calendar month (1-12).
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (k TransactionKind) Valid() bool {
	return k == Income || k == Expense
}

func (k NotificationKind) Valid() bool {
	switch k {
	case KindTransaction, KindBudgetCreated, KindBudgetUpdated,
		KindBudgetExceeded, KindPaymentAlert, KindFixedPaymentCreated:
		return true
	default:
		return false
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.UserID <= 0 {
		return ErrMissingUser
	}
	if t.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.OccurredOn.Validate(); err != nil {
		return err
	}
	if len(t.Description) > 200 {
		return fmt.Errorf("%w (max 200 characters)", ErrLongDescription)
	}
	return nil
}

func (b Budget) Validate() error {
	if b.UserID <= 0 {
		return ErrMissingUser
	}
	if b.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if err := b.Ceiling.Validate(); err != nil {
		return err
	}
	if b.Month < 1 || b.Month > 12 {
		return ErrInvalidMonth
	}
	if b.Year < 1 {
		return ErrInvalidYear
	}
	return nil
}

func (p FixedPayment) Validate() error {
	if p.UserID <= 0 {
		return ErrMissingUser
	}
	if len(strings.TrimSpace(p.Name)) == 0 {
		return ErrEmptyName
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if p.PayDay < 1 || p.PayDay > 31 {
		return ErrInvalidPayDay
	}
	return nil
}
