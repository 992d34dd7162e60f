package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lana/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateTransaction appends a ledger entry and returns it with its id set.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, category_id, amount_cents, kind, occurred_on, month, year, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.CategoryID, t.Amount.Cents, string(t.Kind),
		t.OccurredOn.Format(dateLayout), t.OccurredOn.Month(), t.OccurredOn.Year(), t.Description)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}
	t.ID = id

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"user_id", t.UserID,
		"category_id", t.CategoryID,
		"kind", t.Kind,
		"amount_cents", t.Amount.Cents)

	return t, nil
}

// ListTransactionsByUser returns a user's ledger entries, newest first.
func (r *SQLiteRepository) ListTransactionsByUser(ctx context.Context, userID int64) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, category_id, amount_cents, kind, occurred_on, description
		FROM transactions
		WHERE user_id = ?
		ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t        core.Transaction
			kind     string
			occurred string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.Amount.Cents, &kind, &occurred, &t.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = core.TransactionKind(kind)
		t.OccurredOn, err = parseDate(occurred)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SumExpenses totals the expense entries for one (user, category, month, year)
// budget key. It is always computed from the ledger, never from a counter.
func (r *SQLiteRepository) SumExpenses(ctx context.Context, userID, categoryID int64, year, month int) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM transactions
		WHERE user_id = ? AND category_id = ? AND year = ? AND month = ? AND kind = ?`,
		userID, categoryID, year, month, string(core.Expense)).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum expenses: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// EffectiveBudget returns the budget in force for the key, or nil when no
// row exists. Several rows may share a key; the greatest id wins.
func (r *SQLiteRepository) EffectiveBudget(ctx context.Context, userID, categoryID int64, year, month int) (*core.Budget, error) {
	var b core.Budget
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, category_id, ceiling_cents, month, year
		FROM budgets
		WHERE user_id = ? AND category_id = ? AND year = ? AND month = ?
		ORDER BY id DESC
		LIMIT 1`,
		userID, categoryID, year, month).Scan(&b.ID, &b.UserID, &b.CategoryID, &b.Ceiling.Cents, &b.Month, &b.Year)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("effective budget: %w", err)
	}
	return &b, nil
}

// UpsertBudget updates the effective row for the key when one exists,
// otherwise it inserts a new one. Returns the row id and whether an
// existing budget was updated.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) (int64, bool, error) {
	existing, err := r.EffectiveBudget(ctx, b.UserID, b.CategoryID, b.Year, b.Month)
	if err != nil {
		return 0, false, err
	}

	if existing != nil {
		_, err := r.db.ExecContext(ctx,
			`UPDATE budgets SET ceiling_cents = ? WHERE id = ?`,
			b.Ceiling.Cents, existing.ID)
		if err != nil {
			return 0, false, fmt.Errorf("update budget: %w", err)
		}
		slog.InfoContext(ctx, "Budget updated",
			"id", existing.ID,
			"user_id", b.UserID,
			"category_id", b.CategoryID,
			"ceiling_cents", b.Ceiling.Cents)
		return existing.ID, true, nil
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, category_id, ceiling_cents, month, year)
		VALUES (?, ?, ?, ?, ?)`,
		b.UserID, b.CategoryID, b.Ceiling.Cents, b.Month, b.Year)
	if err != nil {
		return 0, false, fmt.Errorf("insert budget: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("budget id: %w", err)
	}
	slog.InfoContext(ctx, "Budget created",
		"id", id,
		"user_id", b.UserID,
		"category_id", b.CategoryID,
		"ceiling_cents", b.Ceiling.Cents)
	return id, false, nil
}

// BudgetWithSpent pairs an effective budget with the expense total already
// accumulated against it.
type BudgetWithSpent struct {
	Budget core.Budget
	Spent  core.Money
}

// ListBudgetsWithSpent returns the effective budget per (category, month, year)
// key for a user, each joined with its spent-to-date sum.
func (r *SQLiteRepository) ListBudgetsWithSpent(ctx context.Context, userID int64) ([]BudgetWithSpent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.id, b.user_id, b.category_id, b.ceiling_cents, b.month, b.year,
		       COALESCE((
		           SELECT SUM(t.amount_cents)
		           FROM transactions t
		           WHERE t.user_id = b.user_id AND t.category_id = b.category_id
		             AND t.year = b.year AND t.month = b.month AND t.kind = ?
		       ), 0) AS spent_cents
		FROM budgets b
		WHERE b.user_id = ?
		  AND b.id = (
		      SELECT MAX(b2.id) FROM budgets b2
		      WHERE b2.user_id = b.user_id AND b2.category_id = b.category_id
		        AND b2.year = b.year AND b2.month = b.month
		  )
		ORDER BY b.year DESC, b.month DESC, b.category_id`,
		string(core.Expense), userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []BudgetWithSpent
	for rows.Next() {
		var bs BudgetWithSpent
		if err := rows.Scan(&bs.Budget.ID, &bs.Budget.UserID, &bs.Budget.CategoryID,
			&bs.Budget.Ceiling.Cents, &bs.Budget.Month, &bs.Budget.Year, &bs.Spent.Cents); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, bs)
	}
	return out, rows.Err()
}

// CreateNotification records an in-app notification. Kinds outside the
// table's CHECK constraint fail here; callers treat that as best-effort.
func (r *SQLiteRepository) CreateNotification(ctx context.Context, n core.Notification) (int64, error) {
	sentAt := n.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, message, medium, kind, is_read, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.UserID, n.Message, n.Medium, string(n.Kind), n.Read, sentAt)
	if err != nil {
		return 0, fmt.Errorf("create notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("notification id: %w", err)
	}
	return id, nil
}

// ListNotificationsByUser returns a user's notifications, newest first.
func (r *SQLiteRepository) ListNotificationsByUser(ctx context.Context, userID int64) ([]core.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, message, medium, kind, is_read, sent_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var (
			n    core.Notification
			kind string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Medium, &kind, &n.Read, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Kind = core.NotificationKind(kind)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags a notification as read.
func (r *SQLiteRepository) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateFixedPayment records a recurring payment and returns its id.
func (r *SQLiteRepository) CreateFixedPayment(ctx context.Context, p core.FixedPayment) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO fixed_payments (user_id, name, amount_cents, pay_day, active)
		VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.Amount.Cents, p.PayDay, p.Active)
	if err != nil {
		return 0, fmt.Errorf("create fixed payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("fixed payment id: %w", err)
	}
	return id, nil
}

// ListFixedPaymentsByUser returns a user's fixed payments.
func (r *SQLiteRepository) ListFixedPaymentsByUser(ctx context.Context, userID int64) ([]core.FixedPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, amount_cents, pay_day, active, last_alerted_on
		FROM fixed_payments
		WHERE user_id = ?
		ORDER BY pay_day, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list fixed payments: %w", err)
	}
	defer rows.Close()
	return scanFixedPayments(rows)
}

// ActiveFixedPayments returns every active fixed payment across users.
func (r *SQLiteRepository) ActiveFixedPayments(ctx context.Context) ([]core.FixedPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, amount_cents, pay_day, active, last_alerted_on
		FROM fixed_payments
		WHERE active = 1
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("active fixed payments: %w", err)
	}
	defer rows.Close()
	return scanFixedPayments(rows)
}

// MarkFixedPaymentAlerted records the pay date an alert was last sent for,
// so one due payment produces at most one alert per cycle.
func (r *SQLiteRepository) MarkFixedPaymentAlerted(ctx context.Context, id int64, payDate core.Date) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE fixed_payments SET last_alerted_on = ? WHERE id = ?`,
		payDate.Format(dateLayout), id)
	if err != nil {
		return fmt.Errorf("mark fixed payment alerted: %w", err)
	}
	return nil
}

// CategoryTotal is one line of a monthly report.
type CategoryTotal struct {
	CategoryID int64
	Income     core.Money
	Expense    core.Money
}

// MonthlyReport returns per-category income and expense totals for one
// user and month.
func (r *SQLiteRepository) MonthlyReport(ctx context.Context, userID int64, year, month int) ([]CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category_id,
		       COALESCE(SUM(CASE WHEN kind = ? THEN amount_cents ELSE 0 END), 0) AS income_cents,
		       COALESCE(SUM(CASE WHEN kind = ? THEN amount_cents ELSE 0 END), 0) AS expense_cents
		FROM transactions
		WHERE user_id = ? AND year = ? AND month = ?
		GROUP BY category_id
		ORDER BY category_id`,
		string(core.Income), string(core.Expense), userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("monthly report: %w", err)
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.CategoryID, &ct.Income.Cents, &ct.Expense.Cents); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

func scanFixedPayments(rows *sql.Rows) ([]core.FixedPayment, error) {
	var out []core.FixedPayment
	for rows.Next() {
		var (
			p       core.FixedPayment
			alerted string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Amount.Cents, &p.PayDay, &p.Active, &alerted); err != nil {
			return nil, fmt.Errorf("scan fixed payment: %w", err)
		}
		if alerted != "" {
			var err error
			p.LastAlertedOn, err = parseDate(alerted)
			if err != nil {
				return nil, fmt.Errorf("fixed payment %d: %w", p.ID, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}
