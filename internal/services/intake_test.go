package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"lana/internal/amqp"
	"lana/internal/core"
)

type fakeLedger struct {
	mu           sync.Mutex
	transactions []core.Transaction
	nextID       int64
	createErr    error
}

func (f *fakeLedger) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if f.createErr != nil {
		return core.Transaction{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	f.transactions = append(f.transactions, t)
	return t, nil
}

func (f *fakeLedger) SumExpenses(ctx context.Context, userID, categoryID int64, year, month int) (core.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cents int64
	for _, t := range f.transactions {
		if t.UserID == userID && t.CategoryID == categoryID &&
			t.OccurredOn.Year() == year && t.OccurredOn.Month() == month &&
			t.Kind == core.Expense {
			cents += t.Amount.Cents
		}
	}
	return core.Money{Cents: cents}, nil
}

type fakeBudgetStore struct {
	budget *core.Budget
	id     int64
}

func (f *fakeBudgetStore) EffectiveBudget(ctx context.Context, userID, categoryID int64, year, month int) (*core.Budget, error) {
	return f.budget, nil
}

func (f *fakeBudgetStore) UpsertBudget(ctx context.Context, b core.Budget) (int64, bool, error) {
	updated := f.budget != nil
	if !updated {
		f.id++
	}
	f.budget = &b
	return f.id, updated, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []*amqp.NotificationMessage
	err      error
}

func (f *fakePublisher) PublishNotification(ctx context.Context, msg *amqp.NotificationMessage) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakePublisher) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Kind
	}
	return out
}

func expenseOn(amountCents int64) core.Transaction {
	return core.Transaction{
		UserID:     1,
		CategoryID: 2,
		Amount:     core.Money{Cents: amountCents},
		Kind:       core.Expense,
		OccurredOn: core.NewDate(2025, 3, 10),
	}
}

func budgetOf(ceilingCents int64) *core.Budget {
	return &core.Budget{
		ID: 1, UserID: 1, CategoryID: 2,
		Ceiling: core.Money{Cents: ceilingCents},
		Month:   3, Year: 2025,
	}
}

func TestSubmitAcceptClean(t *testing.T) {
	ledger := &fakeLedger{}
	publisher := &fakePublisher{}
	svc := NewIntakeService(ledger, &fakeBudgetStore{budget: budgetOf(100000)}, publisher)

	result, err := svc.Submit(context.Background(), expenseOn(15000))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	svc.Wait()

	if result.Decision.Outcome != core.AcceptClean {
		t.Errorf("outcome = %v, want AcceptClean", result.Decision.Outcome)
	}
	if result.Transaction.ID == 0 {
		t.Error("accepted transaction has no id")
	}
	if len(ledger.transactions) != 1 {
		t.Fatalf("persisted %d transactions, want 1", len(ledger.transactions))
	}
	if kinds := publisher.kinds(); len(kinds) != 1 || kinds[0] != "transaccion" {
		t.Errorf("published kinds = %v, want [transaccion]", kinds)
	}
}

func TestSubmitAcceptWarn(t *testing.T) {
	ledger := &fakeLedger{}
	publisher := &fakePublisher{}
	svc := NewIntakeService(ledger, &fakeBudgetStore{budget: budgetOf(100000)}, publisher)

	// First expense leaves spending at 750.00, second pushes it to 810.00:
	// at or past 80% of 1000.00 and still under the ceiling.
	if _, err := svc.Submit(context.Background(), expenseOn(75000)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	result, err := svc.Submit(context.Background(), expenseOn(6000))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	svc.Wait()

	if result.Decision.Outcome != core.AcceptWarn {
		t.Errorf("outcome = %v, want AcceptWarn", result.Decision.Outcome)
	}
	if result.Decision.SpentAfter.Cents != 81000 {
		t.Errorf("spentAfter = %d, want 81000", result.Decision.SpentAfter.Cents)
	}

	kinds := publisher.kinds()
	var warns, confirms int
	for _, k := range kinds {
		switch k {
		case "alerta_pago":
			warns++
		case "transaccion":
			confirms++
		}
	}
	if confirms != 2 || warns != 1 {
		t.Errorf("published kinds = %v, want two transaccion and one alerta_pago", kinds)
	}
}

func TestSubmitReject(t *testing.T) {
	ledger := &fakeLedger{}
	publisher := &fakePublisher{}
	svc := NewIntakeService(ledger, &fakeBudgetStore{budget: budgetOf(100000)}, publisher)

	if _, err := svc.Submit(context.Background(), expenseOn(95000)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	result, err := svc.Submit(context.Background(), expenseOn(10000))
	if err != nil {
		t.Fatalf("Submit() error = %v, rejection must not be an error", err)
	}
	svc.Wait()

	if result.Decision.Outcome != core.Reject {
		t.Fatalf("outcome = %v, want Reject", result.Decision.Outcome)
	}
	if result.Decision.SpentBefore.Cents != 95000 || result.Decision.Ceiling.Cents != 100000 {
		t.Errorf("decision = %+v, want spentBefore 95000 and ceiling 100000", result.Decision)
	}
	// Rejected expense is never persisted.
	if len(ledger.transactions) != 1 {
		t.Fatalf("persisted %d transactions, want 1 (only the first)", len(ledger.transactions))
	}

	var exceeded bool
	for _, k := range publisher.kinds() {
		if k == "exceso_presupuesto" {
			exceeded = true
		}
	}
	if !exceeded {
		t.Errorf("published kinds = %v, want an exceso_presupuesto", publisher.kinds())
	}
}

func TestSubmitExactlyAtCeiling(t *testing.T) {
	ledger := &fakeLedger{}
	publisher := &fakePublisher{}
	svc := NewIntakeService(ledger, &fakeBudgetStore{budget: budgetOf(100000)}, publisher)

	if _, err := svc.Submit(context.Background(), expenseOn(90000)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	result, err := svc.Submit(context.Background(), expenseOn(10000))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	svc.Wait()

	// Landing exactly on the ceiling is a clean accept: not rejected, not warned.
	if result.Decision.Outcome != core.AcceptClean {
		t.Errorf("outcome = %v, want AcceptClean", result.Decision.Outcome)
	}
	if len(ledger.transactions) != 2 {
		t.Errorf("persisted %d transactions, want 2", len(ledger.transactions))
	}
}

func TestSubmitIncomeBypassesEvaluation(t *testing.T) {
	ledger := &fakeLedger{}
	publisher := &fakePublisher{}
	// A tiny ceiling that any evaluated expense of this size would blow through.
	svc := NewIntakeService(ledger, &fakeBudgetStore{budget: budgetOf(100)}, publisher)

	income := core.Transaction{
		UserID:     1,
		CategoryID: 2,
		Amount:     core.Money{Cents: 500000},
		Kind:       core.Income,
		OccurredOn: core.NewDate(2025, 3, 1),
	}
	result, err := svc.Submit(context.Background(), income)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	svc.Wait()

	if result.Decision.Outcome != core.AcceptClean {
		t.Errorf("outcome = %v, want AcceptClean", result.Decision.Outcome)
	}
	if len(ledger.transactions) != 1 {
		t.Fatalf("persisted %d transactions, want 1", len(ledger.transactions))
	}
	if kinds := publisher.kinds(); len(kinds) != 1 || kinds[0] != "transaccion" {
		t.Errorf("published kinds = %v, want [transaccion]", kinds)
	}
}

func TestSubmitNoBudgetConfigured(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewIntakeService(ledger, &fakeBudgetStore{}, &fakePublisher{})

	result, err := svc.Submit(context.Background(), expenseOn(999999))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	svc.Wait()

	if result.Decision.Outcome != core.AcceptClean {
		t.Errorf("outcome = %v, want AcceptClean when no budget exists", result.Decision.Outcome)
	}
	if result.Decision.HasCeiling {
		t.Error("decision reports a ceiling when none is configured")
	}
}

func TestSubmitValidation(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewIntakeService(ledger, &fakeBudgetStore{}, &fakePublisher{})

	missing := expenseOn(1000)
	missing.CategoryID = 0
	if _, err := svc.Submit(context.Background(), missing); !errors.Is(err, core.ErrMissingCategory) {
		t.Errorf("Submit() error = %v, want ErrMissingCategory", err)
	}
	if len(ledger.transactions) != 0 {
		t.Errorf("persisted %d transactions on invalid input, want 0", len(ledger.transactions))
	}
}

func TestSubmitPublishFailureDoesNotAffectResult(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewIntakeService(ledger, &fakeBudgetStore{budget: budgetOf(100000)}, &fakePublisher{err: errors.New("broker down")})

	result, err := svc.Submit(context.Background(), expenseOn(15000))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	svc.Wait()

	if result.Decision.Outcome != core.AcceptClean || result.Transaction.ID == 0 {
		t.Errorf("result = %+v, want clean accept with id despite publish failure", result)
	}
}

func TestSubmitNilPublisher(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewIntakeService(ledger, &fakeBudgetStore{budget: budgetOf(100000)}, nil)

	result, err := svc.Submit(context.Background(), expenseOn(15000))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Transaction.ID == 0 {
		t.Error("transaction not persisted with nil publisher")
	}
}

func TestSubmitPersistFailure(t *testing.T) {
	svc := NewIntakeService(&fakeLedger{createErr: errors.New("disk full")}, &fakeBudgetStore{}, &fakePublisher{})

	if _, err := svc.Submit(context.Background(), expenseOn(15000)); err == nil {
		t.Fatal("Submit() succeeded with failing store, want error")
	}
}

func TestSubmitSerializesConcurrentExpenses(t *testing.T) {
	ledger := &fakeLedger{}
	svc := NewIntakeService(ledger, &fakeBudgetStore{budget: budgetOf(10000)}, &fakePublisher{})

	// Two concurrent 60.00 expenses against a 100.00 ceiling: without the
	// per-key lock both could read spentBefore=0 and slip through together.
	var wg sync.WaitGroup
	outcomes := make([]core.Outcome, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Submit(context.Background(), expenseOn(6000))
			if err != nil {
				t.Errorf("Submit() error = %v", err)
				return
			}
			outcomes[i] = result.Decision.Outcome
		}(i)
	}
	wg.Wait()
	svc.Wait()

	var accepted, rejected int
	for _, o := range outcomes {
		if o == core.Reject {
			rejected++
		} else {
			accepted++
		}
	}
	if accepted != 1 || rejected != 1 {
		t.Errorf("outcomes = %v, want exactly one accept and one reject", outcomes)
	}
	if len(ledger.transactions) != 1 {
		t.Errorf("persisted %d transactions, want 1", len(ledger.transactions))
	}
}
