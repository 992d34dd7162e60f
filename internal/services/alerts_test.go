package services

import (
	"context"
	"testing"
	"time"

	"lana/internal/core"
)

type fakePaymentStore struct {
	payments []core.FixedPayment
	alerted  map[int64]core.Date
}

func (f *fakePaymentStore) ActiveFixedPayments(ctx context.Context) ([]core.FixedPayment, error) {
	var out []core.FixedPayment
	for _, p := range f.payments {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePaymentStore) MarkFixedPaymentAlerted(ctx context.Context, id int64, payDate core.Date) error {
	if f.alerted == nil {
		f.alerted = make(map[int64]core.Date)
	}
	f.alerted[id] = payDate
	for i := range f.payments {
		if f.payments[i].ID == id {
			f.payments[i].LastAlertedOn = payDate
		}
	}
	return nil
}

func TestNextPayDate(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		payDay int
		want   core.Date
	}{
		{
			name:   "later this month",
			now:    time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
			payDay: 20,
			want:   core.NewDate(2025, 3, 20),
		},
		{
			name:   "today",
			now:    time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
			payDay: 10,
			want:   core.NewDate(2025, 3, 10),
		},
		{
			name:   "already passed, next month",
			now:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			payDay: 5,
			want:   core.NewDate(2025, 4, 5),
		},
		{
			name:   "day 31 clamps in february",
			now:    time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
			payDay: 31,
			want:   core.NewDate(2025, 2, 28),
		},
		{
			name:   "day 31 clamps in leap february",
			now:    time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
			payDay: 31,
			want:   core.NewDate(2024, 2, 29),
		},
		{
			name:   "december rolls into january",
			now:    time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC),
			payDay: 5,
			want:   core.NewDate(2026, 1, 5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextPayDate(tt.now, tt.payDay)
			if !got.Equal(tt.want.Time) {
				t.Errorf("nextPayDate(%v, %d) = %v, want %v", tt.now, tt.payDay, got, tt.want)
			}
		})
	}
}

func TestProcessDueAlerts(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	store := &fakePaymentStore{payments: []core.FixedPayment{
		{ID: 1, UserID: 1, Name: "alquiler", Amount: core.Money{Cents: 120000}, PayDay: 12, Active: true},
		{ID: 2, UserID: 1, Name: "gimnasio", Amount: core.Money{Cents: 4500}, PayDay: 25, Active: true},
		{ID: 3, UserID: 2, Name: "seguro", Amount: core.Money{Cents: 30000}, PayDay: 11, Active: false},
	}}
	publisher := &fakePublisher{}
	processor := NewAlertProcessor(store, publisher, 3)

	alerted, err := processor.ProcessDueAlerts(context.Background(), now)
	if err != nil {
		t.Fatalf("ProcessDueAlerts() error = %v", err)
	}

	// Only the rent is due within the 3-day window; the gym is too far out
	// and the insurance is inactive.
	if alerted != 1 {
		t.Fatalf("alerted = %d, want 1", alerted)
	}
	if kinds := publisher.kinds(); len(kinds) != 1 || kinds[0] != "alerta_pago" {
		t.Fatalf("published kinds = %v, want [alerta_pago]", kinds)
	}
	if !store.alerted[1].Equal(core.NewDate(2025, 3, 12).Time) {
		t.Errorf("payment 1 alerted for %v, want 2025-03-12", store.alerted[1])
	}
}

func TestProcessDueAlertsDeduplicates(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	store := &fakePaymentStore{payments: []core.FixedPayment{
		{ID: 1, UserID: 1, Name: "alquiler", Amount: core.Money{Cents: 120000}, PayDay: 12, Active: true},
	}}
	publisher := &fakePublisher{}
	processor := NewAlertProcessor(store, publisher, 3)

	for i := 0; i < 3; i++ {
		if _, err := processor.ProcessDueAlerts(context.Background(), now); err != nil {
			t.Fatalf("ProcessDueAlerts() error = %v", err)
		}
	}

	// One due payment, one alert, however many cycles run.
	if kinds := publisher.kinds(); len(kinds) != 1 {
		t.Errorf("published %d alerts across repeated cycles, want 1", len(kinds))
	}
}

func TestProcessDueAlertsNextCycle(t *testing.T) {
	store := &fakePaymentStore{payments: []core.FixedPayment{
		{ID: 1, UserID: 1, Name: "alquiler", Amount: core.Money{Cents: 120000}, PayDay: 12, Active: true},
	}}
	publisher := &fakePublisher{}
	processor := NewAlertProcessor(store, publisher, 3)

	march := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if _, err := processor.ProcessDueAlerts(context.Background(), march); err != nil {
		t.Fatalf("ProcessDueAlerts() error = %v", err)
	}

	// A month later the same payment falls due again and alerts again.
	april := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
	alerted, err := processor.ProcessDueAlerts(context.Background(), april)
	if err != nil {
		t.Fatalf("ProcessDueAlerts() error = %v", err)
	}
	if alerted != 1 {
		t.Errorf("alerted = %d in the next cycle, want 1", alerted)
	}
	if len(publisher.kinds()) != 2 {
		t.Errorf("published %d alerts total, want 2", len(publisher.kinds()))
	}
}

func TestProcessDueAlertsUninitialized(t *testing.T) {
	processor := NewAlertProcessor(nil, nil, 3)
	if _, err := processor.ProcessDueAlerts(context.Background(), time.Now()); err == nil {
		t.Fatal("ProcessDueAlerts() with nil deps succeeded, want error")
	}
}
