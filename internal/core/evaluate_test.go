package core

import "testing"

func ceiling(cents int64) *Money {
	return &Money{Cents: cents}
}

func TestEvaluateOutcomes(t *testing.T) {
	cases := []struct {
		name        string
		amount      int64
		ceiling     *Money
		spentBefore int64
		want        Outcome
	}{
		{"clean accept well below", 30000, ceiling(100000), 20000, AcceptClean},
		{"warn at 81 percent", 6000, ceiling(100000), 75000, AcceptWarn},
		{"warn exactly at 80 percent", 5000, ceiling(100000), 75000, AcceptWarn},
		{"warn just under ceiling", 24999, ceiling(100000), 75000, AcceptWarn},
		{"clean just under 80 percent", 4999, ceiling(100000), 75000, AcceptClean},
		{"reject over ceiling", 10000, ceiling(100000), 95000, Reject},
		{"reject by one cent", 1, ceiling(100000), 100000, Reject},
		{"exactly at ceiling is clean", 10000, ceiling(100000), 90000, AcceptClean},
		{"no budget always clean", 99999999, nil, 0, AcceptClean},
		{"no budget ignores spent", 1, nil, 1<<40, AcceptClean},
		// 80% of an odd ceiling is not a whole cent: 0.8*101 = 80.8
		{"odd ceiling below fractional threshold", 80, ceiling(101), 0, AcceptClean},
		{"odd ceiling above fractional threshold", 81, ceiling(101), 0, AcceptWarn},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Evaluate(Money{Cents: tc.amount}, tc.ceiling, Money{Cents: tc.spentBefore})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Outcome != tc.want {
				t.Fatalf("expected %v, got %v (after=%d)", tc.want, d.Outcome, d.SpentAfter.Cents)
			}
		})
	}
}

func TestEvaluateScenarios(t *testing.T) {
	// ceiling $1000, spent $200, amount $300 -> clean, after $500
	d, err := Evaluate(Money{Cents: 30000}, ceiling(100000), Money{Cents: 20000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Outcome != AcceptClean || d.SpentAfter.Cents != 50000 {
		t.Fatalf("expected clean accept with after=50000, got %v after=%d", d.Outcome, d.SpentAfter.Cents)
	}

	// ceiling $1000, spent $750, amount $60 -> after $810, warn
	d, err = Evaluate(Money{Cents: 6000}, ceiling(100000), Money{Cents: 75000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Outcome != AcceptWarn {
		t.Fatalf("expected warn, got %v", d.Outcome)
	}

	// ceiling $1000, spent $950, amount $100 -> after $1050, reject
	d, err = Evaluate(Money{Cents: 10000}, ceiling(100000), Money{Cents: 95000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Outcome != Reject {
		t.Fatalf("expected reject, got %v", d.Outcome)
	}
	if d.SpentBefore.Cents != 95000 || d.Ceiling.Cents != 100000 {
		t.Fatalf("reject must carry spentBefore and ceiling, got before=%d ceiling=%d",
			d.SpentBefore.Cents, d.Ceiling.Cents)
	}

	// ceiling $1000, spent $900, amount $100 -> after == ceiling, clean
	d, err = Evaluate(Money{Cents: 10000}, ceiling(100000), Money{Cents: 90000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Outcome != AcceptClean {
		t.Fatalf("expected clean accept at exact ceiling, got %v", d.Outcome)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	for i := 0; i < 10; i++ {
		d, err := Evaluate(Money{Cents: 6000}, ceiling(100000), Money{Cents: 75000})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Outcome != AcceptWarn {
			t.Fatalf("iteration %d: expected warn, got %v", i, d.Outcome)
		}
	}
}

func TestEvaluateInvalidInput(t *testing.T) {
	cases := []struct {
		name        string
		amount      int64
		ceiling     *Money
		spentBefore int64
	}{
		{"zero amount", 0, ceiling(100000), 0},
		{"negative amount", -100, ceiling(100000), 0},
		{"negative spent", 100, ceiling(100000), -1},
		{"non-positive ceiling", 100, ceiling(0), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Evaluate(Money{Cents: tc.amount}, tc.ceiling, Money{Cents: tc.spentBefore}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
