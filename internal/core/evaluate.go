package core

// Outcome is the result class of a budget evaluation. Exactly one outcome
// applies to a given expense.
type Outcome int

const (
	// AcceptClean allows the expense with no warning.
	AcceptClean Outcome = iota
	// AcceptWarn allows the expense but flags that post-transaction spend
	// has reached the warning band [80%, 100%) of the ceiling.
	AcceptWarn
	// Reject blocks the expense: post-transaction spend would strictly
	// exceed the ceiling. The transaction must not be persisted.
	Reject
)

func (o Outcome) String() string {
	switch o {
	case AcceptClean:
		return "accept"
	case AcceptWarn:
		return "accept-warn"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Decision is the full result of evaluating a proposed expense against a
// budget ceiling.
type Decision struct {
	Outcome     Outcome
	SpentBefore Money
	SpentAfter  Money
	Ceiling     Money
	HasCeiling  bool
}

// Accepted reports whether the expense may be persisted.
func (d Decision) Accepted() bool {
	return d.Outcome != Reject
}

// Evaluate decides whether a proposed expense fits under a monthly ceiling.
// It is a pure function of its inputs.
//
// ceiling == nil means no budget is configured for the category/month, and
// the expense is always accepted cleanly.
//
// Otherwise, with after = spentBefore + amount:
//
//	after >  ceiling            -> Reject
//	after == ceiling            -> AcceptClean (at the limit is not over it)
//	after in [80% of ceiling, ceiling) -> AcceptWarn
//	otherwise                   -> AcceptClean
//
// The 80% threshold is inclusive and applies to the post-transaction total.
// The comparison 5*after >= 4*ceiling keeps it exact in integer cents even
// when the ceiling is not divisible by five.
func Evaluate(amount Money, ceiling *Money, spentBefore Money) (Decision, error) {
	if amount.Cents <= 0 {
		return Decision{}, ErrInvalidAmount
	}
	if spentBefore.Cents < 0 {
		return Decision{}, ErrInvalidAmount
	}

	after := Money{Cents: spentBefore.Cents + amount.Cents}

	if ceiling == nil {
		return Decision{
			Outcome:     AcceptClean,
			SpentBefore: spentBefore,
			SpentAfter:  after,
		}, nil
	}
	if ceiling.Cents <= 0 {
		return Decision{}, ErrInvalidAmount
	}

	d := Decision{
		SpentBefore: spentBefore,
		SpentAfter:  after,
		Ceiling:     *ceiling,
		HasCeiling:  true,
	}

	switch {
	case after.Cents > ceiling.Cents:
		d.Outcome = Reject
	case 5*after.Cents >= 4*ceiling.Cents && after.Cents < ceiling.Cents:
		d.Outcome = AcceptWarn
	default:
		d.Outcome = AcceptClean
	}
	return d, nil
}
