package lease

import (
	"math/big"
	"time"
)

// nanosPerYear annualises rates over a 365-day year.
const nanosPerYear = 365 * 24 * int64(time.Hour)

// Loan is the per-lease ledger of principal and elapsed-period bookkeeping.
// Margin and interest accrue continuously within a period; on each period
// boundary the unpaid current-period amounts roll into the previous-period
// buckets and a new period starts at the old boundary.
type Loan struct {
	// Principal is the amount still owed to the pool.
	Principal *big.Int `json:"principal"`
	// MarginRate is the annualised margin percent, fixed at open.
	MarginRate Percent `json:"margin_rate"`
	// InterestRate is the annualised pool interest percent. The engine
	// refreshes it from the rate model when periods roll over.
	InterestRate Percent `json:"interest_rate"`
	// InterestDuePeriod is the accrual period length.
	InterestDuePeriod time.Duration `json:"interest_due_period"`
	// GracePeriod bounds how long previous-period debt may stay unpaid
	// before the position belongs to the liquidation path. The check is a
	// property of the caller, not of the allocation algorithm.
	GracePeriod time.Duration `json:"grace_period"`
	// PeriodStart marks the beginning of the current accrual period.
	PeriodStart time.Time `json:"period_start"`

	PreviousMarginDue   *big.Int `json:"previous_margin_due"`
	PreviousInterestDue *big.Int `json:"previous_interest_due"`
	CurrentMarginPaid   *big.Int `json:"current_margin_paid"`
	CurrentInterestPaid *big.Int `json:"current_interest_paid"`
}

// NewLoan opens a ledger with the final borrowed amount as principal.
func NewLoan(principal *big.Int, margin, interest Percent, duePeriod, grace time.Duration, start time.Time) (*Loan, error) {
	if principal == nil || principal.Sign() <= 0 {
		return nil, invalidParameters("loan principal must be positive")
	}
	if duePeriod <= 0 {
		return nil, invalidParameters("interest due period must be positive")
	}
	if grace < 0 || grace >= duePeriod {
		return nil, invalidParameters("grace period must be shorter than the due period")
	}
	return &Loan{
		Principal:           new(big.Int).Set(principal),
		MarginRate:          margin,
		InterestRate:        interest,
		InterestDuePeriod:   duePeriod,
		GracePeriod:         grace,
		PeriodStart:         start,
		PreviousMarginDue:   big.NewInt(0),
		PreviousInterestDue: big.NewInt(0),
		CurrentMarginPaid:   big.NewInt(0),
		CurrentInterestPaid: big.NewInt(0),
	}, nil
}

// Closed reports whether the principal has been fully repaid.
func (l *Loan) Closed() bool { return l.Principal.Sign() == 0 }

// annualShare computes principal * rate scaled by elapsed/year, truncating.
func annualShare(principal *big.Int, rate Percent, elapsed time.Duration) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rate == PercentZero || elapsed <= 0 {
		return big.NewInt(0)
	}
	due := new(big.Int).Mul(principal, big.NewInt(int64(rate)))
	due.Mul(due, big.NewInt(int64(elapsed)))
	den := new(big.Int).Mul(big.NewInt(int64(PercentHundred)), big.NewInt(nanosPerYear))
	return due.Quo(due, den)
}

func clampZero(v *big.Int) *big.Int {
	if v.Sign() < 0 {
		return big.NewInt(0)
	}
	return v
}

// rollOver advances the ledger across every period boundary reached by now.
// Unpaid current-period amounts become previous-period debt; missed periods
// accumulate into the same buckets.
func (l *Loan) rollOver(now time.Time) {
	for !now.Before(l.PeriodStart.Add(l.InterestDuePeriod)) {
		end := l.PeriodStart.Add(l.InterestDuePeriod)
		fullMargin := annualShare(l.Principal, l.MarginRate, l.InterestDuePeriod)
		fullInterest := annualShare(l.Principal, l.InterestRate, l.InterestDuePeriod)
		l.PreviousMarginDue.Add(l.PreviousMarginDue, clampZero(new(big.Int).Sub(fullMargin, l.CurrentMarginPaid)))
		l.PreviousInterestDue.Add(l.PreviousInterestDue, clampZero(new(big.Int).Sub(fullInterest, l.CurrentInterestPaid)))
		l.CurrentMarginPaid = big.NewInt(0)
		l.CurrentInterestPaid = big.NewInt(0)
		l.PeriodStart = end
	}
}

// CurrentMarginDue returns the margin accrued in the current period up to at,
// net of what has already been paid within it.
func (l *Loan) CurrentMarginDue(at time.Time) *big.Int {
	accrued := annualShare(l.Principal, l.MarginRate, at.Sub(l.PeriodStart))
	return clampZero(accrued.Sub(accrued, l.CurrentMarginPaid))
}

// CurrentInterestDue returns the interest accrued in the current period up to
// at, net of what has already been paid within it.
func (l *Loan) CurrentInterestDue(at time.Time) *big.Int {
	accrued := annualShare(l.Principal, l.InterestRate, at.Sub(l.PeriodStart))
	return clampZero(accrued.Sub(accrued, l.CurrentInterestPaid))
}

// TotalDue sums everything owed at the given instant, period rollovers
// included, without mutating the ledger.
func (l *Loan) TotalDue(at time.Time) *big.Int {
	probe := l.Clone()
	probe.rollOver(at)
	total := new(big.Int).Add(probe.PreviousMarginDue, probe.PreviousInterestDue)
	total.Add(total, probe.CurrentMarginDue(at))
	total.Add(total, probe.CurrentInterestDue(at))
	total.Add(total, probe.Principal)
	return total
}

// PastGrace reports whether previous-period obligations remain unpaid beyond
// the grace period. Callers must consult it before invoking Repay; the
// allocator itself stays a pure distribution algorithm.
func (l *Loan) PastGrace(at time.Time) bool {
	probe := l.Clone()
	probe.rollOver(at)
	if probe.PreviousMarginDue.Sign() == 0 && probe.PreviousInterestDue.Sign() == 0 {
		return false
	}
	return at.Sub(probe.PeriodStart) > probe.GracePeriod
}

// Repay distributes a payment across the owed buckets in strict seniority
// order: previous-period margin, previous-period interest, current-period
// margin, current-period interest, then principal. Each bucket receives at
// most what it is owed; the remainder cascades. A payment beyond the total
// owed leaves the surplus on the receipt as change.
func (l *Loan) Repay(payment *big.Int, at time.Time) (*Receipt, error) {
	if payment == nil || payment.Sign() <= 0 {
		return nil, ErrInsufficientPayment
	}
	if l.Closed() {
		return nil, ErrLoanClosed
	}

	l.rollOver(at)

	receipt := newReceipt()
	remaining := new(big.Int).Set(payment)

	take := minBig(l.PreviousMarginDue, remaining)
	if err := receipt.payPreviousMargin(take); err != nil {
		return nil, err
	}
	l.PreviousMarginDue.Sub(l.PreviousMarginDue, take)
	remaining.Sub(remaining, take)

	take = minBig(l.PreviousInterestDue, remaining)
	if err := receipt.payPreviousInterest(take); err != nil {
		return nil, err
	}
	l.PreviousInterestDue.Sub(l.PreviousInterestDue, take)
	remaining.Sub(remaining, take)

	take = minBig(l.CurrentMarginDue(at), remaining)
	if err := receipt.payCurrentMargin(take); err != nil {
		return nil, err
	}
	l.CurrentMarginPaid.Add(l.CurrentMarginPaid, take)
	remaining.Sub(remaining, take)

	take = minBig(l.CurrentInterestDue(at), remaining)
	if err := receipt.payCurrentInterest(take); err != nil {
		return nil, err
	}
	l.CurrentInterestPaid.Add(l.CurrentInterestPaid, take)
	remaining.Sub(remaining, take)

	take = minBig(l.Principal, remaining)
	if err := receipt.payPrincipal(l.Principal, take); err != nil {
		return nil, err
	}
	l.Principal.Sub(l.Principal, take)
	remaining.Sub(remaining, take)

	if remaining.Sign() > 0 {
		receipt.Change = remaining
	}
	return receipt, nil
}

// Clone returns a deep copy of the ledger.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Principal = new(big.Int).Set(l.Principal)
	clone.PreviousMarginDue = new(big.Int).Set(l.PreviousMarginDue)
	clone.PreviousInterestDue = new(big.Int).Set(l.PreviousInterestDue)
	clone.CurrentMarginPaid = new(big.Int).Set(l.CurrentMarginPaid)
	clone.CurrentInterestPaid = new(big.Int).Set(l.CurrentInterestPaid)
	return &clone
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
