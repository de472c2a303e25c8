package lease

import (
	"math/big"
	"time"
)

const minRecalcInterval = time.Hour

// Liability holds the loan-to-value thresholds governing a lease together
// with the cadence at which the position must be re-evaluated. The value is
// validated once at construction and never mutated afterwards.
type Liability struct {
	// Initial is the percentage of the total position the pool funds when
	// the lease opens. Initial > 0.
	Initial Percent `json:"initial"`
	// Healthy is the loan-to-value below which the position needs no
	// attention. Healthy >= Initial.
	Healthy Percent `json:"healthy"`
	// Max is the loan-to-value at which liquidation becomes mandatory.
	// Max > Healthy.
	Max Percent `json:"max"`
	// RecalcInterval is how often liability should be recomputed.
	// RecalcInterval >= 1h.
	RecalcInterval time.Duration `json:"recalc_interval"`
}

// NewLiability constructs a validated liability policy.
func NewLiability(initial, healthy, max Percent, recalc time.Duration) (Liability, error) {
	l := Liability{Initial: initial, Healthy: healthy, Max: max, RecalcInterval: recalc}
	if err := l.InvariantHeld(); err != nil {
		return Liability{}, err
	}
	return l, nil
}

// InvariantHeld reports whether the thresholds are ordered and the cadence
// acceptable. Deserialized policies must be re-checked with it before use.
func (l Liability) InvariantHeld() error {
	if l.Initial > PercentZero &&
		l.Healthy >= l.Initial &&
		l.Max > l.Healthy &&
		l.RecalcInterval >= minRecalcInterval {
		return nil
	}
	return brokenInvariant("liability", "thresholds must satisfy 0 < initial <= healthy < max with recalc >= 1h")
}

// InitBorrowAmount solves borrow = initial% of (borrow + downpayment) for the
// amount the pool should fund given a down payment:
//
//	borrow = downpayment * initial / (100% - initial)
//
// truncating toward zero. An initial percent of 100% or more would make the
// equation insoluble and is reported as a broken invariant.
func (l Liability) InitBorrowAmount(downpayment *big.Int) (*big.Int, error) {
	if l.Initial >= PercentHundred {
		return nil, brokenInvariant("liability", "initial percent must be below 100%")
	}
	if downpayment == nil || downpayment.Sign() < 0 {
		return nil, invalidParameters("downpayment must be non-negative")
	}
	borrow := new(big.Int).Mul(downpayment, big.NewInt(int64(l.Initial)))
	borrow.Quo(borrow, big.NewInt(int64(PercentHundred-l.Initial)))
	return borrow, nil
}
