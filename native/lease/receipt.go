package lease

import "math/big"

// Receipt itemises how a single repayment was distributed across the owed
// buckets, in seniority order. It is derived per call and never stored.
//
// Each bucket may be written at most once per repayment; a second write is a
// programming-invariant violation surfaced as ErrBrokenInvariant.
type Receipt struct {
	PreviousMarginPaid   *big.Int `json:"previous_margin_paid"`
	PreviousInterestPaid *big.Int `json:"previous_interest_paid"`
	CurrentMarginPaid    *big.Int `json:"current_margin_paid"`
	CurrentInterestPaid  *big.Int `json:"current_interest_paid"`
	PrincipalPaid        *big.Int `json:"principal_paid"`
	// Change is the part of the payment left over after the principal was
	// fully covered. The engine refunds it to the customer.
	Change *big.Int `json:"change"`
	// Close reports whether the payment settled the remaining principal.
	Close bool `json:"close"`
}

func newReceipt() *Receipt {
	return &Receipt{
		PreviousMarginPaid:   big.NewInt(0),
		PreviousInterestPaid: big.NewInt(0),
		CurrentMarginPaid:    big.NewInt(0),
		CurrentInterestPaid:  big.NewInt(0),
		PrincipalPaid:        big.NewInt(0),
		Change:               big.NewInt(0),
	}
}

// Total sums the allocated buckets, excluding change.
func (r *Receipt) Total() *big.Int {
	total := new(big.Int).Add(r.PreviousMarginPaid, r.PreviousInterestPaid)
	total.Add(total, r.CurrentMarginPaid)
	total.Add(total, r.CurrentInterestPaid)
	total.Add(total, r.PrincipalPaid)
	return total
}

func (r *Receipt) payPreviousMargin(payment *big.Int) error {
	if r.PreviousMarginPaid.Sign() != 0 {
		return brokenInvariant("receipt", "previous margin paid twice")
	}
	r.PreviousMarginPaid = new(big.Int).Set(payment)
	return nil
}

func (r *Receipt) payPreviousInterest(payment *big.Int) error {
	if r.PreviousInterestPaid.Sign() != 0 {
		return brokenInvariant("receipt", "previous interest paid twice")
	}
	r.PreviousInterestPaid = new(big.Int).Set(payment)
	return nil
}

func (r *Receipt) payCurrentMargin(payment *big.Int) error {
	if r.CurrentMarginPaid.Sign() != 0 {
		return brokenInvariant("receipt", "current margin paid twice")
	}
	r.CurrentMarginPaid = new(big.Int).Set(payment)
	return nil
}

func (r *Receipt) payCurrentInterest(payment *big.Int) error {
	if r.CurrentInterestPaid.Sign() != 0 {
		return brokenInvariant("receipt", "current interest paid twice")
	}
	r.CurrentInterestPaid = new(big.Int).Set(payment)
	return nil
}

func (r *Receipt) payPrincipal(principal, payment *big.Int) error {
	if r.PrincipalPaid.Sign() != 0 {
		return brokenInvariant("receipt", "principal paid twice")
	}
	r.PrincipalPaid = new(big.Int).Set(payment)
	r.Close = principal.Cmp(payment) <= 0
	return nil
}
