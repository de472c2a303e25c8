package lease

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestNewLiabilityBounds(t *testing.T) {
	if _, err := NewLiability(650, 700, 800, 24*time.Hour); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}
	cases := []struct {
		name                  string
		initial, healthy, max Percent
		recalc                time.Duration
	}{
		{"zero initial", 0, 700, 800, 24 * time.Hour},
		{"initial above healthy", 710, 700, 800, 24 * time.Hour},
		{"max not above healthy", 650, 800, 800, 24 * time.Hour},
		{"recalc below floor", 650, 700, 800, 30 * time.Minute},
	}
	for _, tc := range cases {
		if _, err := NewLiability(tc.initial, tc.healthy, tc.max, tc.recalc); !errors.Is(err, ErrBrokenInvariant) {
			t.Fatalf("%s: expected broken invariant, got %v", tc.name, err)
		}
	}
}

func TestInitBorrowAmount(t *testing.T) {
	policy := Liability{Initial: 100, Healthy: 700, Max: 800, RecalcInterval: 24 * time.Hour}

	// 10% initial: borrow = 1000 * 100 / 900, truncated.
	borrow, err := policy.InitBorrowAmount(big.NewInt(1000))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if borrow.Cmp(big.NewInt(111)) != 0 {
		t.Fatalf("unexpected borrow: got %s want 111", borrow)
	}

	// 50% initial means the pool matches the down payment exactly.
	policy.Initial = 500
	borrow, err = policy.InitBorrowAmount(big.NewInt(1000))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if borrow.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected borrow: got %s want 1000", borrow)
	}

	policy.Initial = PercentHundred
	if _, err := policy.InitBorrowAmount(big.NewInt(1000)); !errors.Is(err, ErrBrokenInvariant) {
		t.Fatalf("expected broken invariant for full funding, got %v", err)
	}

	policy.Initial = 500
	if _, err := policy.InitBorrowAmount(big.NewInt(-1)); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected invalid parameters for negative downpayment, got %v", err)
	}
}
