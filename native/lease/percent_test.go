package lease

import (
	"math"
	"math/big"
	"testing"
)

func TestPercentConstruction(t *testing.T) {
	p, err := PercentFromPercent(55)
	if err != nil {
		t.Fatalf("from percent: %v", err)
	}
	if p != Percent(550) {
		t.Fatalf("unexpected permille units: got %d want 550", p.Units())
	}
	if _, err := PercentFromPercent(math.MaxUint32); err == nil {
		t.Fatalf("expected overflow error")
	}
	if got := PercentFromPermille(554).String(); got != "55.4%" {
		t.Fatalf("unexpected string: %s", got)
	}
	if got := Percent(550).String(); got != "55%" {
		t.Fatalf("unexpected string: %s", got)
	}
}

func TestPercentFromRatio(t *testing.T) {
	if got := PercentFromRatio(big.NewInt(1), big.NewInt(3)); got != Percent(333) {
		t.Fatalf("unexpected ratio: got %d want 333", got.Units())
	}
	if got := PercentFromRatio(big.NewInt(5), big.NewInt(4)); got != Percent(1250) {
		t.Fatalf("ratios above one must survive: got %d", got.Units())
	}
	if got := PercentFromRatio(nil, big.NewInt(3)); got != PercentZero {
		t.Fatalf("nil nominator must yield zero, got %d", got.Units())
	}
	if got := PercentFromRatio(big.NewInt(1), big.NewInt(0)); got != PercentZero {
		t.Fatalf("zero denominator must yield zero, got %d", got.Units())
	}
}

func TestPercentOfTruncates(t *testing.T) {
	if got := Percent(100).Of(big.NewInt(1000)); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected share: %s", got)
	}
	// 55.4% of 10 is 5.54 and must truncate to 5.
	if got := Percent(554).Of(big.NewInt(10)); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected truncated share: %s", got)
	}
	if got := Percent(554).Of(nil); got.Sign() != 0 {
		t.Fatalf("nil amount must yield zero, got %s", got)
	}
}

func TestPercentCheckedMath(t *testing.T) {
	sum, err := Percent(400).CheckedAdd(Percent(154))
	if err != nil || sum != Percent(554) {
		t.Fatalf("unexpected sum: %d %v", sum.Units(), err)
	}
	if _, err := Percent(math.MaxUint32).CheckedAdd(Percent(1)); err == nil {
		t.Fatalf("expected add overflow")
	}
	diff, err := Percent(554).CheckedSub(Percent(54))
	if err != nil || diff != Percent(500) {
		t.Fatalf("unexpected difference: %d %v", diff.Units(), err)
	}
	if _, err := Percent(100).CheckedSub(Percent(101)); err == nil {
		t.Fatalf("expected sub underflow")
	}
}
