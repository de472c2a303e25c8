package lease

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// Percent is a fixed-point percentage carried in permille units so that
// fractional rates such as 55.4% survive integer arithmetic. All derived
// calculations truncate toward zero to stay consistent with the big.Int
// amount math used across the module.
type Percent uint32

const (
	// PercentZero is the zero rate.
	PercentZero Percent = 0
	// PercentHundred is 100% expressed in permille units.
	PercentHundred Percent = 1000
)

var errPercentOverflow = errors.New("lease: percent overflow")

// PercentFromPercent builds a Percent from whole percentage points.
func PercentFromPercent(units uint32) (Percent, error) {
	if units > math.MaxUint32/10 {
		return PercentZero, errPercentOverflow
	}
	return Percent(units * 10), nil
}

// PercentFromPermille builds a Percent from permille units.
func PercentFromPermille(units uint32) Percent { return Percent(units) }

// PercentFromRatio derives the percentage nominator/denominator expresses,
// truncating toward zero. A zero denominator yields the zero percent rather
// than an error so callers can treat empty pools and empty positions
// uniformly.
func PercentFromRatio(nominator, denominator *big.Int) Percent {
	if nominator == nil || denominator == nil {
		return PercentZero
	}
	if nominator.Sign() <= 0 || denominator.Sign() <= 0 {
		return PercentZero
	}
	scaled := new(big.Int).Mul(nominator, big.NewInt(int64(PercentHundred)))
	scaled.Quo(scaled, denominator)
	if !scaled.IsUint64() || scaled.Uint64() > math.MaxUint32 {
		return Percent(math.MaxUint32)
	}
	return Percent(scaled.Uint64())
}

// Units returns the raw permille units.
func (p Percent) Units() uint32 { return uint32(p) }

// Of applies the percentage to the supplied amount, truncating toward zero.
// A nil amount is treated as zero.
func (p Percent) Of(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 || p == PercentZero {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(p)))
	return out.Quo(out, big.NewInt(int64(PercentHundred)))
}

// CheckedAdd returns the sum of the two rates, failing on uint32 overflow
// instead of wrapping.
func (p Percent) CheckedAdd(other Percent) (Percent, error) {
	if uint64(p)+uint64(other) > math.MaxUint32 {
		return PercentZero, errPercentOverflow
	}
	return p + other, nil
}

// CheckedSub returns the difference of the two rates, failing when the
// subtrahend exceeds the receiver.
func (p Percent) CheckedSub(other Percent) (Percent, error) {
	if other > p {
		return PercentZero, errPercentOverflow
	}
	return p - other, nil
}

func (p Percent) String() string {
	whole := uint32(p) / 10
	frac := uint32(p) % 10
	if frac == 0 {
		return fmt.Sprintf("%d%%", whole)
	}
	return fmt.Sprintf("%d.%d%%", whole, frac)
}
