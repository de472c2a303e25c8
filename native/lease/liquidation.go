package lease

import "math/big"

// LiquidationKind classifies the outcome of a liability check, in ascending
// severity.
type LiquidationKind uint8

const (
	LiquidationNone LiquidationKind = iota
	LiquidationFirstWarning
	LiquidationSecondWarning
	LiquidationThirdWarning
	LiquidationPartial
	LiquidationFull
)

func (k LiquidationKind) String() string {
	switch k {
	case LiquidationNone:
		return "none"
	case LiquidationFirstWarning:
		return "first_warning"
	case LiquidationSecondWarning:
		return "second_warning"
	case LiquidationThirdWarning:
		return "third_warning"
	case LiquidationPartial:
		return "partial_liquidation"
	case LiquidationFull:
		return "full_liquidation"
	default:
		return "unknown"
	}
}

// WarningInfo accompanies every non-none status so downstream notifiers can
// address the customer directly.
type WarningInfo struct {
	Customer   string  `json:"customer"`
	CurrentLTV Percent `json:"current_ltv"`
	HealthyLTV Percent `json:"healthy_ltv"`
	Asset      string  `json:"asset"`
}

// LiquidationStatus is derived on demand from the current loan-to-value and
// the liability policy; it is never persisted.
type LiquidationStatus struct {
	Kind LiquidationKind `json:"kind"`
	Info *WarningInfo    `json:"info,omitempty"`
	// Amount is the collateral value to sell for partial liquidation, or
	// the whole remaining collateral value for full liquidation.
	Amount *big.Int `json:"amount,omitempty"`
}

// ClassifyLTV places a loan-to-value against the policy thresholds. The
// warning range [healthy, max) splits into three equal bands of ascending
// severity; at or above max the position must liquidate.
func ClassifyLTV(currentLTV Percent, policy Liability) LiquidationKind {
	if currentLTV < policy.Healthy {
		return LiquidationNone
	}
	if currentLTV >= policy.Max {
		return LiquidationPartial
	}
	span := uint64(policy.Max - policy.Healthy)
	band := uint64(currentLTV-policy.Healthy) * 3 / span
	if band > 2 {
		band = 2
	}
	return LiquidationFirstWarning + LiquidationKind(band)
}

// liquidationValue computes the minimal collateral value to sell so the
// remaining position returns to the healthy loan-to-value:
//
//	owed - x = healthy * (collateralValue - x)
//	x = (owed - healthy*collateralValue) / (100% - healthy)
//
// rounded up so the post-sale ratio never stays above healthy.
func liquidationValue(owed, collateralValue *big.Int, healthy Percent) *big.Int {
	if healthy >= PercentHundred {
		return new(big.Int).Set(collateralValue)
	}
	num := new(big.Int).Mul(owed, big.NewInt(int64(PercentHundred)))
	num.Sub(num, new(big.Int).Mul(collateralValue, big.NewInt(int64(healthy))))
	if num.Sign() <= 0 {
		return big.NewInt(0)
	}
	den := big.NewInt(int64(PercentHundred - healthy))
	num.Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	return num.Quo(num, den)
}

// EvaluateLiability computes the current loan-to-value of a position and
// classifies it. owed and collateralValue are denominated in the same
// currency; the conversion from collateral units is the caller's concern.
func EvaluateLiability(policy Liability, customer, asset string, owed, collateralValue *big.Int) LiquidationStatus {
	if owed == nil || owed.Sign() == 0 {
		return LiquidationStatus{Kind: LiquidationNone}
	}
	info := &WarningInfo{
		Customer:   customer,
		HealthyLTV: policy.Healthy,
		Asset:      asset,
	}
	if collateralValue == nil || collateralValue.Sign() == 0 {
		info.CurrentLTV = Percent(^uint32(0))
		return LiquidationStatus{Kind: LiquidationFull, Info: info, Amount: big.NewInt(0)}
	}
	info.CurrentLTV = PercentFromRatio(owed, collateralValue)

	kind := ClassifyLTV(info.CurrentLTV, policy)
	status := LiquidationStatus{Kind: kind, Info: info}
	if kind != LiquidationPartial {
		if kind == LiquidationNone {
			status.Info = nil
		}
		return status
	}
	sale := liquidationValue(owed, collateralValue, policy.Healthy)
	if sale.Cmp(collateralValue) >= 0 {
		status.Kind = LiquidationFull
		status.Amount = new(big.Int).Set(collateralValue)
		return status
	}
	status.Amount = sale
	return status
}
