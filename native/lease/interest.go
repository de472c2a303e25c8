package lease

import "math/big"

// InterestRate maps pool utilisation to the interest percent a new loan pays.
// The model is pure and stateless: every query recomputes the rate from the
// current pool figures.
type InterestRate struct {
	// Base is the interest applied at zero utilisation.
	Base Percent `json:"base"`
	// UtilizationOptimal is the utilisation at which exactly Base + Addon
	// is charged.
	UtilizationOptimal Percent `json:"utilization_optimal"`
	// Addon is the additional interest charged at the optimal utilisation
	// point, scaled linearly with utilisation around it.
	Addon Percent `json:"addon"`
}

// NewInterestRate constructs a validated interest rate model. Each parameter
// is bound to at most 100%; the computed result is not.
func NewInterestRate(base, utilizationOptimal, addon Percent) (InterestRate, error) {
	r := InterestRate{Base: base, UtilizationOptimal: utilizationOptimal, Addon: addon}
	if err := r.Validate(); err != nil {
		return InterestRate{}, err
	}
	return r, nil
}

// Validate rejects parameters above 100%. Deserialized models must be
// re-checked with it before use.
func (r InterestRate) Validate() error {
	if r.Base > PercentHundred || r.UtilizationOptimal > PercentHundred || r.Addon > PercentHundred {
		return invalidParameters("interest rates must not exceed 100%")
	}
	return nil
}

// Calculate derives the applicable interest percent from the amount the pool
// has lent out and the balance it still holds:
//
//	utilisation = liability / (liability + balance)
//	result      = base + addon * utilisation / optimal
//
// computed in the permille domain with truncating division. The result may
// exceed 100% near full utilisation; that is accepted behaviour. An empty
// pool yields exactly the base rate.
func (r InterestRate) Calculate(totalLiability, balance *big.Int) Percent {
	total := new(big.Int)
	if totalLiability != nil {
		total.Set(totalLiability)
	}
	if balance != nil {
		total.Add(total, balance)
	}
	utilisation := PercentFromRatio(totalLiability, total)
	if utilisation == PercentZero || r.UtilizationOptimal == PercentZero {
		return r.Base
	}
	addon := uint64(r.Addon.Units()) * uint64(utilisation.Units()) / uint64(r.UtilizationOptimal.Units())
	return r.Base + Percent(addon)
}
