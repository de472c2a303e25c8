package lease

import (
	"math/big"
	"time"
)

// OpenForm carries everything collected at lease creation through the opening
// stages. Stage payloads embed it so a restart can resume from persisted
// state alone.
type OpenForm struct {
	LeaseID string `json:"lease_id"`
	// Customer is the only identity allowed to operate the lease.
	Customer string `json:"customer"`
	// Currency is the target asset bought and held as collateral. Fixed at
	// creation.
	Currency string `json:"currency"`
	// QuoteCurrency denominates the down payment, the loan and all
	// repayments.
	QuoteCurrency string `json:"quote_currency"`
	Downpayment   *big.Int `json:"downpayment"`
	// BorrowAmount is the pool funding requested per the liability policy.
	BorrowAmount *big.Int  `json:"borrow_amount"`
	Liability    Liability `json:"liability"`
	// MarginRate is the annualised margin the lease pays on top of the
	// pool interest.
	MarginRate Percent `json:"margin_rate"`
	// InterestRate is the annualised pool interest quoted when the lease
	// was requested.
	InterestRate      Percent       `json:"interest_rate"`
	InterestDuePeriod time.Duration `json:"interest_due_period"`
	GracePeriod       time.Duration `json:"grace_period"`
	CreatedAt         time.Time     `json:"created_at"`
}

// LeaseRecord is the durable aggregate owned by an active lease.
type LeaseRecord struct {
	LeaseID       string    `json:"lease_id"`
	Customer      string    `json:"customer"`
	Currency      string    `json:"currency"`
	QuoteCurrency string    `json:"quote_currency"`
	Liability     Liability `json:"liability"`
	Loan          *Loan     `json:"loan"`
	// Collateral is the amount of the lease asset held, in asset units.
	Collateral *big.Int `json:"collateral"`
}

// Clone returns a deep copy of the record.
func (r LeaseRecord) Clone() LeaseRecord {
	clone := r
	clone.Loan = r.Loan.Clone()
	if r.Collateral != nil {
		clone.Collateral = new(big.Int).Set(r.Collateral)
	}
	return clone
}

// Operations accepted by the inbound request surface.
const (
	OpRepay     = "repay"
	OpClose     = "close"
	OpLiquidate = "liquidate"
)

// Request is an inbound administrative message dispatched to the current
// lifecycle stage.
type Request struct {
	Op     string
	Caller string
	Amount *big.Int
	At     time.Time
	// Liquidation inputs resolved by the engine before dispatch.
	Liquidation *LiquidationStatus
	SaleUnits   *big.Int
}

// Completion is the asynchronous outcome of an outbound call, correlated to
// the waiting stage by request id.
type Completion struct {
	RequestID string    `json:"request_id"`
	At        time.Time `json:"at"`
	Failed    bool      `json:"failed,omitempty"`
	TimedOut  bool      `json:"timed_out,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	// Granted is the loan amount delivered by the pool.
	Granted *big.Int `json:"granted,omitempty"`
	// AccountRef identifies the opened remote-custody account.
	AccountRef string `json:"account_ref,omitempty"`
	// AmountOut is the quantity delivered by a completed swap.
	AmountOut *big.Int `json:"amount_out,omitempty"`
}

func (c Completion) failed() bool { return c.Failed || c.TimedOut }

// EffectKind enumerates the outbound instructions a transition can issue.
type EffectKind uint8

const (
	EffectRequestLoan EffectKind = iota
	EffectCancelLoan
	EffectOpenAccount
	EffectTransferOut
	EffectSwap
	EffectRefund
)

func (k EffectKind) String() string {
	switch k {
	case EffectRequestLoan:
		return "request_loan"
	case EffectCancelLoan:
		return "cancel_loan"
	case EffectOpenAccount:
		return "open_account"
	case EffectTransferOut:
		return "transfer_out"
	case EffectSwap:
		return "swap"
	case EffectRefund:
		return "refund"
	default:
		return "unknown"
	}
}

// Effect is a requested cross-system call. It is persisted as part of the
// advance (through the request id embedded in the next stage) and executed by
// the engine after the state change is durable.
type Effect struct {
	Kind      EffectKind
	RequestID string
	// Account is the transfer destination or refund recipient.
	Account  string
	Amount   *big.Int
	Currency string
}

// Response bundles the outcome of one state-machine advance.
type Response struct {
	Next    Controller
	Effects []Effect
	Receipt *Receipt
	Status  *LiquidationStatus
}

// LoanSnapshot is the query view over the loan ledger.
type LoanSnapshot struct {
	Principal           *big.Int  `json:"principal"`
	PreviousMarginDue   *big.Int  `json:"previous_margin_due"`
	PreviousInterestDue *big.Int  `json:"previous_interest_due"`
	CurrentMarginDue    *big.Int  `json:"current_margin_due"`
	CurrentInterestDue  *big.Int  `json:"current_interest_due"`
	MarginRate          Percent   `json:"margin_rate"`
	InterestRate        Percent   `json:"interest_rate"`
	PeriodStart         time.Time `json:"period_start"`
}

// StateSnapshot answers the status query for any lifecycle stage.
type StateSnapshot struct {
	LeaseID          string        `json:"lease_id"`
	Stage            string        `json:"stage"`
	Customer         string        `json:"customer"`
	Currency         string        `json:"currency"`
	PendingRequestID string        `json:"pending_request_id,omitempty"`
	FailureReason    string        `json:"failure_reason,omitempty"`
	CloseCause       string        `json:"close_cause,omitempty"`
	Loan             *LoanSnapshot `json:"loan,omitempty"`
	Collateral       *big.Int      `json:"collateral,omitempty"`
}

func loanSnapshot(l *Loan, at time.Time) *LoanSnapshot {
	probe := l.Clone()
	probe.rollOver(at)
	return &LoanSnapshot{
		Principal:           probe.Principal,
		PreviousMarginDue:   probe.PreviousMarginDue,
		PreviousInterestDue: probe.PreviousInterestDue,
		CurrentMarginDue:    probe.CurrentMarginDue(at),
		CurrentInterestDue:  probe.CurrentInterestDue(at),
		MarginRate:          probe.MarginRate,
		InterestRate:        probe.InterestRate,
		PeriodStart:         probe.PeriodStart,
	}
}
