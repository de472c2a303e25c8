package lease

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"leasecore/core/events"
	nativecommon "leasecore/native/common"
)

const moduleName = "lease"

// engineState is the persistence surface the engine depends on. The store in
// this package implements it over a key-value database; tests substitute maps.
type engineState interface {
	LeaseGet(leaseID string) (Controller, bool, error)
	LeasePut(leaseID string, state Controller) error
	CustomerLeases(customer string) ([]string, error)
	AppendCustomerLease(customer, leaseID string) error
}

// PoolService is the liquidity pool the lease borrows from. Requests are
// correlated by caller-chosen ids so completions can be matched later.
type PoolService interface {
	RequestLoan(requestID string, amount *big.Int) error
	CancelLoan(requestID string) error
	// Balances reports the pool's outstanding liability and free balance,
	// the two inputs of the interest rate model.
	Balances() (totalLiability, balance *big.Int, err error)
}

// CustodyService opens remote accounts across the trust boundary.
type CustodyService interface {
	OpenAccount(requestID string) error
}

// TransferService moves funds to a remote-custody account.
type TransferService interface {
	TransferOut(requestID, accountRef string, amount *big.Int) error
}

// SwapService exchanges funds into the target currency (or back).
type SwapService interface {
	Swap(requestID string, amountIn *big.Int, targetCurrency string) error
}

// PriceOracle quotes the lease asset against the quote currency.
type PriceOracle interface {
	// Price returns how many quote units one asset unit is worth. It fails
	// with ErrNoPrice when no feed covers the pair.
	Price(asset, quote string) (*big.Rat, error)
}

// BankService returns funds to customers.
type BankService interface {
	Refund(account string, amount *big.Int, currency string) error
}

// Params groups the protocol configuration every new lease is built from.
type Params struct {
	Liability         Liability
	RateModel         InterestRate
	MarginRate        Percent
	InterestDuePeriod time.Duration
	GracePeriod       time.Duration
	QuoteCurrency     string
	LeaseCurrencies   []string
	MinDownpayment    *big.Int
}

// Validate rejects parameter sets that could never produce a valid lease.
func (p Params) Validate() error {
	if err := p.Liability.InvariantHeld(); err != nil {
		return err
	}
	if err := p.RateModel.Validate(); err != nil {
		return err
	}
	if p.InterestDuePeriod <= 0 {
		return invalidParameters("interest due period must be positive")
	}
	if p.GracePeriod < 0 || p.GracePeriod >= p.InterestDuePeriod {
		return invalidParameters("grace period must be shorter than the due period")
	}
	if strings.TrimSpace(p.QuoteCurrency) == "" {
		return invalidParameters("quote currency required")
	}
	if len(p.LeaseCurrencies) == 0 {
		return invalidParameters("at least one lease currency required")
	}
	return nil
}

// NormalizeCurrency canonicalises a symbol and checks it against the
// configured lease asset set.
func NormalizeCurrency(symbol string, supported []string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	for _, s := range supported {
		if strings.ToUpper(strings.TrimSpace(s)) == trimmed && trimmed != "" {
			return trimmed, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, symbol)
}

// Engine drives the lease lifecycle state machine and the loan accounting
// behind it. Advances are transactional per inbound message: the next state
// is persisted before any outbound call is requested, so a restart resumes
// purely from storage.
type Engine struct {
	state    engineState
	pool     PoolService
	custody  CustodyService
	transfer TransferService
	swapper  SwapService
	oracle   PriceOracle
	bank     BankService
	emitter  events.Emitter
	params   Params
	pauses   nativecommon.PauseView
	nowFn    func() time.Time
}

// NewEngine constructs an engine from validated protocol parameters.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
	}, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCollaborators wires the external services the lifecycle depends on.
func (e *Engine) SetCollaborators(pool PoolService, custody CustodyService, transfer TransferService, swapper SwapService, oracle PriceOracle, bank BankService) {
	e.pool = pool
	e.custody = custody
	e.transfer = transfer
	e.swapper = swapper
	e.oracle = oracle
	e.bank = bank
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause view consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// Params returns the protocol parameters the engine was built with.
func (e *Engine) Params() Params { return e.params }

// QuoteResult describes the position a down payment would open.
type QuoteResult struct {
	Borrow       *big.Int `json:"borrow"`
	Total        *big.Int `json:"total"`
	AnnualRate   Percent  `json:"annual_rate"`
	MarginRate   Percent  `json:"margin_rate"`
	InterestRate Percent  `json:"interest_rate"`
}

// Quote answers what the liability policy and current pool utilisation would
// grant for a down payment, without creating a lease.
func (e *Engine) Quote(downpayment *big.Int) (*QuoteResult, error) {
	if downpayment == nil || downpayment.Sign() <= 0 {
		return nil, ErrInsufficientPayment
	}
	borrow, err := e.params.Liability.InitBorrowAmount(downpayment)
	if err != nil {
		return nil, err
	}
	interest, err := e.currentInterestRate()
	if err != nil {
		return nil, err
	}
	return &QuoteResult{
		Borrow:       borrow,
		Total:        new(big.Int).Add(downpayment, borrow),
		AnnualRate:   e.params.MarginRate + interest,
		MarginRate:   e.params.MarginRate,
		InterestRate: interest,
	}, nil
}

func (e *Engine) currentInterestRate() (Percent, error) {
	if e.pool == nil {
		return PercentZero, errNilCollaborator
	}
	liability, balance, err := e.pool.Balances()
	if err != nil {
		return PercentZero, fmt.Errorf("pool balances: %w", err)
	}
	return e.params.RateModel.Calculate(liability, balance), nil
}

// OpenLease starts the lifecycle for a new position. The down payment is
// assumed to be already received in the quote currency; the engine requests
// the pool loan and parks the lease waiting for the grant.
func (e *Engine) OpenLease(customer, currency string, downpayment *big.Int) (string, error) {
	if e.state == nil {
		return "", errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return "", err
	}
	if strings.TrimSpace(customer) == "" {
		return "", invalidParameters("customer required")
	}
	normalized, err := NormalizeCurrency(currency, e.params.LeaseCurrencies)
	if err != nil {
		return "", err
	}
	if downpayment == nil || downpayment.Sign() <= 0 {
		return "", ErrInsufficientPayment
	}
	if e.params.MinDownpayment != nil && downpayment.Cmp(e.params.MinDownpayment) < 0 {
		return "", ErrInsufficientPayment
	}
	borrow, err := e.params.Liability.InitBorrowAmount(downpayment)
	if err != nil {
		return "", err
	}
	if borrow.Sign() == 0 {
		return "", ErrInsufficientPayment
	}
	interest, err := e.currentInterestRate()
	if err != nil {
		return "", err
	}

	now := e.nowFn()
	form := OpenForm{
		LeaseID:           newRequestID(),
		Customer:          strings.TrimSpace(customer),
		Currency:          normalized,
		QuoteCurrency:     e.params.QuoteCurrency,
		Downpayment:       new(big.Int).Set(downpayment),
		BorrowAmount:      borrow,
		Liability:         e.params.Liability,
		MarginRate:        e.params.MarginRate,
		InterestRate:      interest,
		InterestDuePeriod: e.params.InterestDuePeriod,
		GracePeriod:       e.params.GracePeriod,
		CreatedAt:         now,
	}
	state := RequestingLoan{Form: form, PendingRequestID: newRequestID()}

	if err := e.state.LeasePut(form.LeaseID, state); err != nil {
		return "", err
	}
	if err := e.state.AppendCustomerLease(form.Customer, form.LeaseID); err != nil {
		return "", err
	}
	if err := e.dispatch([]Effect{{
		Kind:      EffectRequestLoan,
		RequestID: state.PendingRequestID,
		Amount:    borrow,
		Currency:  form.QuoteCurrency,
	}}); err != nil {
		return "", err
	}
	e.emitter.Emit(NewRequestedEvent(form))
	return form.LeaseID, nil
}

// HandleCompletion delivers the asynchronous outcome of an outbound call to
// the stage waiting on it and advances the machine.
func (e *Engine) HandleCompletion(leaseID string, c Completion) error {
	state, err := e.load(leaseID)
	if err != nil {
		return err
	}
	if c.At.IsZero() {
		c.At = e.nowFn()
	}
	resp, err := state.HandleCompletion(c)
	if err != nil {
		return err
	}
	if err := e.apply(leaseID, resp); err != nil {
		return err
	}
	e.emitTransition(state, resp)
	return nil
}

// Repay distributes a customer payment across the owed buckets. Only the
// lease's customer may pay, and only while the position is active.
func (e *Engine) Repay(leaseID, caller string, amount *big.Int) (*Receipt, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	state, err := e.load(leaseID)
	if err != nil {
		return nil, err
	}
	resp, err := state.HandleRequest(Request{
		Op:     OpRepay,
		Caller: strings.TrimSpace(caller),
		Amount: amount,
		At:     e.nowFn(),
	})
	if err != nil {
		return nil, err
	}
	if err := e.apply(leaseID, resp); err != nil {
		return nil, err
	}
	if active, ok := resp.Next.(*Active); ok {
		e.emitter.Emit(NewRepaidEvent(active.Record, resp.Receipt))
	}
	return resp.Receipt, nil
}

// Close settles a fully repaid lease and returns the collateral.
func (e *Engine) Close(leaseID, caller string) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	state, err := e.load(leaseID)
	if err != nil {
		return err
	}
	resp, err := state.HandleRequest(Request{
		Op:     OpClose,
		Caller: strings.TrimSpace(caller),
		At:     e.nowFn(),
	})
	if err != nil {
		return err
	}
	if err := e.apply(leaseID, resp); err != nil {
		return err
	}
	if closed, ok := resp.Next.(Closed); ok {
		e.emitter.Emit(NewClosedEvent(closed.Record, closed.Cause))
	}
	return nil
}

// CheckLiability recomputes the loan-to-value of an active lease against the
// oracle price and acts on the classification: warnings are emitted, partial
// and full liquidations request a collateral sale.
func (e *Engine) CheckLiability(leaseID string) (*LiquidationStatus, error) {
	state, err := e.load(leaseID)
	if err != nil {
		return nil, err
	}
	active, ok := state.(*Active)
	if !ok {
		return nil, unsupportedOperation(OpLiquidate, state.Stage())
	}
	if e.oracle == nil {
		return nil, errNilCollaborator
	}

	now := e.nowFn()
	record := active.Record
	price, err := e.oracle.Price(record.Currency, record.QuoteCurrency)
	if err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrNoPrice
	}
	owed := record.Loan.TotalDue(now)
	collateralValue := valueAt(record.Collateral, price)
	status := EvaluateLiability(record.Liability, record.Customer, record.Currency, owed, collateralValue)

	req := Request{Op: OpLiquidate, At: now, Liquidation: &status}
	switch status.Kind {
	case LiquidationPartial:
		req.SaleUnits = minBig(unitsFor(status.Amount, price), record.Collateral)
	case LiquidationFull:
		req.SaleUnits = new(big.Int).Set(record.Collateral)
	}

	resp, err := state.HandleRequest(req)
	if err != nil {
		return nil, err
	}
	if err := e.apply(leaseID, resp); err != nil {
		return nil, err
	}
	switch status.Kind {
	case LiquidationFirstWarning, LiquidationSecondWarning, LiquidationThirdWarning:
		e.emitter.Emit(NewWarningEvent(leaseID, status))
	case LiquidationPartial, LiquidationFull:
		e.emitter.Emit(NewLiquidationEvent(leaseID, status))
	}
	return resp.Status, nil
}

// Status answers the query surface for any lifecycle stage.
func (e *Engine) Status(leaseID string) (StateSnapshot, error) {
	state, err := e.load(leaseID)
	if err != nil {
		return StateSnapshot{}, err
	}
	return state.Snapshot(e.nowFn()), nil
}

// LeasesByCustomer lists the lease ids a customer has opened.
func (e *Engine) LeasesByCustomer(customer string) ([]string, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.CustomerLeases(strings.TrimSpace(customer))
}

func (e *Engine) load(leaseID string) (Controller, error) {
	if e.state == nil {
		return nil, errNilState
	}
	state, ok, err := e.state.LeaseGet(leaseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLeaseNotFound
	}
	return state, nil
}

// apply persists the advance, then requests its outbound effects. Persisting
// first keeps the request id durable before the call leaves the process.
func (e *Engine) apply(leaseID string, resp *Response) error {
	if resp == nil || resp.Next == nil {
		return brokenInvariant("engine", "advance produced no next state")
	}
	if err := e.state.LeasePut(leaseID, resp.Next); err != nil {
		return err
	}
	return e.dispatch(resp.Effects)
}

func (e *Engine) dispatch(effects []Effect) error {
	for _, effect := range effects {
		var err error
		switch effect.Kind {
		case EffectRequestLoan:
			if e.pool == nil {
				return errNilCollaborator
			}
			err = e.pool.RequestLoan(effect.RequestID, effect.Amount)
		case EffectCancelLoan:
			if e.pool == nil {
				return errNilCollaborator
			}
			err = e.pool.CancelLoan(effect.RequestID)
		case EffectOpenAccount:
			if e.custody == nil {
				return errNilCollaborator
			}
			err = e.custody.OpenAccount(effect.RequestID)
		case EffectTransferOut:
			if e.transfer == nil {
				return errNilCollaborator
			}
			err = e.transfer.TransferOut(effect.RequestID, effect.Account, effect.Amount)
		case EffectSwap:
			if e.swapper == nil {
				return errNilCollaborator
			}
			err = e.swapper.Swap(effect.RequestID, effect.Amount, effect.Currency)
		case EffectRefund:
			if e.bank == nil {
				return errNilCollaborator
			}
			err = e.bank.Refund(effect.Account, effect.Amount, effect.Currency)
		default:
			err = brokenInvariant("engine", "unknown effect kind")
		}
		if err != nil {
			return fmt.Errorf("dispatch %s: %w", effect.Kind, err)
		}
	}
	return nil
}

func (e *Engine) emitTransition(prev Controller, resp *Response) {
	switch next := resp.Next.(type) {
	case *Active:
		if prev.Stage() != StageActive {
			e.emitter.Emit(NewActiveEvent(next.Record))
		}
	case Failed:
		e.emitter.Emit(NewFailedEvent(next.Form, next.Reason))
	case Closed:
		if prev.Stage() != StageClosed {
			e.emitter.Emit(NewClosedEvent(next.Record, next.Cause))
		}
	default:
		if resp.Next.Stage() != prev.Stage() {
			snap := resp.Next.Snapshot(e.nowFn())
			e.emitter.Emit(NewStageEvent(snap.LeaseID, snap.Customer, resp.Next.Stage()))
		}
	}
}

// valueAt converts collateral units into quote value at the given price,
// truncating toward zero.
func valueAt(units *big.Int, price *big.Rat) *big.Int {
	if units == nil || units.Sign() <= 0 {
		return big.NewInt(0)
	}
	v := new(big.Int).Mul(units, price.Num())
	return v.Quo(v, price.Denom())
}

// unitsFor converts a quote value into collateral units at the given price,
// rounding up so the sale never undershoots the required value.
func unitsFor(value *big.Int, price *big.Rat) *big.Int {
	if value == nil || value.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(value, price.Denom())
	den := new(big.Int).Set(price.Num())
	num.Add(num, new(big.Int).Sub(den, big.NewInt(1)))
	return num.Quo(num, den)
}
