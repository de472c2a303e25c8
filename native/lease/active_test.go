package lease

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func newTestActive(t *testing.T) *Active {
	t.Helper()
	loan, err := NewLoan(big.NewInt(1000), Percent(50), Percent(100), 73*24*time.Hour, 5*24*time.Hour, loanStart)
	if err != nil {
		t.Fatalf("new loan: %v", err)
	}
	return &Active{Record: LeaseRecord{
		LeaseID:       "lease-1",
		Customer:      "cust-1",
		Currency:      "ATOM",
		QuoteCurrency: "USDC",
		Liability:     testPolicy,
		Loan:          loan,
		Collateral:    big.NewInt(100),
	}}
}

func TestActiveRepay(t *testing.T) {
	state := newTestActive(t)

	if _, err := state.HandleRequest(Request{Op: OpRepay, Caller: "stranger", Amount: big.NewInt(1), At: loanStart}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	resp, err := state.HandleRequest(Request{Op: OpRepay, Caller: "cust-1", Amount: big.NewInt(400), At: loanStart})
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	next, ok := resp.Next.(*Active)
	if !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
	if next.Record.Loan.Principal.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("unexpected principal: %s", next.Record.Loan.Principal)
	}
	// The advance works on a copy; the dispatched state is untouched until
	// the engine persists the response.
	if state.Record.Loan.Principal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("repay mutated the dispatched state")
	}
	if len(resp.Effects) != 0 {
		t.Fatalf("no change expected: %+v", resp.Effects)
	}
}

func TestActiveRepayRefundsOverpayment(t *testing.T) {
	state := newTestActive(t)
	resp, err := state.HandleRequest(Request{Op: OpRepay, Caller: "cust-1", Amount: big.NewInt(1050), At: loanStart})
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if !resp.Receipt.Close || resp.Receipt.Change.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected receipt: %+v", resp.Receipt)
	}
	if len(resp.Effects) != 1 || resp.Effects[0].Kind != EffectRefund {
		t.Fatalf("surplus must be refunded: %+v", resp.Effects)
	}
	if resp.Effects[0].Amount.Cmp(big.NewInt(50)) != 0 || resp.Effects[0].Currency != "USDC" {
		t.Fatalf("unexpected refund: %+v", resp.Effects[0])
	}
	// Repayment alone does not close the lease; the explicit close does.
	if _, ok := resp.Next.(*Active); !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
}

func TestActiveRepayPastGrace(t *testing.T) {
	state := newTestActive(t)
	at := loanStart.Add(73*24*time.Hour + 6*24*time.Hour)
	if _, err := state.HandleRequest(Request{Op: OpRepay, Caller: "cust-1", Amount: big.NewInt(1), At: at}); !errors.Is(err, ErrPastDue) {
		t.Fatalf("expected past due, got %v", err)
	}
}

func TestActiveClose(t *testing.T) {
	state := newTestActive(t)

	if _, err := state.HandleRequest(Request{Op: OpClose, Caller: "stranger", At: loanStart}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := state.HandleRequest(Request{Op: OpClose, Caller: "cust-1", At: loanStart}); !errors.Is(err, ErrLoanNotFullyRepaid) {
		t.Fatalf("expected outstanding loan guard, got %v", err)
	}

	resp, err := state.HandleRequest(Request{Op: OpRepay, Caller: "cust-1", Amount: big.NewInt(1000), At: loanStart})
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	state = resp.Next.(*Active)

	resp, err = state.HandleRequest(Request{Op: OpClose, Caller: "cust-1", At: loanStart})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	closed, ok := resp.Next.(Closed)
	if !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
	if closed.Cause != "repaid" {
		t.Fatalf("unexpected cause: %s", closed.Cause)
	}
	if len(resp.Effects) != 1 || resp.Effects[0].Kind != EffectRefund {
		t.Fatalf("collateral must return to the customer: %+v", resp.Effects)
	}
	if resp.Effects[0].Amount.Cmp(big.NewInt(100)) != 0 || resp.Effects[0].Currency != "ATOM" {
		t.Fatalf("unexpected collateral refund: %+v", resp.Effects[0])
	}

	if _, err := closed.HandleRequest(Request{Op: OpRepay, Caller: "cust-1", Amount: big.NewInt(1), At: loanStart}); !errors.Is(err, ErrLoanClosed) {
		t.Fatalf("expected loan closed, got %v", err)
	}
}

func TestActivePartialLiquidation(t *testing.T) {
	stubRequestIDs(t)
	state := newTestActive(t)
	status := &LiquidationStatus{Kind: LiquidationPartial, Amount: big.NewInt(500)}

	resp, err := state.HandleRequest(Request{Op: OpLiquidate, At: loanStart, Liquidation: status, SaleUnits: big.NewInt(50)})
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	next := resp.Next.(*Active)
	if next.PendingLiquidationID == "" || next.FullLiquidation {
		t.Fatalf("unexpected pending sale: %+v", next)
	}
	if len(resp.Effects) != 1 || resp.Effects[0].Kind != EffectSwap {
		t.Fatalf("unexpected effects: %+v", resp.Effects)
	}
	if resp.Effects[0].Amount.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected sale units: %s", resp.Effects[0].Amount)
	}

	// A second liquidation cannot start while one is in flight.
	if _, err := next.HandleRequest(Request{Op: OpLiquidate, At: loanStart, Liquidation: status, SaleUnits: big.NewInt(1)}); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected unsupported operation, got %v", err)
	}

	// A failed sale clears the pending marker and waits for the next check.
	resp, err = next.HandleCompletion(Completion{RequestID: next.PendingLiquidationID, Failed: true, At: loanStart})
	if err != nil {
		t.Fatalf("failed sale: %v", err)
	}
	cleared := resp.Next.(*Active)
	if cleared.PendingLiquidationID != "" || cleared.PendingSaleUnits != nil {
		t.Fatalf("pending sale must be cleared: %+v", cleared)
	}
	if cleared.Record.Collateral.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("failed sale must not touch collateral: %s", cleared.Record.Collateral)
	}

	// The successful sale burns the sold units and pays the proceeds into
	// the loan through the regular allocator.
	resp, err = next.HandleCompletion(Completion{RequestID: next.PendingLiquidationID, AmountOut: big.NewInt(500), At: loanStart})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	settled := resp.Next.(*Active)
	if settled.Record.Collateral.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected collateral: %s", settled.Record.Collateral)
	}
	if settled.Record.Loan.Principal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected principal: %s", settled.Record.Loan.Principal)
	}
	if settled.PendingLiquidationID != "" {
		t.Fatalf("pending sale must be cleared after settlement")
	}
}

func TestActiveFullLiquidationCloses(t *testing.T) {
	stubRequestIDs(t)
	state := newTestActive(t)
	status := &LiquidationStatus{Kind: LiquidationFull, Amount: big.NewInt(1000)}

	resp, err := state.HandleRequest(Request{Op: OpLiquidate, At: loanStart, Liquidation: status, SaleUnits: big.NewInt(100)})
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	pending := resp.Next.(*Active)

	// Proceeds fall short of the debt; a full liquidation still closes and
	// the shortfall stays with the pool.
	resp, err = pending.HandleCompletion(Completion{RequestID: pending.PendingLiquidationID, AmountOut: big.NewInt(900), At: loanStart})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	closed, ok := resp.Next.(Closed)
	if !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
	if closed.Cause != "liquidated" {
		t.Fatalf("unexpected cause: %s", closed.Cause)
	}
	if closed.Record.Collateral.Sign() != 0 {
		t.Fatalf("unexpected remaining collateral: %s", closed.Record.Collateral)
	}
	if len(resp.Effects) != 0 {
		t.Fatalf("nothing left to refund: %+v", resp.Effects)
	}
}

func TestActiveWarningDoesNotMutate(t *testing.T) {
	state := newTestActive(t)
	status := &LiquidationStatus{Kind: LiquidationFirstWarning, Info: &WarningInfo{Customer: "cust-1", CurrentLTV: 710, HealthyLTV: 700, Asset: "ATOM"}}
	resp, err := state.HandleRequest(Request{Op: OpLiquidate, At: loanStart, Liquidation: status})
	if err != nil {
		t.Fatalf("warning: %v", err)
	}
	if resp.Next != Controller(state) {
		t.Fatalf("warnings must leave the state in place")
	}
	if resp.Status == nil || resp.Status.Kind != LiquidationFirstWarning {
		t.Fatalf("unexpected status: %+v", resp.Status)
	}
}
