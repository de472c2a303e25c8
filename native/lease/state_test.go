package lease

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"
)

// stubRequestIDs replaces the id generator with a deterministic sequence for
// the duration of the test.
func stubRequestIDs(t *testing.T) {
	t.Helper()
	orig := newRequestID
	n := 0
	newRequestID = func() string {
		n++
		return fmt.Sprintf("req-%d", n)
	}
	t.Cleanup(func() { newRequestID = orig })
}

func newTestForm() OpenForm {
	return OpenForm{
		LeaseID:           "lease-1",
		Customer:          "cust-1",
		Currency:          "ATOM",
		QuoteCurrency:     "USDC",
		Downpayment:       big.NewInt(1000),
		BorrowAmount:      big.NewInt(1000),
		Liability:         testPolicy,
		MarginRate:        Percent(50),
		InterestRate:      Percent(100),
		InterestDuePeriod: 73 * 24 * time.Hour,
		GracePeriod:       5 * 24 * time.Hour,
		CreatedAt:         loanStart,
	}
}

func TestOpeningHappyPath(t *testing.T) {
	stubRequestIDs(t)
	var state Controller = RequestingLoan{Form: newTestForm(), PendingRequestID: "loan-req"}

	// A completion for a request the stage is not waiting on is rejected.
	if _, err := state.HandleCompletion(Completion{RequestID: "stray"}); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected unknown request, got %v", err)
	}

	resp, err := state.HandleCompletion(Completion{RequestID: "loan-req", Granted: big.NewInt(1000)})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	opening, ok := resp.Next.(OpeningRemoteAccount)
	if !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
	if opening.LoanRequestID != "loan-req" {
		t.Fatalf("loan request id must be carried: %s", opening.LoanRequestID)
	}
	if len(resp.Effects) != 1 || resp.Effects[0].Kind != EffectOpenAccount {
		t.Fatalf("unexpected effects: %+v", resp.Effects)
	}
	if resp.Effects[0].RequestID != opening.PendingRequestID {
		t.Fatalf("effect must carry the new pending id")
	}

	resp, err = opening.HandleCompletion(Completion{RequestID: opening.PendingRequestID, AccountRef: "acct-7"})
	if err != nil {
		t.Fatalf("account open: %v", err)
	}
	transferring, ok := resp.Next.(TransferringOut)
	if !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
	if len(resp.Effects) != 1 || resp.Effects[0].Kind != EffectTransferOut {
		t.Fatalf("unexpected effects: %+v", resp.Effects)
	}
	if resp.Effects[0].Account != "acct-7" {
		t.Fatalf("transfer must target the opened account: %s", resp.Effects[0].Account)
	}
	// Down payment plus grant move out together.
	if resp.Effects[0].Amount.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("unexpected transfer amount: %s", resp.Effects[0].Amount)
	}

	resp, err = transferring.HandleCompletion(Completion{RequestID: transferring.PendingRequestID})
	if err != nil {
		t.Fatalf("transfer ack: %v", err)
	}
	buying, ok := resp.Next.(BuyingAsset)
	if !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
	if len(resp.Effects) != 1 || resp.Effects[0].Kind != EffectSwap {
		t.Fatalf("unexpected effects: %+v", resp.Effects)
	}
	if resp.Effects[0].Currency != "ATOM" {
		t.Fatalf("swap must target the lease asset: %s", resp.Effects[0].Currency)
	}

	resp, err = buying.HandleCompletion(Completion{RequestID: buying.PendingRequestID, AmountOut: big.NewInt(100), At: loanStart})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	active, ok := resp.Next.(*Active)
	if !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
	if active.Record.Loan.Principal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected principal: %s", active.Record.Loan.Principal)
	}
	if active.Record.Collateral.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected collateral: %s", active.Record.Collateral)
	}
}

func TestLoanDenialRefundsDownpayment(t *testing.T) {
	state := RequestingLoan{Form: newTestForm(), PendingRequestID: "loan-req"}
	resp, err := state.HandleCompletion(Completion{RequestID: "loan-req", Failed: true, Reason: "pool empty"})
	if err != nil {
		t.Fatalf("denial: %v", err)
	}
	failed, ok := resp.Next.(Failed)
	if !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
	if failed.Reason != "pool empty" {
		t.Fatalf("unexpected reason: %s", failed.Reason)
	}
	if len(resp.Effects) != 1 || resp.Effects[0].Kind != EffectRefund {
		t.Fatalf("unexpected effects: %+v", resp.Effects)
	}
	if resp.Effects[0].Amount.Cmp(big.NewInt(1000)) != 0 || resp.Effects[0].Account != "cust-1" {
		t.Fatalf("down payment must return to the customer: %+v", resp.Effects[0])
	}
}

func TestAccountOpenFailureReleasesLoan(t *testing.T) {
	state := OpeningRemoteAccount{
		Form:             newTestForm(),
		Granted:          big.NewInt(1000),
		LoanRequestID:    "loan-req",
		PendingRequestID: "open-req",
	}
	resp, err := state.HandleCompletion(Completion{RequestID: "open-req", Failed: true})
	if err != nil {
		t.Fatalf("failure: %v", err)
	}
	if _, ok := resp.Next.(Failed); !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
	if len(resp.Effects) != 2 {
		t.Fatalf("unexpected effects: %+v", resp.Effects)
	}
	if resp.Effects[0].Kind != EffectCancelLoan || resp.Effects[0].RequestID != "loan-req" {
		t.Fatalf("granted loan must be released first: %+v", resp.Effects[0])
	}
	if resp.Effects[1].Kind != EffectRefund {
		t.Fatalf("down payment must be refunded: %+v", resp.Effects[1])
	}
}

func TestTransferTimeoutRetriesOnce(t *testing.T) {
	state := TransferringOut{
		Form:             newTestForm(),
		Granted:          big.NewInt(1000),
		AccountRef:       "acct-7",
		LoanRequestID:    "loan-req",
		PendingRequestID: "xfer-req",
	}

	resp, err := state.HandleCompletion(Completion{RequestID: "xfer-req", TimedOut: true})
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	retried, ok := resp.Next.(TransferringOut)
	if !ok || !retried.Retried {
		t.Fatalf("first timeout must retry in place: %+v", resp.Next)
	}
	// The retry reuses the original transfer id so the remote side can
	// deduplicate.
	if len(resp.Effects) != 1 || resp.Effects[0].RequestID != "xfer-req" {
		t.Fatalf("unexpected retry effects: %+v", resp.Effects)
	}

	resp, err = retried.HandleCompletion(Completion{RequestID: "xfer-req", TimedOut: true})
	if err != nil {
		t.Fatalf("second timeout: %v", err)
	}
	if _, ok := resp.Next.(Failed); !ok {
		t.Fatalf("second timeout must fail the opening: %T", resp.Next)
	}
	if len(resp.Effects) != 2 || resp.Effects[0].Kind != EffectCancelLoan {
		t.Fatalf("unexpected unwind effects: %+v", resp.Effects)
	}
}

func TestSwapWithoutProceedsFails(t *testing.T) {
	state := BuyingAsset{
		Form:             newTestForm(),
		Granted:          big.NewInt(1000),
		AccountRef:       "acct-7",
		LoanRequestID:    "loan-req",
		PendingRequestID: "swap-req",
	}
	resp, err := state.HandleCompletion(Completion{RequestID: "swap-req", AmountOut: big.NewInt(0), At: loanStart})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if _, ok := resp.Next.(Failed); !ok {
		t.Fatalf("unexpected next stage: %T", resp.Next)
	}
	if len(resp.Effects) != 2 || resp.Effects[0].Kind != EffectCancelLoan {
		t.Fatalf("unexpected unwind effects: %+v", resp.Effects)
	}
}

func TestParkedStagesRejectRequests(t *testing.T) {
	form := newTestForm()
	parked := []Controller{
		RequestingLoan{Form: form, PendingRequestID: "r"},
		OpeningRemoteAccount{Form: form, Granted: big.NewInt(1), LoanRequestID: "l", PendingRequestID: "r"},
		TransferringOut{Form: form, Granted: big.NewInt(1), AccountRef: "a", LoanRequestID: "l", PendingRequestID: "r"},
		BuyingAsset{Form: form, Granted: big.NewInt(1), AccountRef: "a", LoanRequestID: "l", PendingRequestID: "r"},
		Failed{Form: form, Reason: "x"},
	}
	for _, state := range parked {
		req := Request{Op: OpRepay, Caller: "cust-1", Amount: big.NewInt(1), At: loanStart}
		if _, err := state.HandleRequest(req); !errors.Is(err, ErrUnsupportedOperation) {
			t.Fatalf("%s: expected unsupported operation, got %v", state.Stage(), err)
		}
	}
}
