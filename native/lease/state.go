package lease

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Stage tags the lifecycle variant a lease currently persists as. Exactly one
// variant exists at any time; transitions are its only mutation operator.
type Stage uint8

const (
	StageRequestingLoan Stage = iota
	StageOpeningRemoteAccount
	StageTransferringOut
	StageBuyingAsset
	StageActive
	StageClosed
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageRequestingLoan:
		return "requesting_loan"
	case StageOpeningRemoteAccount:
		return "opening_remote_account"
	case StageTransferringOut:
		return "transferring_out"
	case StageBuyingAsset:
		return "buying_asset"
	case StageActive:
		return "active"
	case StageClosed:
		return "closed"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// newRequestID mints correlation identifiers for outbound calls. Tests swap
// it for a deterministic sequence.
var newRequestID = uuid.NewString

// Controller is the uniform capability set every lifecycle stage implements.
// Stages that do not declare support for an event report it as unsupported
// and leave the persisted state untouched.
type Controller interface {
	Stage() Stage
	HandleRequest(req Request) (*Response, error)
	HandleCompletion(c Completion) (*Response, error)
	Snapshot(at time.Time) StateSnapshot
}

func checkRequestID(want, got string) error {
	if want != got {
		return ErrUnknownRequest
	}
	return nil
}

// RequestingLoan waits for the pool's grant decision.
type RequestingLoan struct {
	Form             OpenForm `json:"form"`
	PendingRequestID string   `json:"pending_request_id"`
}

func (s RequestingLoan) Stage() Stage { return StageRequestingLoan }

func (s RequestingLoan) HandleRequest(req Request) (*Response, error) {
	return nil, unsupportedOperation(req.Op, s.Stage())
}

func (s RequestingLoan) HandleCompletion(c Completion) (*Response, error) {
	if err := checkRequestID(s.PendingRequestID, c.RequestID); err != nil {
		return nil, err
	}
	if c.failed() || c.Granted == nil || c.Granted.Sign() <= 0 {
		reason := c.Reason
		if reason == "" {
			reason = "loan denied"
		}
		return &Response{
			Next: Failed{Form: s.Form, Reason: reason},
			Effects: []Effect{{
				Kind:     EffectRefund,
				Account:  s.Form.Customer,
				Amount:   s.Form.Downpayment,
				Currency: s.Form.QuoteCurrency,
			}},
		}, nil
	}
	next := OpeningRemoteAccount{
		Form:             s.Form,
		Granted:          new(big.Int).Set(c.Granted),
		LoanRequestID:    s.PendingRequestID,
		PendingRequestID: newRequestID(),
	}
	return &Response{
		Next:    next,
		Effects: []Effect{{Kind: EffectOpenAccount, RequestID: next.PendingRequestID}},
	}, nil
}

func (s RequestingLoan) Snapshot(time.Time) StateSnapshot {
	return StateSnapshot{
		LeaseID:          s.Form.LeaseID,
		Stage:            s.Stage().String(),
		Customer:         s.Form.Customer,
		Currency:         s.Form.Currency,
		PendingRequestID: s.PendingRequestID,
	}
}

// OpeningRemoteAccount waits for the custody channel to open. Its failure
// path must release the granted loan back to the pool before terminating;
// losing that release would lock pool funds indefinitely.
type OpeningRemoteAccount struct {
	Form             OpenForm `json:"form"`
	Granted          *big.Int `json:"granted"`
	LoanRequestID    string   `json:"loan_request_id"`
	PendingRequestID string   `json:"pending_request_id"`
}

func (s OpeningRemoteAccount) Stage() Stage { return StageOpeningRemoteAccount }

func (s OpeningRemoteAccount) HandleRequest(req Request) (*Response, error) {
	return nil, unsupportedOperation(req.Op, s.Stage())
}

func (s OpeningRemoteAccount) unwind(reason string) *Response {
	return &Response{
		Next: Failed{Form: s.Form, Reason: reason},
		Effects: []Effect{
			{Kind: EffectCancelLoan, RequestID: s.LoanRequestID},
			{Kind: EffectRefund, Account: s.Form.Customer, Amount: s.Form.Downpayment, Currency: s.Form.QuoteCurrency},
		},
	}
}

func (s OpeningRemoteAccount) HandleCompletion(c Completion) (*Response, error) {
	if err := checkRequestID(s.PendingRequestID, c.RequestID); err != nil {
		return nil, err
	}
	if c.failed() || c.AccountRef == "" {
		reason := c.Reason
		if reason == "" {
			reason = "remote account not opened"
		}
		return s.unwind(reason), nil
	}
	next := TransferringOut{
		Form:             s.Form,
		Granted:          s.Granted,
		AccountRef:       c.AccountRef,
		LoanRequestID:    s.LoanRequestID,
		PendingRequestID: newRequestID(),
	}
	return &Response{
		Next: next,
		Effects: []Effect{{
			Kind:      EffectTransferOut,
			RequestID: next.PendingRequestID,
			Account:   c.AccountRef,
			Amount:    new(big.Int).Add(s.Form.Downpayment, s.Granted),
			Currency:  s.Form.QuoteCurrency,
		}},
	}, nil
}

func (s OpeningRemoteAccount) Snapshot(time.Time) StateSnapshot {
	return StateSnapshot{
		LeaseID:          s.Form.LeaseID,
		Stage:            s.Stage().String(),
		Customer:         s.Form.Customer,
		Currency:         s.Form.Currency,
		PendingRequestID: s.PendingRequestID,
	}
}

// TransferringOut waits for the funds to land on the remote account. A first
// timeout is retried once with the same transfer id; the remote channel
// sequence makes the retry idempotent.
type TransferringOut struct {
	Form             OpenForm `json:"form"`
	Granted          *big.Int `json:"granted"`
	AccountRef       string   `json:"account_ref"`
	LoanRequestID    string   `json:"loan_request_id"`
	Retried          bool     `json:"retried,omitempty"`
	PendingRequestID string   `json:"pending_request_id"`
}

func (s TransferringOut) Stage() Stage { return StageTransferringOut }

func (s TransferringOut) HandleRequest(req Request) (*Response, error) {
	return nil, unsupportedOperation(req.Op, s.Stage())
}

func (s TransferringOut) total() *big.Int {
	return new(big.Int).Add(s.Form.Downpayment, s.Granted)
}

func (s TransferringOut) HandleCompletion(c Completion) (*Response, error) {
	if err := checkRequestID(s.PendingRequestID, c.RequestID); err != nil {
		return nil, err
	}
	if c.TimedOut && !s.Retried {
		retry := s
		retry.Retried = true
		return &Response{
			Next: retry,
			Effects: []Effect{{
				Kind:      EffectTransferOut,
				RequestID: s.PendingRequestID,
				Account:   s.AccountRef,
				Amount:    s.total(),
				Currency:  s.Form.QuoteCurrency,
			}},
		}, nil
	}
	if c.failed() {
		reason := c.Reason
		if reason == "" {
			reason = "transfer not acknowledged"
		}
		return &Response{
			Next: Failed{Form: s.Form, Reason: reason},
			Effects: []Effect{
				{Kind: EffectCancelLoan, RequestID: s.LoanRequestID},
				{Kind: EffectRefund, Account: s.Form.Customer, Amount: s.Form.Downpayment, Currency: s.Form.QuoteCurrency},
			},
		}, nil
	}
	next := BuyingAsset{
		Form:             s.Form,
		Granted:          s.Granted,
		AccountRef:       s.AccountRef,
		LoanRequestID:    s.LoanRequestID,
		PendingRequestID: newRequestID(),
	}
	return &Response{
		Next: next,
		Effects: []Effect{{
			Kind:      EffectSwap,
			RequestID: next.PendingRequestID,
			Account:   s.AccountRef,
			Amount:    s.total(),
			Currency:  s.Form.Currency,
		}},
	}, nil
}

func (s TransferringOut) Snapshot(time.Time) StateSnapshot {
	return StateSnapshot{
		LeaseID:          s.Form.LeaseID,
		Stage:            s.Stage().String(),
		Customer:         s.Form.Customer,
		Currency:         s.Form.Currency,
		PendingRequestID: s.PendingRequestID,
	}
}

// BuyingAsset waits for the swap into the target asset to complete.
type BuyingAsset struct {
	Form             OpenForm `json:"form"`
	Granted          *big.Int `json:"granted"`
	AccountRef       string   `json:"account_ref"`
	LoanRequestID    string   `json:"loan_request_id"`
	PendingRequestID string   `json:"pending_request_id"`
}

func (s BuyingAsset) Stage() Stage { return StageBuyingAsset }

func (s BuyingAsset) HandleRequest(req Request) (*Response, error) {
	return nil, unsupportedOperation(req.Op, s.Stage())
}

func (s BuyingAsset) HandleCompletion(c Completion) (*Response, error) {
	if err := checkRequestID(s.PendingRequestID, c.RequestID); err != nil {
		return nil, err
	}
	if c.failed() || c.AmountOut == nil || c.AmountOut.Sign() <= 0 {
		reason := c.Reason
		if reason == "" {
			reason = "swap failed"
		}
		return &Response{
			Next: Failed{Form: s.Form, Reason: reason},
			Effects: []Effect{
				{Kind: EffectCancelLoan, RequestID: s.LoanRequestID},
				{Kind: EffectRefund, Account: s.Form.Customer, Amount: s.Form.Downpayment, Currency: s.Form.QuoteCurrency},
			},
		}, nil
	}
	loan, err := NewLoan(s.Granted, s.Form.MarginRate, s.Form.InterestRate, s.Form.InterestDuePeriod, s.Form.GracePeriod, c.At)
	if err != nil {
		return nil, err
	}
	record := LeaseRecord{
		LeaseID:       s.Form.LeaseID,
		Customer:      s.Form.Customer,
		Currency:      s.Form.Currency,
		QuoteCurrency: s.Form.QuoteCurrency,
		Liability:     s.Form.Liability,
		Loan:          loan,
		Collateral:    new(big.Int).Set(c.AmountOut),
	}
	return &Response{Next: &Active{Record: record}}, nil
}

func (s BuyingAsset) Snapshot(time.Time) StateSnapshot {
	return StateSnapshot{
		LeaseID:          s.Form.LeaseID,
		Stage:            s.Stage().String(),
		Customer:         s.Form.Customer,
		Currency:         s.Form.Currency,
		PendingRequestID: s.PendingRequestID,
	}
}

// Failed is the terminal stage for openings that could not complete. Any
// externally-held resource has been released on the way in.
type Failed struct {
	Form   OpenForm `json:"form"`
	Reason string   `json:"reason"`
}

func (s Failed) Stage() Stage { return StageFailed }

func (s Failed) HandleRequest(req Request) (*Response, error) {
	return nil, unsupportedOperation(req.Op, s.Stage())
}

func (s Failed) HandleCompletion(Completion) (*Response, error) {
	return nil, ErrUnknownRequest
}

func (s Failed) Snapshot(time.Time) StateSnapshot {
	return StateSnapshot{
		LeaseID:       s.Form.LeaseID,
		Stage:         s.Stage().String(),
		Customer:      s.Form.Customer,
		Currency:      s.Form.Currency,
		FailureReason: s.Reason,
	}
}

// Closed is the terminal stage after full repayment or full liquidation.
type Closed struct {
	Record LeaseRecord `json:"record"`
	Cause  string      `json:"cause"`
}

func (s Closed) Stage() Stage { return StageClosed }

func (s Closed) HandleRequest(req Request) (*Response, error) {
	switch req.Op {
	case OpRepay, OpClose:
		return nil, ErrLoanClosed
	default:
		return nil, unsupportedOperation(req.Op, s.Stage())
	}
}

func (s Closed) HandleCompletion(Completion) (*Response, error) {
	return nil, ErrUnknownRequest
}

func (s Closed) Snapshot(at time.Time) StateSnapshot {
	return StateSnapshot{
		LeaseID:    s.Record.LeaseID,
		Stage:      s.Stage().String(),
		Customer:   s.Record.Customer,
		Currency:   s.Record.Currency,
		CloseCause: s.Cause,
		Collateral: s.Record.Collateral,
	}
}
