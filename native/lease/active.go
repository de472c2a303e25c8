package lease

import (
	"math/big"
	"time"
)

// Active is the long-lived stage of a healthy lease. The state machine is
// terminal here except for the two documented exits: full repayment followed
// by close, and full liquidation.
type Active struct {
	Record LeaseRecord `json:"record"`
	// PendingLiquidationID correlates an in-flight collateral sale. A
	// lease with a pending sale keeps accepting repayments.
	PendingLiquidationID string   `json:"pending_liquidation_id,omitempty"`
	PendingSaleUnits     *big.Int `json:"pending_sale_units,omitempty"`
	FullLiquidation      bool     `json:"full_liquidation,omitempty"`
}

func (s *Active) Stage() Stage { return StageActive }

func (s *Active) HandleRequest(req Request) (*Response, error) {
	switch req.Op {
	case OpRepay:
		return s.repay(req)
	case OpClose:
		return s.close(req)
	case OpLiquidate:
		return s.liquidate(req)
	default:
		return nil, unsupportedOperation(req.Op, s.Stage())
	}
}

func (s *Active) repay(req Request) (*Response, error) {
	if req.Caller != s.Record.Customer {
		return nil, ErrUnauthorized
	}
	if s.Record.Loan.PastGrace(req.At) {
		return nil, ErrPastDue
	}
	next := s.clone()
	receipt, err := next.Record.Loan.Repay(req.Amount, req.At)
	if err != nil {
		return nil, err
	}
	resp := &Response{Next: next, Receipt: receipt}
	if receipt.Change.Sign() > 0 {
		resp.Effects = append(resp.Effects, Effect{
			Kind:     EffectRefund,
			Account:  next.Record.Customer,
			Amount:   receipt.Change,
			Currency: next.Record.QuoteCurrency,
		})
	}
	return resp, nil
}

func (s *Active) close(req Request) (*Response, error) {
	if req.Caller != s.Record.Customer {
		return nil, ErrUnauthorized
	}
	if !s.Record.Loan.Closed() {
		return nil, ErrLoanNotFullyRepaid
	}
	record := s.Record.Clone()
	resp := &Response{Next: Closed{Record: record, Cause: "repaid"}}
	if record.Collateral.Sign() > 0 {
		resp.Effects = append(resp.Effects, Effect{
			Kind:     EffectRefund,
			Account:  record.Customer,
			Amount:   record.Collateral,
			Currency: record.Currency,
		})
	}
	return resp, nil
}

func (s *Active) liquidate(req Request) (*Response, error) {
	if req.Liquidation == nil {
		return nil, brokenInvariant("active", "liquidate dispatched without a status")
	}
	status := req.Liquidation
	switch status.Kind {
	case LiquidationPartial, LiquidationFull:
	default:
		return &Response{Next: s, Status: status}, nil
	}
	if s.PendingLiquidationID != "" {
		return nil, unsupportedOperation(req.Op, s.Stage())
	}
	if req.SaleUnits == nil || req.SaleUnits.Sign() <= 0 {
		return nil, brokenInvariant("active", "liquidation without sale units")
	}
	next := s.clone()
	next.PendingLiquidationID = newRequestID()
	next.PendingSaleUnits = new(big.Int).Set(req.SaleUnits)
	next.FullLiquidation = status.Kind == LiquidationFull
	return &Response{
		Next:   next,
		Status: status,
		Effects: []Effect{{
			Kind:      EffectSwap,
			RequestID: next.PendingLiquidationID,
			Amount:    next.PendingSaleUnits,
			Currency:  next.Record.QuoteCurrency,
		}},
	}, nil
}

// HandleCompletion applies the outcome of a collateral sale. Sale proceeds
// flow through the regular repayment allocator so margin and interest keep
// their seniority over principal.
func (s *Active) HandleCompletion(c Completion) (*Response, error) {
	if s.PendingLiquidationID == "" {
		return nil, ErrUnknownRequest
	}
	if err := checkRequestID(s.PendingLiquidationID, c.RequestID); err != nil {
		return nil, err
	}
	if c.failed() {
		// The sale did not happen; the next liability check retriggers it.
		next := s.clone()
		next.PendingLiquidationID = ""
		next.PendingSaleUnits = nil
		next.FullLiquidation = false
		return &Response{Next: next}, nil
	}
	if c.AmountOut == nil || c.AmountOut.Sign() <= 0 {
		return nil, brokenInvariant("active", "liquidation sale completed without proceeds")
	}

	next := s.clone()
	sold := minBig(next.PendingSaleUnits, next.Record.Collateral)
	next.Record.Collateral.Sub(next.Record.Collateral, sold)

	receipt, err := next.Record.Loan.Repay(c.AmountOut, c.At)
	if err != nil {
		return nil, err
	}

	var effects []Effect
	if receipt.Change.Sign() > 0 {
		effects = append(effects, Effect{
			Kind:     EffectRefund,
			Account:  next.Record.Customer,
			Amount:   receipt.Change,
			Currency: next.Record.QuoteCurrency,
		})
	}

	if next.FullLiquidation || receipt.Close {
		record := next.Record
		if record.Collateral.Sign() > 0 {
			effects = append(effects, Effect{
				Kind:     EffectRefund,
				Account:  record.Customer,
				Amount:   record.Collateral,
				Currency: record.Currency,
			})
			record.Collateral = big.NewInt(0)
		}
		return &Response{
			Next:    Closed{Record: record, Cause: "liquidated"},
			Receipt: receipt,
			Effects: effects,
		}, nil
	}

	next.PendingLiquidationID = ""
	next.PendingSaleUnits = nil
	next.FullLiquidation = false
	return &Response{Next: next, Receipt: receipt, Effects: effects}, nil
}

func (s *Active) Snapshot(at time.Time) StateSnapshot {
	return StateSnapshot{
		LeaseID:          s.Record.LeaseID,
		Stage:            s.Stage().String(),
		Customer:         s.Record.Customer,
		Currency:         s.Record.Currency,
		PendingRequestID: s.PendingLiquidationID,
		Loan:             loanSnapshot(s.Record.Loan, at),
		Collateral:       new(big.Int).Set(s.Record.Collateral),
	}
}

func (s *Active) clone() *Active {
	next := &Active{
		Record:               s.Record.Clone(),
		PendingLiquidationID: s.PendingLiquidationID,
		FullLiquidation:      s.FullLiquidation,
	}
	if s.PendingSaleUnits != nil {
		next.PendingSaleUnits = new(big.Int).Set(s.PendingSaleUnits)
	}
	return next
}
