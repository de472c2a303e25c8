package lease

import (
	"math/big"

	"leasecore/core/events"
)

const (
	EventTypeLeaseRequested  = "lease.requested"
	EventTypeLeaseOpening    = "lease.opening"
	EventTypeLeaseActive     = "lease.active"
	EventTypeLeaseFailed     = "lease.failed"
	EventTypeLeaseRepaid     = "lease.repaid"
	EventTypeLeaseClosed     = "lease.closed"
	EventTypeLeaseWarning    = "lease.liability_warning"
	EventTypeLeaseLiquidated = "lease.liquidated"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newLeaseEvent(evtType, leaseID, customer string, extra map[string]string) *events.Event {
	attrs := map[string]string{
		"leaseId":  leaseID,
		"customer": customer,
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &events.Event{Type: evtType, Attributes: attrs}
}

// NewRequestedEvent is emitted when a lease enters the opening flow.
func NewRequestedEvent(form OpenForm) *events.Event {
	return newLeaseEvent(EventTypeLeaseRequested, form.LeaseID, form.Customer, map[string]string{
		"currency":    form.Currency,
		"downpayment": formatAmount(form.Downpayment),
		"borrow":      formatAmount(form.BorrowAmount),
	})
}

// NewStageEvent is emitted on every intermediate opening transition.
func NewStageEvent(leaseID, customer string, stage Stage) *events.Event {
	return newLeaseEvent(EventTypeLeaseOpening, leaseID, customer, map[string]string{
		"stage": stage.String(),
	})
}

// NewActiveEvent is emitted when the position becomes active.
func NewActiveEvent(record LeaseRecord) *events.Event {
	return newLeaseEvent(EventTypeLeaseActive, record.LeaseID, record.Customer, map[string]string{
		"currency":   record.Currency,
		"principal":  formatAmount(record.Loan.Principal),
		"collateral": formatAmount(record.Collateral),
	})
}

// NewFailedEvent is emitted when an opening terminates without a position.
func NewFailedEvent(form OpenForm, reason string) *events.Event {
	return newLeaseEvent(EventTypeLeaseFailed, form.LeaseID, form.Customer, map[string]string{
		"reason": reason,
	})
}

// NewRepaidEvent carries the itemised allocation of one repayment.
func NewRepaidEvent(record LeaseRecord, receipt *Receipt) *events.Event {
	return newLeaseEvent(EventTypeLeaseRepaid, record.LeaseID, record.Customer, map[string]string{
		"previousMargin":   formatAmount(receipt.PreviousMarginPaid),
		"previousInterest": formatAmount(receipt.PreviousInterestPaid),
		"currentMargin":    formatAmount(receipt.CurrentMarginPaid),
		"currentInterest":  formatAmount(receipt.CurrentInterestPaid),
		"principal":        formatAmount(receipt.PrincipalPaid),
		"change":           formatAmount(receipt.Change),
	})
}

// NewClosedEvent is emitted when the lease reaches its terminal closed stage.
func NewClosedEvent(record LeaseRecord, cause string) *events.Event {
	return newLeaseEvent(EventTypeLeaseClosed, record.LeaseID, record.Customer, map[string]string{
		"cause": cause,
	})
}

// NewWarningEvent notifies the customer of a degraded liability band.
func NewWarningEvent(leaseID string, status LiquidationStatus) *events.Event {
	attrs := map[string]string{"severity": status.Kind.String()}
	customer := ""
	if status.Info != nil {
		customer = status.Info.Customer
		attrs["currentLtv"] = status.Info.CurrentLTV.String()
		attrs["healthyLtv"] = status.Info.HealthyLTV.String()
		attrs["asset"] = status.Info.Asset
	}
	return newLeaseEvent(EventTypeLeaseWarning, leaseID, customer, attrs)
}

// NewLiquidationEvent is emitted when a collateral sale is requested.
func NewLiquidationEvent(leaseID string, status LiquidationStatus) *events.Event {
	attrs := map[string]string{
		"kind":   status.Kind.String(),
		"amount": formatAmount(status.Amount),
	}
	customer := ""
	if status.Info != nil {
		customer = status.Info.Customer
		attrs["currentLtv"] = status.Info.CurrentLTV.String()
	}
	return newLeaseEvent(EventTypeLeaseLiquidated, leaseID, customer, attrs)
}
