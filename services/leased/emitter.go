package main

import (
	"log/slog"

	"leasecore/core/events"
	"leasecore/native/lease"
	"leasecore/observability/metrics"
)

// daemonEmitter forwards engine events to the structured log and bumps the
// exported counters.
type daemonEmitter struct {
	logger  *slog.Logger
	metrics *metrics.LeaseMetrics
}

func (e *daemonEmitter) Emit(evt *events.Event) {
	if evt == nil {
		return
	}
	args := make([]any, 0, 2*len(evt.Attributes))
	for key, value := range evt.Attributes {
		args = append(args, key, value)
	}
	e.logger.Info(evt.Type, args...)

	switch evt.Type {
	case lease.EventTypeLeaseActive:
		e.metrics.ObserveLeaseOpened(evt.Attributes["currency"])
	case lease.EventTypeLeaseFailed:
		e.metrics.ObserveOpeningFailed()
	case lease.EventTypeLeaseRepaid:
		e.metrics.ObserveRepayment()
	case lease.EventTypeLeaseWarning:
		e.metrics.ObserveWarning(evt.Attributes["severity"])
	case lease.EventTypeLeaseLiquidated:
		e.metrics.ObserveLiquidation(evt.Attributes["kind"])
	}
}
