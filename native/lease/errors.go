package lease

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized signals the caller is not the lease's customer for an
	// owner-restricted operation.
	ErrUnauthorized = errors.New("lease engine: unauthorized")
	// ErrUnsupportedOperation signals an event delivered to a lifecycle
	// stage that does not declare support for it. The persisted state is
	// left unchanged.
	ErrUnsupportedOperation = errors.New("lease engine: operation not supported in current state")
	// ErrUnknownCurrency signals a lease currency outside the configured
	// asset set.
	ErrUnknownCurrency = errors.New("lease engine: unknown currency")
	// ErrInsufficientPayment signals a payment below the acceptable
	// minimum for the requested operation.
	ErrInsufficientPayment = errors.New("lease engine: insufficient payment")
	// ErrLoanNotFullyRepaid guards close against an outstanding loan.
	ErrLoanNotFullyRepaid = errors.New("lease engine: loan not fully repaid")
	// ErrLoanClosed rejects payments against a loan whose principal has
	// already reached zero.
	ErrLoanClosed = errors.New("lease engine: loan closed")
	// ErrInvalidParameters rejects policy or rate construction with values
	// outside the documented bounds. Invalid objects are never stored.
	ErrInvalidParameters = errors.New("lease engine: invalid parameters")
	// ErrBrokenInvariant distinguishes an internal programming error from a
	// user-facing failure. It must never be silently swallowed.
	ErrBrokenInvariant = errors.New("lease engine: broken invariant")
	// ErrNoPrice is returned by the oracle contract when no feed covers the
	// requested pair.
	ErrNoPrice = errors.New("lease engine: no price")
	// ErrLeaseNotFound signals an unknown lease identifier.
	ErrLeaseNotFound = errors.New("lease engine: lease not found")
	// ErrUnknownRequest signals a completion whose request id does not
	// match the one the current stage is waiting on.
	ErrUnknownRequest = errors.New("lease engine: unknown request id")
	// ErrPastDue rejects repayments once previous-period obligations have
	// aged beyond the grace period; the position belongs to the
	// liquidation path at that point.
	ErrPastDue = errors.New("lease engine: previous period past grace period")

	errNilState        = errors.New("lease engine: state not configured")
	errNilCollaborator = errors.New("lease engine: collaborator not configured")
)

func unsupportedOperation(op string, stage Stage) error {
	return fmt.Errorf("%w: %s in stage %s", ErrUnsupportedOperation, op, stage)
}

func brokenInvariant(subject, cause string) error {
	return fmt.Errorf("%w: %s: %s", ErrBrokenInvariant, subject, cause)
}

func invalidParameters(cause string) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameters, cause)
}
