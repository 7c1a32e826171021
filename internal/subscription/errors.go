package subscription

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicatePayment - the payment_ref was already applied to a row.
	ErrDuplicatePayment = errors.New("payment already applied")

	// ErrAmountMismatch - the paid amount is below the adjusted price.
	ErrAmountMismatch = errors.New("amount below tariff price")

	// ErrUnknownSubscription - no row for the given peer name.
	ErrUnknownSubscription = errors.New("unknown subscription")

	// ErrUnknownTariff - tariff key outside the catalog.
	ErrUnknownTariff = errors.New("unknown tariff")

	// ErrNotProvisioned - config requested while the peer is not provisioned.
	ErrNotProvisioned = errors.New("peer not provisioned")

	// ErrRemoteTransient - network failure or 5xx, safe to retry.
	ErrRemoteTransient = errors.New("control-plane transient failure")

	// ErrRemoteRejected - 4xx or a logically rejected request, not retried.
	ErrRemoteRejected = errors.New("control-plane rejected request")

	// ErrInconsistent - local and remote state disagree.
	ErrInconsistent = errors.New("local/remote state inconsistent")

	// ErrConflict - a conditional update lost to a concurrent transition.
	ErrConflict = errors.New("concurrent transition won")
)

// RemoteError carries the failed control-plane or gateway operation. It
// unwraps to ErrRemoteTransient or ErrRemoteRejected depending on whether the
// failure is retryable.
type RemoteError struct {
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	if e.Transient {
		return ErrRemoteTransient
	}
	return ErrRemoteRejected
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRemoteTransient)
}
