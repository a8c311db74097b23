package entity

import "errors"

// Error taxonomy for the reconciliation subsystem. Handlers map these onto
// HTTP status codes with errors.Is; everything else is an internal error.
var (
	// ErrNotFound means no matching intent or order exists. For gateway
	// notifications this is acknowledged as a no-op, not surfaced.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the requested change lost to a mutually exclusive
	// outcome: canceling an already-paid order, an illegal status
	// transition, or attaching a second payment session to an intent.
	ErrConflict = errors.New("conflict")

	// ErrSignature means a gateway notification failed authentication.
	// Nothing downstream of the verifier may run.
	ErrSignature = errors.New("invalid signature")

	// ErrDependency means an external collaborator call failed. Only
	// session creation is retryable, as a brand-new checkout.
	ErrDependency = errors.New("dependency failure")
)
