package services

import "errors"

var (
	// ErrUnauthenticated indicates the caller presented no valid identity.
	ErrUnauthenticated = errors.New("services: unauthenticated")
	// ErrPermissionDenied indicates the caller lacks the required capability.
	ErrPermissionDenied = errors.New("services: permission denied")
	// ErrInvalidRequest indicates the caller supplied invalid input parameters.
	ErrInvalidRequest = errors.New("payments: invalid request")
	// ErrOrderNotFound indicates no ledger row matches the provider order id.
	ErrOrderNotFound = errors.New("payments: order not found")
	// ErrOrderConflict indicates the ledger row already left the expected status.
	ErrOrderConflict = errors.New("payments: order conflict")
	// ErrLedgerWrite indicates the provider call succeeded but the ledger write
	// did not; the provider order id is carried in the error message so the
	// discrepancy can be reconciled by hand.
	ErrLedgerWrite = errors.New("payments: ledger write failed")
	// ErrInvalidSignature indicates a callback failed HMAC verification.
	ErrInvalidSignature = errors.New("payments: invalid callback signature")
	// ErrUnavailable indicates a required downstream dependency is unavailable.
	ErrUnavailable = errors.New("payments: unavailable")
)
