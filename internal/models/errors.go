package models

import "errors"

// Sentinel errors surfaced by the core. Business-rule failures are expected
// outcomes and are returned as distinguishable values; storage or key
// material faults are wrapped so callers can report them generically.
var (
	// ErrNotFound is returned when an account or transaction id is absent.
	ErrNotFound = errors.New("record not found")

	// ErrInsufficientBalance is a business-rule violation, not a system
	// fault. The attempt that raised it still produces a ledger entry.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidState is returned when resolving a transaction that is not
	// pending (already resolved, replayed request).
	ErrInvalidState = errors.New("transaction is not pending")

	// ErrKeyUnwrap means the wrapped data key could not be opened: corrupt
	// ciphertext or mismatched key material. Treated as data-integrity
	// fatal; the operation aborts before any balance mutation.
	ErrKeyUnwrap = errors.New("data key unwrap failed")

	// ErrValidation covers malformed amounts and missing required fields.
	ErrValidation = errors.New("validation failed")

	// ErrAccountClosed rejects balance mutations against a closed account.
	ErrAccountClosed = errors.New("account is closed")

	// ErrEmailTaken rejects account creation with an email already in use.
	ErrEmailTaken = errors.New("account with this email already exists")

	// ErrForbidden is returned when the actor lacks the capability an
	// operation requires.
	ErrForbidden = errors.New("insufficient permissions")
)
