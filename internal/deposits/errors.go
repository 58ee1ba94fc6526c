package deposits

import "errors"

var (
	// ErrDepositNotFound is returned when no deposit matches the id or reference.
	ErrDepositNotFound = errors.New("deposit not found")

	// ErrInvalidStateTransition is returned when acting on a deposit that is no longer pending.
	ErrInvalidStateTransition = errors.New("deposit is not pending")

	// ErrConflict is returned when a concurrent update changed the deposit first.
	ErrConflict = errors.New("deposit was modified concurrently")

	// ErrDuplicateReference is returned when a reference number is already taken.
	ErrDuplicateReference = errors.New("reference number already in use")

	// ErrNotesRequired is returned when rejecting without a reason.
	ErrNotesRequired = errors.New("admin notes are required to reject a deposit")

	// ErrInvalidRequest is returned for malformed create or action requests.
	ErrInvalidRequest = errors.New("invalid deposit request")

	// ErrVelocityExceeded is returned when a provider opens too many deposits.
	ErrVelocityExceeded = errors.New("too many deposit requests, try again later")

	// ErrAmountMismatch is returned when a bank payment is smaller than the deposit.
	ErrAmountMismatch = errors.New("bank payment amount is less than the deposit amount")

	// ErrProofUploadsDisabled is returned when no object store is configured.
	ErrProofUploadsDisabled = errors.New("proof of payment uploads are not configured")
)
