package providers

import "errors"

var (
	// ErrProviderNotFound is returned when no profile exists for the id.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrInsufficientCredits is returned when a spend exceeds the balance.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned for zero or negative credit movements.
	ErrInvalidAmount = errors.New("credit amount must be positive")
)
