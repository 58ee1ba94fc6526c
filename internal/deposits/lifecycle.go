package deposits

import (
	"fmt"
	"strings"
	"time"
)

// Transition moves d from pending to a terminal status. Only
// pending→completed and pending→failed are legal; anything else returns
// ErrInvalidStateTransition and leaves d unchanged.
func Transition(d Deposit, to Status, at time.Time, notes, actor string) (Deposit, error) {
	if d.Status != StatusPending || !to.Terminal() {
		return d, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, d.Status, to)
	}
	if to == StatusFailed && strings.TrimSpace(notes) == "" {
		return d, ErrNotesRequired
	}
	out := *d.Clone()
	out.Status = to
	processed := at
	out.ProcessedAt = &processed
	out.ProcessedBy = actor
	if n := strings.TrimSpace(notes); n != "" {
		out.AdminNotes = n
	}
	return out, nil
}

// Verify records a matched bank payment. It reports false when the deposit
// was already verified or is no longer pending, which callers treat as a
// duplicate event.
func Verify(d Deposit, bankReference string, at time.Time) (Deposit, bool) {
	if d.Status != StatusPending || d.PaymentVerified {
		return d, false
	}
	out := *d.Clone()
	out.PaymentVerified = true
	ref := bankReference
	out.BankReference = &ref
	verified := at
	out.VerifiedAt = &verified
	return out, true
}
