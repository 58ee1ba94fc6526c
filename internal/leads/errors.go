package leads

import "errors"

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrLeadFull is returned when every claim slot on the lead is taken
	ErrLeadFull = errors.New("lead is fully claimed")

	// ErrAlreadyClaimed is returned when the provider already holds a claim on the lead
	ErrAlreadyClaimed = errors.New("lead already claimed by provider")

	// ErrClaimNotFound is returned when releasing a claim the provider does not hold
	ErrClaimNotFound = errors.New("claim not found")
)
