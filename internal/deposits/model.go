// Package deposits tracks manual EFT deposits from request through bank
// verification to approval or rejection, and grants the paid entitlement.
package deposits

import (
	"time"

	"github.com/paasforest/proconnect-access/internal/premium"
)

// Status is the lifecycle state of a deposit.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Purpose selects the entitlement a completed deposit grants.
type Purpose string

const (
	PurposeCredits Purpose = "credits"
	PurposePremium Purpose = "premium"
)

// Deposit is a single manual payment request.
type Deposit struct {
	ID                   string       `json:"id"`
	ProviderID           string       `json:"provider_id"`
	Purpose              Purpose      `json:"purpose"`
	AmountCents          int64        `json:"amount_cents"`
	Credits              int          `json:"credits_to_activate,omitempty"`
	Plan                 premium.Plan `json:"plan_type,omitempty"`
	ReferenceNumber      string       `json:"reference_number"`
	BankReference        *string      `json:"bank_reference"`
	Status               Status       `json:"status"`
	PaymentVerified      bool         `json:"payment_verified"`
	VerifiedAt           *time.Time   `json:"verified_at,omitempty"`
	AdminNotes           string       `json:"admin_notes"`
	ProcessedBy          string       `json:"processed_by,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	ProcessedAt          *time.Time   `json:"processed_at"`
	EntitlementAppliedAt *time.Time   `json:"entitlement_applied_at,omitempty"`
	ProofObjectKey       *string      `json:"proof_object_key,omitempty"`
}

// Clone returns a copy that shares no pointers with d.
func (d *Deposit) Clone() *Deposit {
	if d == nil {
		return nil
	}
	cp := *d
	cp.BankReference = cloneString(d.BankReference)
	cp.ProofObjectKey = cloneString(d.ProofObjectKey)
	cp.VerifiedAt = cloneTime(d.VerifiedAt)
	cp.ProcessedAt = cloneTime(d.ProcessedAt)
	cp.EntitlementAppliedAt = cloneTime(d.EntitlementAppliedAt)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// BankingDetails are the static account details shown with a new deposit.
type BankingDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	BranchCode    string `json:"branch_code"`
	AccountHolder string `json:"account_holder"`
}

// Prices holds the rand amounts charged per purpose.
type Prices struct {
	CreditCents          int64
	PremiumMonthlyCents  int64
	PremiumLifetimeCents int64
}

// DefaultPrices matches the published price list: R50 per credit, R299 per
// month and R2999 lifetime.
func DefaultPrices() Prices {
	return Prices{
		CreditCents:          5000,
		PremiumMonthlyCents:  29900,
		PremiumLifetimeCents: 299900,
	}
}

// ActivationPolicy decides whether a verified bank payment completes a
// deposit on its own.
type ActivationPolicy string

const (
	// PolicyManual leaves verified deposits pending until an admin approves.
	PolicyManual ActivationPolicy = "manual"
	// PolicyAutoOnVerified approves a deposit as soon as its payment is verified.
	PolicyAutoOnVerified ActivationPolicy = "auto_on_verified"
)

// ParseActivationPolicy falls back to PolicyManual for unknown values.
func ParseActivationPolicy(raw string) ActivationPolicy {
	if ActivationPolicy(raw) == PolicyAutoOnVerified {
		return PolicyAutoOnVerified
	}
	return PolicyManual
}
