// Package providers owns provider entitlement state: subscription tier, credit
// balance, premium listing and the credit ledger.
package providers

import (
	"strings"
	"time"
)

// Tier is a provider's subscription tier.
type Tier string

const (
	TierNone       Tier = "none"
	TierBasic      Tier = "basic"
	TierAdvanced   Tier = "advanced"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
	TierPayAsYouGo Tier = "pay_as_you_go"
)

// ParseTier normalises a stored tier; unknown values map to TierNone.
func ParseTier(raw string) Tier {
	switch t := Tier(strings.ToLower(strings.TrimSpace(raw))); t {
	case TierBasic, TierAdvanced, TierPro, TierEnterprise, TierPayAsYouGo:
		return t
	default:
		return TierNone
	}
}

// GrantsLeadAccess reports whether the tier includes unlimited contact details.
func (t Tier) GrantsLeadAccess() bool {
	switch t {
	case TierBasic, TierAdvanced, TierPro, TierEnterprise:
		return true
	default:
		return false
	}
}

// Profile is a provider's entitlement state.
type Profile struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	Phone                string     `json:"phone"`
	SubscriptionTier     Tier       `json:"subscription_tier"`
	CreditBalance        int        `json:"credit_balance"`
	PremiumListingActive bool       `json:"is_premium_listing_active"`
	PremiumExpiresAt     *time.Time `json:"premium_expires_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// PremiumActiveAt applies lazy expiry: a premium listing past its expiry is inactive.
func (p *Profile) PremiumActiveAt(now time.Time) bool {
	if p == nil || !p.PremiumListingActive {
		return false
	}
	return p.PremiumExpiresAt == nil || p.PremiumExpiresAt.After(now)
}

// Clone returns a copy that does not share the expiry pointer.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.PremiumExpiresAt != nil {
		t := *p.PremiumExpiresAt
		cp.PremiumExpiresAt = &t
	}
	return &cp
}

// Ledger entry types.
const (
	EntryTopUp = "top_up"
	EntrySpend = "spend"
)

// LedgerEntry records one credit movement.
type LedgerEntry struct {
	ID           string    `json:"id"`
	ProviderID   string    `json:"provider_id"`
	EntryType    string    `json:"entry_type"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balance_after"`
	Reference    string    `json:"reference"`
	CreatedAt    time.Time `json:"created_at"`
}
