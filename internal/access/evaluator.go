// Package access decides how much of a lead a provider may see and what it
// costs to unlock the rest.
package access

import (
	"fmt"
	"time"

	"github.com/paasforest/proconnect-access/internal/leads"
	"github.com/paasforest/proconnect-access/internal/providers"
)

// Level is the access a provider has to a lead's contact details.
type Level string

const (
	LevelSubscription   Level = "subscription"
	LevelCreditRequired Level = "credit_required"
	LevelLocked         Level = "locked"
)

const fullyClaimedPrompt = "This lead has been fully claimed by other providers."

// Visibility is derived per request and must not be cached across balance changes.
type Visibility struct {
	LeadID                string `json:"lead_id"`
	AccessLevel           Level  `json:"access_level"`
	CanViewContactDetails bool   `json:"can_view_contact_details"`
	CreditRequired        int    `json:"credit_required"`
	UpgradePrompt         string `json:"upgrade_prompt,omitempty"`
	Claimed               bool   `json:"claimed"`
	Quote                 Quote  `json:"quote"`
}

// Evaluate is pure: it reads the profile and lead and never mutates them.
// Premium listings past their expiry count as inactive.
func Evaluate(profile *providers.Profile, lead *leads.Lead, now time.Time, pricing Pricing) Visibility {
	quote := pricing.Quote(lead)
	vis := Visibility{Quote: quote}
	if lead != nil {
		vis.LeadID = lead.ID
	}

	var providerID string
	if profile != nil {
		providerID = profile.ID
	}
	claimed := lead != nil && lead.HasClaim(providerID)
	vis.Claimed = claimed

	if lead != nil && lead.IsFull() && !claimed {
		vis.AccessLevel = LevelLocked
		vis.CreditRequired = quote.Credits
		vis.UpgradePrompt = fullyClaimedPrompt
		return vis
	}

	if hasUnlimitedAccess(profile, now) {
		vis.AccessLevel = LevelSubscription
		vis.CanViewContactDetails = true
		return vis
	}

	if claimed {
		vis.AccessLevel = LevelCreditRequired
		vis.CanViewContactDetails = true
		return vis
	}

	vis.CreditRequired = quote.Credits
	if profile != nil && profile.CreditBalance >= quote.Credits {
		vis.AccessLevel = LevelCreditRequired
		vis.UpgradePrompt = fmt.Sprintf("Unlock this lead for %s to view the contact details.", creditsLabel(quote.Credits))
		return vis
	}

	vis.AccessLevel = LevelLocked
	balance := 0
	if profile != nil {
		balance = profile.CreditBalance
	}
	vis.UpgradePrompt = fmt.Sprintf("You need %s to unlock this lead (balance: %d). Top up credits or upgrade to a subscription.",
		creditsLabel(quote.Credits), balance)
	return vis
}

func hasUnlimitedAccess(profile *providers.Profile, now time.Time) bool {
	if profile == nil {
		return false
	}
	return profile.SubscriptionTier.GrantsLeadAccess() || profile.PremiumActiveAt(now)
}

func creditsLabel(n int) string {
	if n == 1 {
		return "1 credit"
	}
	return fmt.Sprintf("%d credits", n)
}

// LeadView is a lead with contact details removed unless the provider may see them.
type LeadView struct {
	ID                string    `json:"id"`
	Category          string    `json:"category"`
	Location          string    `json:"location"`
	BudgetMin         int64     `json:"budget_min"`
	BudgetMax         int64     `json:"budget_max"`
	Urgency           string    `json:"urgency"`
	VerificationScore int       `json:"verification_score"`
	MaxProviders      int       `json:"max_providers"`
	SlotsRemaining    int       `json:"slots_remaining"`
	CreatedAt         time.Time `json:"created_at"`
	ContactName       string    `json:"contact_name,omitempty"`
	ContactPhone      string    `json:"contact_phone,omitempty"`
	ContactEmail      string    `json:"contact_email,omitempty"`
}

// Redact builds the view a provider with the given visibility may render.
func Redact(lead *leads.Lead, vis Visibility) LeadView {
	if lead == nil {
		return LeadView{}
	}
	view := LeadView{
		ID:                lead.ID,
		Category:          lead.Category,
		Location:          lead.Location,
		BudgetMin:         lead.BudgetMin,
		BudgetMax:         lead.BudgetMax,
		Urgency:           lead.Urgency,
		VerificationScore: lead.VerificationScore,
		MaxProviders:      lead.MaxProviders,
		SlotsRemaining:    lead.SlotsRemaining(),
		CreatedAt:         lead.CreatedAt,
	}
	if vis.CanViewContactDetails {
		view.ContactName = lead.ContactName
		view.ContactPhone = lead.ContactPhone
		view.ContactEmail = lead.ContactEmail
	}
	return view
}
