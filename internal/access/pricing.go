package access

import (
	"strings"

	"github.com/paasforest/proconnect-access/internal/leads"
)

const (
	// DefaultCreditPriceCents is the rand value of one credit (R50).
	DefaultCreditPriceCents int64 = 5000

	baseCredits = 1
)

// Pricing computes the credit cost of unlocking a lead. The formula is
// additive:
//
//	cost = 1 + quality + scarcity + category
//
// quality is +2 for a verification score of 80 or more and +1 for 60 or
// more. scarcity is +1 once half or more of the claim slots are taken.
// category is a non-negative per-category surcharge. Views and responses
// do not affect the price.
type Pricing struct {
	CreditPriceCents   int64
	CategorySurcharges map[string]int
}

// DefaultPricing prices credits at R50 with no category surcharges.
func DefaultPricing() Pricing {
	return Pricing{CreditPriceCents: DefaultCreditPriceCents}
}

// Quote is the unlock price of a lead in credits and cents.
type Quote struct {
	Credits     int   `json:"credits"`
	AmountCents int64 `json:"amount_cents"`
}

// CreditCost never returns less than 1.
func (p Pricing) CreditCost(lead *leads.Lead) int {
	if lead == nil {
		return baseCredits
	}
	cost := baseCredits + qualityPremium(lead.VerificationScore) + scarcityPremium(lead) + p.categorySurcharge(lead.Category)
	if cost < 1 {
		return 1
	}
	return cost
}

// Quote converts the credit cost to its currency equivalent.
func (p Pricing) Quote(lead *leads.Lead) Quote {
	credits := p.CreditCost(lead)
	price := p.CreditPriceCents
	if price <= 0 {
		price = DefaultCreditPriceCents
	}
	return Quote{Credits: credits, AmountCents: int64(credits) * price}
}

func qualityPremium(score int) int {
	switch {
	case score >= 80:
		return 2
	case score >= 60:
		return 1
	default:
		return 0
	}
}

func scarcityPremium(lead *leads.Lead) int {
	if lead.MaxProviders <= 0 {
		return 0
	}
	if lead.AssignedCount*2 >= lead.MaxProviders {
		return 1
	}
	return 0
}

func (p Pricing) categorySurcharge(category string) int {
	if len(p.CategorySurcharges) == 0 {
		return 0
	}
	if extra := p.CategorySurcharges[strings.ToLower(strings.TrimSpace(category))]; extra > 0 {
		return extra
	}
	return 0
}
