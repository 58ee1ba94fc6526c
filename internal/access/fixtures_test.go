package access

import (
	"github.com/brianvoe/gofakeit/v6"

	"github.com/paasforest/proconnect-access/internal/leads"
	"github.com/paasforest/proconnect-access/internal/providers"
)

var categories = []string{"plumbing", "electrical", "solar", "roofing", "cleaning"}

var tiers = []providers.Tier{
	providers.TierNone, providers.TierBasic, providers.TierAdvanced,
	providers.TierPro, providers.TierEnterprise, providers.TierPayAsYouGo,
}

func fakeLead(f *gofakeit.Faker) *leads.Lead {
	maxProviders := f.Number(1, 6)
	return &leads.Lead{
		ID:                f.UUID(),
		Category:          f.RandomString(categories),
		Location:          f.City(),
		BudgetMin:         int64(f.Number(500, 5000)),
		BudgetMax:         int64(f.Number(5000, 50000)),
		Urgency:           f.RandomString([]string{"urgent", "this_week", "flexible"}),
		VerificationScore: f.Number(0, 100),
		MaxProviders:      maxProviders,
		AssignedCount:     f.Number(0, maxProviders),
		ViewsCount:        f.Number(0, 500),
		ResponsesCount:    f.Number(0, 20),
		ContactName:       f.Name(),
		ContactPhone:      f.Phone(),
		ContactEmail:      f.Email(),
	}
}

func fakeProfile(f *gofakeit.Faker) *providers.Profile {
	return &providers.Profile{
		ID:               f.UUID(),
		Name:             f.Company(),
		SubscriptionTier: tiers[f.Number(0, len(tiers)-1)],
		CreditBalance:    f.Number(0, 10),
	}
}
