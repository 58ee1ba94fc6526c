package access

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"

	"github.com/paasforest/proconnect-access/internal/leads"
	"github.com/paasforest/proconnect-access/internal/providers"
)

var evalNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func TestEvaluate_SubscriptionTiers(t *testing.T) {
	lead := &leads.Lead{ID: "lead-1", VerificationScore: 90, MaxProviders: 3}
	for _, tier := range []providers.Tier{providers.TierBasic, providers.TierAdvanced, providers.TierPro, providers.TierEnterprise} {
		t.Run(string(tier), func(t *testing.T) {
			vis := Evaluate(&providers.Profile{ID: "p", SubscriptionTier: tier}, lead, evalNow, DefaultPricing())
			assert.Equal(t, LevelSubscription, vis.AccessLevel)
			assert.True(t, vis.CanViewContactDetails)
			assert.Zero(t, vis.CreditRequired)
			assert.Empty(t, vis.UpgradePrompt)
		})
	}
}

func TestEvaluate_PremiumListing(t *testing.T) {
	lead := &leads.Lead{ID: "lead-1", MaxProviders: 3}
	future := evalNow.Add(24 * time.Hour)
	past := evalNow.Add(-time.Second)

	active := &providers.Profile{ID: "p", SubscriptionTier: providers.TierPayAsYouGo, PremiumListingActive: true, PremiumExpiresAt: &future}
	vis := Evaluate(active, lead, evalNow, DefaultPricing())
	assert.Equal(t, LevelSubscription, vis.AccessLevel)
	assert.True(t, vis.CanViewContactDetails)

	lifetime := &providers.Profile{ID: "p", PremiumListingActive: true}
	assert.Equal(t, LevelSubscription, Evaluate(lifetime, lead, evalNow, DefaultPricing()).AccessLevel)

	expired := &providers.Profile{ID: "p", PremiumListingActive: true, PremiumExpiresAt: &past}
	vis = Evaluate(expired, lead, evalNow, DefaultPricing())
	assert.Equal(t, LevelLocked, vis.AccessLevel, "expired premium is treated as inactive")
	assert.False(t, vis.CanViewContactDetails)
}

func TestEvaluate_CreditEligibleDoesNotReveal(t *testing.T) {
	lead := &leads.Lead{ID: "lead-1", VerificationScore: 65, MaxProviders: 4}
	profile := &providers.Profile{ID: "p", SubscriptionTier: providers.TierPayAsYouGo, CreditBalance: 2}

	vis := Evaluate(profile, lead, evalNow, DefaultPricing())
	assert.Equal(t, LevelCreditRequired, vis.AccessLevel)
	assert.False(t, vis.CanViewContactDetails)
	assert.Equal(t, 2, vis.CreditRequired)
	assert.Equal(t, 2, profile.CreditBalance, "evaluation never deducts")
}

func TestEvaluate_LockedWithoutCredits(t *testing.T) {
	lead := &leads.Lead{ID: "lead-1", VerificationScore: 65, MaxProviders: 4}
	profile := &providers.Profile{ID: "p", SubscriptionTier: providers.TierNone, CreditBalance: 0}

	vis := Evaluate(profile, lead, evalNow, DefaultPricing())
	assert.Equal(t, LevelLocked, vis.AccessLevel)
	assert.Equal(t, 2, vis.CreditRequired)
	assert.False(t, vis.CanViewContactDetails)
	assert.Contains(t, vis.UpgradePrompt, "2 credits")
	assert.NotContains(t, vis.UpgradePrompt, "fully claimed")
}

func TestEvaluate_FullLead(t *testing.T) {
	lead := &leads.Lead{ID: "lead-1", MaxProviders: 2, AssignedCount: 2, ClaimedBy: []string{"a", "b"}}

	rich := &providers.Profile{ID: "c", CreditBalance: 100}
	vis := Evaluate(rich, lead, evalNow, DefaultPricing())
	assert.Equal(t, LevelLocked, vis.AccessLevel)
	assert.Contains(t, vis.UpgradePrompt, "fully claimed")

	subscriber := &providers.Profile{ID: "c", SubscriptionTier: providers.TierEnterprise}
	vis = Evaluate(subscriber, lead, evalNow, DefaultPricing())
	assert.Equal(t, LevelLocked, vis.AccessLevel, "capacity beats subscription")
	assert.False(t, vis.CanViewContactDetails)

	claimer := &providers.Profile{ID: "a", SubscriptionTier: providers.TierNone}
	vis = Evaluate(claimer, lead, evalNow, DefaultPricing())
	assert.Equal(t, LevelCreditRequired, vis.AccessLevel)
	assert.True(t, vis.CanViewContactDetails)
	assert.Zero(t, vis.CreditRequired)
	assert.True(t, vis.Claimed)

	claimingSubscriber := &providers.Profile{ID: "b", SubscriptionTier: providers.TierPro}
	assert.Equal(t, LevelSubscription, Evaluate(claimingSubscriber, lead, evalNow, DefaultPricing()).AccessLevel)
}

func TestEvaluate_Properties(t *testing.T) {
	f := gofakeit.New(7)
	pricing := DefaultPricing()

	for i := 0; i < 500; i++ {
		lead := fakeLead(f)
		profile := fakeProfile(f)
		vis := Evaluate(profile, lead, evalNow, pricing)

		if lead.IsFull() && !lead.HasClaim(profile.ID) {
			assert.Equal(t, LevelLocked, vis.AccessLevel)
			assert.False(t, vis.CanViewContactDetails)
			continue
		}
		if profile.SubscriptionTier.GrantsLeadAccess() {
			assert.True(t, vis.CanViewContactDetails)
			assert.Zero(t, vis.CreditRequired)
			continue
		}
		if vis.AccessLevel == LevelCreditRequired {
			assert.GreaterOrEqual(t, profile.CreditBalance, vis.CreditRequired)
		}
		if vis.AccessLevel == LevelLocked {
			assert.Less(t, profile.CreditBalance, vis.CreditRequired)
			assert.NotEmpty(t, vis.UpgradePrompt)
		}
	}
}

func TestRedact(t *testing.T) {
	lead := &leads.Lead{ID: "lead-1", MaxProviders: 3, AssignedCount: 1, ContactName: "Thandi", ContactPhone: "+27821234567", ContactEmail: "t@example.com"}

	hidden := Redact(lead, Visibility{CanViewContactDetails: false})
	assert.Empty(t, hidden.ContactName)
	assert.Empty(t, hidden.ContactPhone)
	assert.Empty(t, hidden.ContactEmail)
	assert.Equal(t, 2, hidden.SlotsRemaining)

	shown := Redact(lead, Visibility{CanViewContactDetails: true})
	assert.Equal(t, "Thandi", shown.ContactName)
	assert.Equal(t, "+27821234567", shown.ContactPhone)

	assert.Equal(t, LeadView{}, Redact(nil, Visibility{CanViewContactDetails: true}))
}
