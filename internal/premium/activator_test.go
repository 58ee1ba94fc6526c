package premium

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paasforest/proconnect-access/internal/providers"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

var now = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan(" Monthly ")
	require.NoError(t, err)
	assert.Equal(t, PlanMonthly, p)

	p, err = ParsePlan("lifetime")
	require.NoError(t, err)
	assert.Equal(t, PlanLifetime, p)

	_, err = ParsePlan("weekly")
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestActivate(t *testing.T) {
	future := now.Add(10 * 24 * time.Hour)
	past := now.Add(-48 * time.Hour)

	tests := []struct {
		name        string
		profile     providers.Profile
		plan        Plan
		wantExpires *time.Time
	}{
		{
			name:        "monthly from inactive",
			profile:     providers.Profile{},
			plan:        PlanMonthly,
			wantExpires: ptr(now.Add(MonthlyPeriod)),
		},
		{
			name:        "monthly extends a future expiry",
			profile:     providers.Profile{PremiumListingActive: true, PremiumExpiresAt: &future},
			plan:        PlanMonthly,
			wantExpires: ptr(future.Add(MonthlyPeriod)),
		},
		{
			name:        "monthly restarts from now after expiry",
			profile:     providers.Profile{PremiumListingActive: true, PremiumExpiresAt: &past},
			plan:        PlanMonthly,
			wantExpires: ptr(now.Add(MonthlyPeriod)),
		},
		{
			name:        "lifetime clears expiry",
			profile:     providers.Profile{PremiumListingActive: true, PremiumExpiresAt: &future},
			plan:        PlanLifetime,
			wantExpires: nil,
		},
		{
			name:        "monthly never downgrades lifetime",
			profile:     providers.Profile{PremiumListingActive: true},
			plan:        PlanMonthly,
			wantExpires: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Activate(tt.profile, tt.plan, now)
			assert.True(t, got.PremiumListingActive)
			assert.Equal(t, tt.wantExpires, got.PremiumExpiresAt)
			assert.True(t, got.PremiumActiveAt(now))
		})
	}
}

func TestActivateDoesNotAliasInput(t *testing.T) {
	future := now.Add(time.Hour)
	in := providers.Profile{PremiumListingActive: true, PremiumExpiresAt: &future}
	out := Activate(in, PlanMonthly, now)
	require.NotNil(t, out.PremiumExpiresAt)
	assert.Equal(t, now.Add(time.Hour), future, "input expiry untouched")
}

func TestActivator_OncePerDeposit(t *testing.T) {
	repo := providers.NewInMemoryRepository()
	p := repo.Put(&providers.Profile{})
	a := NewActivator(repo, logging.Discard()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	applied, profile, err := a.ActivatePremium(ctx, p.ID, "dep-1", PlanMonthly)
	require.NoError(t, err)
	assert.True(t, applied)
	require.NotNil(t, profile.PremiumExpiresAt)
	assert.Equal(t, now.Add(MonthlyPeriod), *profile.PremiumExpiresAt)

	applied, profile, err = a.ActivatePremium(ctx, p.ID, "dep-1", PlanMonthly)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, now.Add(MonthlyPeriod), *profile.PremiumExpiresAt, "no double extension")

	applied, profile, err = a.ActivatePremium(ctx, p.ID, "dep-2", PlanMonthly)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, now.Add(2*MonthlyPeriod), *profile.PremiumExpiresAt)
}

func TestActivator_Errors(t *testing.T) {
	repo := providers.NewInMemoryRepository()
	a := NewActivator(repo, logging.Discard())

	_, _, err := a.ActivatePremium(context.Background(), "ghost", "dep-1", PlanLifetime)
	assert.ErrorIs(t, err, providers.ErrProviderNotFound)

	_, _, err = a.ActivatePremium(context.Background(), "ghost", "dep-1", Plan("weekly"))
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestActivator_SweepExpired(t *testing.T) {
	repo := providers.NewInMemoryRepository()
	past := now.Add(-time.Hour)
	repo.Put(&providers.Profile{PremiumListingActive: true, PremiumExpiresAt: &past})
	repo.Put(&providers.Profile{PremiumListingActive: true})

	a := NewActivator(repo, logging.Discard()).WithClock(func() time.Time { return now })

	n, err := a.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestActivator_ClockFollowsCaller(t *testing.T) {
	repo := providers.NewInMemoryRepository()
	p := repo.Put(&providers.Profile{})
	current := now
	a := NewActivator(repo, logging.Discard()).WithClock(func() time.Time { return current })
	a.WithClock(nil)

	current = now.Add(48 * time.Hour)
	_, profile, err := a.ActivatePremium(context.Background(), p.ID, "dep-1", PlanMonthly)
	require.NoError(t, err)
	assert.Equal(t, current.Add(MonthlyPeriod), *profile.PremiumExpiresAt, "clock is read at activation time")
}

func ptr(t time.Time) *time.Time { return &t }
