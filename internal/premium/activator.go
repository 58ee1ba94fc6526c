// Package premium activates and expires premium listings.
package premium

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paasforest/proconnect-access/internal/providers"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

// Plan is a premium listing plan.
type Plan string

const (
	PlanMonthly  Plan = "monthly"
	PlanLifetime Plan = "lifetime"
)

// MonthlyPeriod is how long one monthly payment extends a listing.
const MonthlyPeriod = 30 * 24 * time.Hour

// ErrUnknownPlan is returned for plans other than monthly and lifetime.
var ErrUnknownPlan = errors.New("premium: unknown plan")

// ParsePlan accepts monthly or lifetime, case-insensitively.
func ParsePlan(raw string) (Plan, error) {
	switch p := Plan(strings.ToLower(strings.TrimSpace(raw))); p {
	case PlanMonthly, PlanLifetime:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, raw)
	}
}

// Activate returns the profile with the plan applied.
//
// Monthly extends from the later of now and the current expiry. Lifetime
// clears the expiry. A monthly payment on an active lifetime listing leaves
// it lifetime.
func Activate(profile providers.Profile, plan Plan, now time.Time) providers.Profile {
	out := *profile.Clone()
	switch plan {
	case PlanLifetime:
		out.PremiumListingActive = true
		out.PremiumExpiresAt = nil
	case PlanMonthly:
		if profile.PremiumListingActive && profile.PremiumExpiresAt == nil {
			return out
		}
		start := now
		if profile.PremiumExpiresAt != nil && profile.PremiumExpiresAt.After(now) {
			start = *profile.PremiumExpiresAt
		}
		expires := start.Add(MonthlyPeriod)
		out.PremiumListingActive = true
		out.PremiumExpiresAt = &expires
	}
	return out
}

// Activator applies plans to stored profiles exactly once per deposit.
type Activator struct {
	providers providers.Repository
	logger    *logging.Logger
	now       func() time.Time
}

func NewActivator(repo providers.Repository, logger *logging.Logger) *Activator {
	if repo == nil {
		panic("premium: providers repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Activator{
		providers: repo,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for activation and sweeps.
func (a *Activator) WithClock(now func() time.Time) *Activator {
	if now != nil {
		a.now = now
	}
	return a
}

// ActivatePremium is keyed by depositID; a repeat call returns applied=false
// and leaves the profile untouched.
func (a *Activator) ActivatePremium(ctx context.Context, providerID, depositID string, plan Plan) (bool, *providers.Profile, error) {
	if _, err := ParsePlan(string(plan)); err != nil {
		return false, nil, err
	}
	now := a.now()
	applied, profile, err := a.providers.ApplyPremium(ctx, providerID, depositID, func(p providers.Profile) providers.Profile {
		return Activate(p, plan, now)
	})
	if err != nil {
		return false, nil, fmt.Errorf("premium: activate: %w", err)
	}
	if applied {
		a.logger.Info("premium listing activated",
			"provider_id", providerID,
			"deposit_id", depositID,
			"plan", plan,
			"expires_at", profile.PremiumExpiresAt,
		)
	} else {
		a.logger.Info("premium activation already applied", "provider_id", providerID, "deposit_id", depositID)
	}
	return applied, profile, nil
}

// SweepExpired clears the stored flag on listings past their expiry.
// Reads already treat them as inactive; this only keeps the column honest.
func (a *Activator) SweepExpired(ctx context.Context) (int, error) {
	n, err := a.providers.ExpirePremium(ctx, a.now())
	if err != nil {
		return 0, fmt.Errorf("premium: sweep expired: %w", err)
	}
	if n > 0 {
		a.logger.Info("expired premium listings", "count", n)
	}
	return n, nil
}
