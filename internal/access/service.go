package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paasforest/proconnect-access/internal/leads"
	"github.com/paasforest/proconnect-access/internal/observability/metrics"
	"github.com/paasforest/proconnect-access/internal/providers"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

// Service answers lead-view requests and performs paid unlocks.
type Service struct {
	leads     leads.Repository
	providers providers.Repository
	pricing   Pricing
	metrics   *metrics.AccessMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(leadRepo leads.Repository, providerRepo providers.Repository, pricing Pricing, logger *logging.Logger) *Service {
	if leadRepo == nil || providerRepo == nil {
		panic("access: repositories required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		leads:     leadRepo,
		providers: providerRepo,
		pricing:   pricing,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithMetrics(m *metrics.AccessMetrics) *Service {
	s.metrics = m
	return s
}

// LeadDetail pairs a redacted lead with the visibility that produced it.
type LeadDetail struct {
	Lead       LeadView   `json:"lead"`
	Visibility Visibility `json:"visibility"`
}

// UnlockResult describes a completed unlock.
type UnlockResult struct {
	Lead           LeadView `json:"lead"`
	CreditsSpent   int      `json:"credits_spent"`
	CreditBalance  int      `json:"credit_balance"`
	AccessLevel    Level    `json:"access_level"`
	AlreadyClaimed bool     `json:"already_claimed"`
}

// Visibility evaluates access without side effects.
func (s *Service) Visibility(ctx context.Context, providerID, leadID string) (*Visibility, error) {
	profile, lead, err := s.load(ctx, providerID, leadID)
	if err != nil {
		return nil, err
	}
	vis := Evaluate(profile, lead, s.now(), s.pricing)
	s.metrics.ObserveDecision(string(vis.AccessLevel))
	return &vis, nil
}

// View evaluates access, counts the view and returns the redacted lead.
func (s *Service) View(ctx context.Context, providerID, leadID string) (*LeadDetail, error) {
	profile, lead, err := s.load(ctx, providerID, leadID)
	if err != nil {
		return nil, err
	}
	vis := Evaluate(profile, lead, s.now(), s.pricing)
	s.metrics.ObserveDecision(string(vis.AccessLevel))

	if err := s.leads.RecordView(ctx, leadID); err != nil {
		s.logger.Warn("failed to record lead view", "lead_id", leadID, "error", err)
	}
	return &LeadDetail{Lead: Redact(lead, vis), Visibility: vis}, nil
}

// Unlock claims a slot on the lead and, unless the provider has unlimited
// access, spends the quoted credits. The claim is released if the spend fails.
func (s *Service) Unlock(ctx context.Context, providerID, leadID string) (*UnlockResult, error) {
	profile, lead, err := s.load(ctx, providerID, leadID)
	if err != nil {
		return nil, err
	}
	vis := Evaluate(profile, lead, s.now(), s.pricing)

	if vis.Claimed {
		s.metrics.ObserveUnlock("already_claimed", 0)
		return &UnlockResult{
			Lead:           Redact(lead, vis),
			CreditBalance:  profile.CreditBalance,
			AccessLevel:    vis.AccessLevel,
			AlreadyClaimed: true,
		}, nil
	}

	switch {
	case lead.IsFull():
		s.metrics.ObserveUnlock("full", 0)
		return nil, leads.ErrLeadFull
	case vis.AccessLevel == LevelLocked:
		s.metrics.ObserveUnlock("insufficient_credits", 0)
		return nil, providers.ErrInsufficientCredits
	}

	claimed, err := s.leads.Claim(ctx, leadID, providerID)
	if errors.Is(err, leads.ErrAlreadyClaimed) {
		return s.Unlock(ctx, providerID, leadID)
	}
	if err != nil {
		s.metrics.ObserveUnlock("claim_failed", 0)
		return nil, err
	}

	granted := Visibility{CanViewContactDetails: true, AccessLevel: vis.AccessLevel}
	if vis.AccessLevel == LevelSubscription {
		s.metrics.ObserveUnlock("subscription", 0)
		s.logger.Info("lead claimed on subscription", "lead_id", leadID, "provider_id", providerID)
		return &UnlockResult{
			Lead:          Redact(claimed, granted),
			CreditBalance: profile.CreditBalance,
			AccessLevel:   LevelSubscription,
		}, nil
	}

	cost := vis.CreditRequired
	updated, err := s.providers.SpendCredits(ctx, providerID, cost, "lead:"+leadID)
	if err != nil {
		if relErr := s.leads.Release(ctx, leadID, providerID); relErr != nil {
			s.logger.Error("failed to release lead claim after spend failure",
				"lead_id", leadID, "provider_id", providerID, "error", relErr)
		}
		s.metrics.ObserveUnlock("spend_failed", 0)
		if errors.Is(err, providers.ErrInsufficientCredits) {
			return nil, err
		}
		return nil, fmt.Errorf("access: spend credits: %w", err)
	}

	s.metrics.ObserveUnlock("charged", cost)
	s.logger.Info("lead unlocked with credits",
		"lead_id", leadID, "provider_id", providerID, "credits", cost, "balance", updated.CreditBalance)
	return &UnlockResult{
		Lead:          Redact(claimed, granted),
		CreditsSpent:  cost,
		CreditBalance: updated.CreditBalance,
		AccessLevel:   LevelCreditRequired,
	}, nil
}

func (s *Service) load(ctx context.Context, providerID, leadID string) (*providers.Profile, *leads.Lead, error) {
	profile, err := s.providers.Get(ctx, providerID)
	if err != nil {
		return nil, nil, err
	}
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return nil, nil, err
	}
	return profile, lead, nil
}
