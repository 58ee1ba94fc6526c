package deposits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/paasforest/proconnect-access/internal/events"
	"github.com/paasforest/proconnect-access/internal/observability/metrics"
	"github.com/paasforest/proconnect-access/internal/premium"
	"github.com/paasforest/proconnect-access/internal/providers"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

const (
	maxReferenceAttempts = 5
	repairBatchSize      = 100
	systemActor          = "system"
)

// CreateRequest is what a provider submits to open a deposit.
type CreateRequest struct {
	Purpose  Purpose `json:"purpose" validate:"required,oneof=credits premium"`
	Credits  int     `json:"credits_to_activate" validate:"gte=0,lte=10000"`
	PlanType string  `json:"plan_type" validate:"omitempty,oneof=monthly lifetime"`
}

// CreateResult is returned to the provider with the bank details to pay into.
type CreateResult struct {
	Deposit        *Deposit       `json:"deposit"`
	BankingDetails BankingDetails `json:"banking_details"`
}

// ActionRequest is an admin decision on a pending deposit.
type ActionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// Match is a bank payment that carried a deposit reference.
type Match struct {
	Reference     string
	BankReference string
	// AmountCents is zero when the bank feed did not report an amount.
	AmountCents int64
	ReceivedAt  time.Time
}

// MatchOutcome describes what applying a match did.
type MatchOutcome string

const (
	MatchVerified  MatchOutcome = "verified"
	MatchActivated MatchOutcome = "activated"
	MatchDuplicate MatchOutcome = "duplicate"
)

// PremiumStatus is the provider's premium state plus their latest deposit.
type PremiumStatus struct {
	Profile       *providers.Profile `json:"profile"`
	PremiumActive bool               `json:"premium_active"`
	LatestDeposit *Deposit           `json:"latest_deposit"`
}

// ProofUpload is a presigned URL the provider PUTs their proof of payment to.
type ProofUpload struct {
	URL       string    `json:"upload_url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProofPresigner issues upload URLs for proof-of-payment files.
type ProofPresigner interface {
	PresignPut(ctx context.Context, key, contentType string) (url string, expiresAt time.Time, err error)
}

// Velocity limits how often a provider may open deposits.
type Velocity interface {
	CheckDepositVelocity(ctx context.Context, providerID string) (*VelocityResult, error)
	Reset(ctx context.Context, providerID string) error
}

// EventBuilder derives the event for a deposit after its state change.
type EventBuilder func(d *Deposit) (aggregate string, evt events.CanonicalEvent)

// TxEventWriter records deposit events in the same transaction as the state
// change they describe. The Postgres repository implements it.
type TxEventWriter interface {
	TransitionWithEvent(ctx context.Context, id string, to Status, at time.Time, notes, actor string, build EventBuilder) (*Deposit, error)
	MarkEntitlementAppliedWithEvent(ctx context.Context, id string, at time.Time, aggregate string, evt events.CanonicalEvent) error
}

// Service runs the deposit lifecycle.
type Service struct {
	repo       Repository
	providers  providers.Repository
	activator  *premium.Activator
	publisher  events.Publisher
	txEvents   TxEventWriter
	references *ReferenceGenerator
	velocity   Velocity
	presigner  ProofPresigner
	metrics    *metrics.DepositMetrics
	validate   *validator.Validate
	logger     *logging.Logger

	prices  Prices
	banking BankingDetails
	policy  ActivationPolicy
	now     func() time.Time
	newID   func() string
}

// ServiceConfig carries the static inputs of the deposit service.
type ServiceConfig struct {
	Prices        Prices
	Banking       BankingDetails
	Policy        ActivationPolicy
	DefaultRegion string
}

func NewService(repo Repository, providerRepo providers.Repository, publisher events.Publisher, cfg ServiceConfig, logger *logging.Logger) *Service {
	if repo == nil || providerRepo == nil {
		panic("deposits: repositories required")
	}
	if publisher == nil {
		panic("deposits: publisher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Prices == (Prices{}) {
		cfg.Prices = DefaultPrices()
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyManual
	}
	s := &Service{
		repo:       repo,
		providers:  providerRepo,
		publisher:  publisher,
		references: NewReferenceGenerator(cfg.DefaultRegion),
		validate:   validator.New(),
		logger:     logger,
		prices:     cfg.Prices,
		banking:    cfg.Banking,
		policy:     cfg.Policy,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.NewString() },
	}
	// premium expiry and ProcessedAt share one clock
	s.activator = premium.NewActivator(providerRepo, logger).WithClock(func() time.Time { return s.now() })
	return s
}

func (s *Service) WithVelocity(v Velocity) *Service {
	s.velocity = v
	return s
}

func (s *Service) WithPresigner(p ProofPresigner) *Service {
	s.presigner = p
	return s
}

// WithTxEvents makes rejections and entitlement grants write their events
// through w instead of the publisher. w must share storage with the
// repository and the publisher's outbox.
func (s *Service) WithTxEvents(w TxEventWriter) *Service {
	s.txEvents = w
	return s
}

func (s *Service) WithMetrics(m *metrics.DepositMetrics) *Service {
	s.metrics = m
	return s
}

// Policy reports the configured activation policy.
func (s *Service) Policy() ActivationPolicy {
	return s.policy
}

func aggregate(providerID string) string {
	return "provider:" + providerID
}

// Create validates the request, prices it and persists a pending deposit
// under a fresh reference number.
func (s *Service) Create(ctx context.Context, providerID string, req CreateRequest) (*CreateResult, error) {
	ctx, span := tracer.Start(ctx, "deposits.create")
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	d := &Deposit{
		ID:         s.newID(),
		ProviderID: providerID,
		Purpose:    req.Purpose,
		Status:     StatusPending,
		CreatedAt:  s.now(),
	}
	switch req.Purpose {
	case PurposeCredits:
		if req.Credits <= 0 {
			return nil, fmt.Errorf("%w: credits_to_activate must be positive", ErrInvalidRequest)
		}
		d.Credits = req.Credits
		d.AmountCents = int64(req.Credits) * s.prices.CreditCents
	case PurposePremium:
		plan, err := premium.ParsePlan(req.PlanType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		d.Plan = plan
		d.AmountCents = s.prices.PremiumMonthlyCents
		if plan == premium.PlanLifetime {
			d.AmountCents = s.prices.PremiumLifetimeCents
		}
	}

	profile, err := s.providers.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}

	if s.velocity != nil {
		result, err := s.velocity.CheckDepositVelocity(ctx, providerID)
		if err != nil {
			return nil, err
		}
		if !result.Allowed {
			return nil, ErrVelocityExceeded
		}
	}

	for attempt := 1; ; attempt++ {
		d.ReferenceNumber = s.references.Next(profile.Phone)
		err = s.repo.Create(ctx, d)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateReference) || attempt >= maxReferenceAttempts {
			span.RecordError(err)
			span.SetStatus(codes.Error, "create failed")
			return nil, err
		}
		s.logger.Warn("deposit reference collision, retrying",
			"provider_id", providerID,
			"reference", d.ReferenceNumber,
			"attempt", attempt,
		)
	}
	span.SetAttributes(
		attribute.String("proconnect.deposit_id", d.ID),
		attribute.String("proconnect.reference", d.ReferenceNumber),
	)
	s.metrics.ObserveTransition(string(StatusPending), string(d.Purpose))
	s.logger.Info("deposit created",
		"deposit_id", d.ID,
		"provider_id", providerID,
		"purpose", d.Purpose,
		"amount_cents", d.AmountCents,
		"reference", d.ReferenceNumber,
	)
	s.publish(ctx, d.ProviderID, events.DepositCreatedV1{
		DepositID:       d.ID,
		ProviderID:      d.ProviderID,
		Purpose:         string(d.Purpose),
		AmountCents:     d.AmountCents,
		Credits:         d.Credits,
		PlanType:        string(d.Plan),
		ReferenceNumber: d.ReferenceNumber,
		CreatedAt:       d.CreatedAt,
	})
	return &CreateResult{Deposit: d, BankingDetails: s.banking}, nil
}

// Get returns a deposit owned by providerID. Deposits of other providers
// are reported as not found.
func (s *Service) Get(ctx context.Context, providerID, depositID string) (*Deposit, error) {
	d, err := s.repo.Get(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if d.ProviderID != providerID {
		return nil, ErrDepositNotFound
	}
	return d, nil
}

// ResetVelocity clears a provider's deposit counter so a blocked provider
// can open deposits again before the window expires.
func (s *Service) ResetVelocity(ctx context.Context, providerID, adminID string) error {
	if _, err := s.providers.Get(ctx, providerID); err != nil {
		return err
	}
	if s.velocity == nil {
		return nil
	}
	if err := s.velocity.Reset(ctx, providerID); err != nil {
		return fmt.Errorf("deposits: reset velocity: %w", err)
	}
	s.logger.Info("deposit velocity reset", "provider_id", providerID, "admin", adminID)
	return nil
}

// GetAny returns any deposit. Admin use only.
func (s *Service) GetAny(ctx context.Context, depositID string) (*Deposit, error) {
	return s.repo.Get(ctx, depositID)
}

// ApplyMatch records a bank payment against the pending deposit with the
// same reference. Under PolicyManual the deposit stays pending for review.
func (s *Service) ApplyMatch(ctx context.Context, m Match) (*Deposit, MatchOutcome, error) {
	ctx, span := tracer.Start(ctx, "deposits.apply_match")
	defer span.End()
	span.SetAttributes(attribute.String("proconnect.reference", NormalizeReference(m.Reference)))

	d, err := s.repo.GetByReference(ctx, m.Reference)
	if err != nil {
		if errors.Is(err, ErrDepositNotFound) {
			s.metrics.ObserveMatch("unmatched")
		}
		return nil, "", err
	}
	if d.Status != StatusPending || d.PaymentVerified {
		s.metrics.ObserveMatch(string(MatchDuplicate))
		return d, MatchDuplicate, nil
	}
	if m.AmountCents > 0 && m.AmountCents < d.AmountCents {
		s.metrics.ObserveMatch("amount_mismatch")
		s.logger.Warn("bank payment below deposit amount",
			"deposit_id", d.ID,
			"expected_cents", d.AmountCents,
			"received_cents", m.AmountCents,
		)
		return d, "", ErrAmountMismatch
	}

	at := m.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}
	verified, changed, err := s.repo.MarkVerified(ctx, d.ID, m.BankReference, at)
	if err != nil {
		return nil, "", err
	}
	if !changed {
		s.metrics.ObserveMatch(string(MatchDuplicate))
		return verified, MatchDuplicate, nil
	}
	s.metrics.ObserveMatch(string(MatchVerified))
	s.logger.Info("deposit payment verified",
		"deposit_id", verified.ID,
		"provider_id", verified.ProviderID,
		"bank_reference", m.BankReference,
	)
	s.publish(ctx, verified.ProviderID, events.DepositVerifiedV1{
		DepositID:       verified.ID,
		ProviderID:      verified.ProviderID,
		ReferenceNumber: verified.ReferenceNumber,
		BankReference:   m.BankReference,
		AmountCents:     m.AmountCents,
		VerifiedAt:      at,
	})

	if s.policy != PolicyAutoOnVerified {
		return verified, MatchVerified, nil
	}
	completed, err := s.Approve(ctx, verified.ID, systemActor, "auto-activated on verified payment")
	if errors.Is(err, ErrInvalidStateTransition) || errors.Is(err, ErrConflict) {
		// An admin acted between verification and auto-approval.
		current, getErr := s.repo.Get(ctx, verified.ID)
		if getErr != nil {
			return nil, "", getErr
		}
		return current, MatchVerified, nil
	}
	if err != nil {
		return nil, "", err
	}
	return completed, MatchActivated, nil
}

// Action dispatches an admin approve or reject.
func (s *Service) Action(ctx context.Context, depositID, adminID string, req ActionRequest) (*Deposit, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Action == "reject" {
		return s.Reject(ctx, depositID, adminID, req.Notes)
	}
	return s.Approve(ctx, depositID, adminID, req.Notes)
}

// Approve completes a pending deposit and grants its entitlement once.
func (s *Service) Approve(ctx context.Context, depositID, actor, notes string) (*Deposit, error) {
	ctx, span := tracer.Start(ctx, "deposits.approve")
	defer span.End()
	span.SetAttributes(attribute.String("proconnect.deposit_id", depositID))

	current, err := s.repo.Get(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, current.Status, StatusCompleted)
	}
	d, err := s.transition(ctx, depositID, StatusCompleted, notes, actor, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusCompleted), string(d.Purpose))
	s.observeTerminal(d)
	s.logger.Info("deposit approved", "deposit_id", d.ID, "provider_id", d.ProviderID, "processed_by", actor)

	if _, err := s.applyEntitlement(ctx, d); err != nil {
		// The status change is committed; the repair sweep grants it later.
		span.RecordError(err)
		s.logger.Error("entitlement grant failed after approval",
			"deposit_id", d.ID,
			"provider_id", d.ProviderID,
			"error", err,
		)
	}
	return d, nil
}

// Reject fails a pending deposit. Notes are mandatory.
func (s *Service) Reject(ctx context.Context, depositID, actor, notes string) (*Deposit, error) {
	ctx, span := tracer.Start(ctx, "deposits.reject")
	defer span.End()
	span.SetAttributes(attribute.String("proconnect.deposit_id", depositID))

	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, ErrNotesRequired
	}
	current, err := s.repo.Get(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, current.Status, StatusFailed)
	}
	d, err := s.transition(ctx, depositID, StatusFailed, notes, actor, func(d *Deposit) (string, events.CanonicalEvent) {
		return aggregate(d.ProviderID), events.DepositRejectedV1{
			DepositID:       d.ID,
			ProviderID:      d.ProviderID,
			ReferenceNumber: d.ReferenceNumber,
			AmountCents:     d.AmountCents,
			Reason:          notes,
			ProcessedAt:     processedAt(d),
			ProcessedBy:     actor,
		}
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusFailed), string(d.Purpose))
	s.observeTerminal(d)
	s.logger.Info("deposit rejected", "deposit_id", d.ID, "provider_id", d.ProviderID, "processed_by", actor)
	return d, nil
}

// transition applies the status CAS and records build's event with it,
// atomically when a TxEventWriter is configured.
func (s *Service) transition(ctx context.Context, id string, to Status, notes, actor string, build EventBuilder) (*Deposit, error) {
	if s.txEvents != nil {
		return s.txEvents.TransitionWithEvent(ctx, id, to, s.now(), notes, actor, build)
	}
	d, err := s.repo.Transition(ctx, id, to, s.now(), notes, actor)
	if err != nil {
		return nil, err
	}
	if build != nil {
		agg, evt := build(d)
		s.publishTo(ctx, agg, evt)
	}
	return d, nil
}

func processedAt(d *Deposit) time.Time {
	if d.ProcessedAt == nil {
		return time.Time{}
	}
	return *d.ProcessedAt
}

// PremiumStatus returns the profile with lazily evaluated premium state and
// the provider's most recent deposit, if any.
func (s *Service) PremiumStatus(ctx context.Context, providerID string) (*PremiumStatus, error) {
	profile, err := s.providers.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	status := &PremiumStatus{
		Profile:       profile,
		PremiumActive: profile.PremiumActiveAt(s.now()),
	}
	latest, err := s.repo.LatestForProvider(ctx, providerID)
	switch {
	case err == nil:
		status.LatestDeposit = latest
	case !errors.Is(err, ErrDepositNotFound):
		return nil, err
	}
	return status, nil
}

// RepairEntitlements grants entitlements for completed deposits that never
// recorded one. Grants are keyed by deposit id, so a deposit whose grant did
// land but whose marker did not is only marked.
func (s *Service) RepairEntitlements(ctx context.Context) (int, error) {
	pending, err := s.repo.ListUnapplied(ctx, repairBatchSize)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, d := range pending {
		if _, err := s.applyEntitlement(ctx, d); err != nil {
			s.logger.Error("entitlement repair failed", "deposit_id", d.ID, "error", err)
			continue
		}
		repaired++
	}
	if repaired > 0 {
		s.logger.Info("entitlements repaired", "count", repaired)
	}
	return repaired, nil
}

// AttachProof issues an upload URL for a proof-of-payment file on a pending
// deposit and records the object key.
func (s *Service) AttachProof(ctx context.Context, providerID, depositID, contentType string) (*ProofUpload, error) {
	if s.presigner == nil {
		return nil, ErrProofUploadsDisabled
	}
	d, err := s.Get(ctx, providerID, depositID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusPending {
		return nil, fmt.Errorf("%w: proof can only be attached while pending", ErrInvalidStateTransition)
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	key := fmt.Sprintf("proofs/%s/%s", d.ProviderID, d.ID)
	url, expires, err := s.presigner.PresignPut(ctx, key, contentType)
	if err != nil {
		return nil, fmt.Errorf("deposits: presign proof: %w", err)
	}
	if err := s.repo.SetProofObjectKey(ctx, d.ID, key); err != nil {
		return nil, err
	}
	return &ProofUpload{URL: url, ObjectKey: key, ExpiresAt: expires}, nil
}

func (s *Service) applyEntitlement(ctx context.Context, d *Deposit) (*providers.Profile, error) {
	var (
		applied bool
		profile *providers.Profile
		err     error
	)
	switch d.Purpose {
	case PurposePremium:
		applied, profile, err = s.activator.ActivatePremium(ctx, d.ProviderID, d.ID, d.Plan)
	case PurposeCredits:
		applied, profile, err = s.providers.GrantCredits(ctx, d.ProviderID, d.ID, d.Credits)
	default:
		return nil, fmt.Errorf("deposits: unknown purpose %q", d.Purpose)
	}
	if err != nil {
		return nil, err
	}
	if !applied {
		s.logger.Info("entitlement already granted", "deposit_id", d.ID)
	}

	evt := events.DepositCompletedV1{
		DepositID:       d.ID,
		ProviderID:      d.ProviderID,
		Purpose:         string(d.Purpose),
		AmountCents:     d.AmountCents,
		Credits:         d.Credits,
		PlanType:        string(d.Plan),
		ReferenceNumber: d.ReferenceNumber,
		ProcessedAt:     processedAt(d),
		ProcessedBy:     d.ProcessedBy,
	}
	if profile != nil {
		if d.Purpose == PurposePremium {
			evt.PremiumExpires = profile.PremiumExpiresAt
		} else {
			balance := profile.CreditBalance
			evt.CreditBalance = &balance
		}
	}

	// The completion event travels with the applied marker, so a grant
	// finished by the repair sweep still notifies the provider.
	if s.txEvents != nil {
		if err := s.txEvents.MarkEntitlementAppliedWithEvent(ctx, d.ID, s.now(), aggregate(d.ProviderID), evt); err != nil {
			return profile, err
		}
		return profile, nil
	}
	if err := s.repo.MarkEntitlementApplied(ctx, d.ID, s.now()); err != nil {
		return profile, err
	}
	s.publish(ctx, d.ProviderID, evt)
	return profile, nil
}

func (s *Service) observeTerminal(d *Deposit) {
	if d.ProcessedAt == nil {
		return
	}
	s.metrics.ObserveTimeToTerminal(d.ProcessedAt.Sub(d.CreatedAt).Seconds())
}

func (s *Service) publish(ctx context.Context, providerID string, evt events.CanonicalEvent) {
	s.publishTo(ctx, aggregate(providerID), evt)
}

func (s *Service) publishTo(ctx context.Context, agg string, evt events.CanonicalEvent) {
	if err := s.publisher.Publish(ctx, agg, evt); err != nil {
		s.logger.Error("failed to publish deposit event",
			"event_type", evt.EventType(),
			"aggregate", agg,
			"error", err,
		)
	}
}
