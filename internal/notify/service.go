// Package notify turns deposit events into emails for providers and the
// payments desk.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paasforest/proconnect-access/internal/deposits"
	"github.com/paasforest/proconnect-access/internal/events"
	"github.com/paasforest/proconnect-access/internal/providers"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

// ProviderLookup resolves the recipient of provider-facing emails.
type ProviderLookup interface {
	Get(ctx context.Context, id string) (*providers.Profile, error)
}

// Config controls who is told about what.
type Config struct {
	// OpsEmail receives new-request and verified-payment alerts. Empty disables them.
	OpsEmail string
	Banking  deposits.BankingDetails
}

// Service is an events.DeliveryHandler that sends deposit emails.
type Service struct {
	email     EmailSender
	providers ProviderLookup
	cfg       Config
	logger    *logging.Logger
}

func NewService(email EmailSender, lookup ProviderLookup, cfg Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Service{email: email, providers: lookup, cfg: cfg, logger: logger}
}

// Handle dispatches on the event type. Unknown types are ignored.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	switch entry.Type {
	case events.DepositCreatedV1{}.EventType():
		var evt events.DepositCreatedV1
		if err := entry.Envelope.Decode(&evt); err != nil {
			return err
		}
		return s.depositCreated(ctx, evt)
	case events.DepositVerifiedV1{}.EventType():
		var evt events.DepositVerifiedV1
		if err := entry.Envelope.Decode(&evt); err != nil {
			return err
		}
		return s.depositVerified(ctx, evt)
	case events.DepositCompletedV1{}.EventType():
		var evt events.DepositCompletedV1
		if err := entry.Envelope.Decode(&evt); err != nil {
			return err
		}
		return s.depositCompleted(ctx, evt)
	case events.DepositRejectedV1{}.EventType():
		var evt events.DepositRejectedV1
		if err := entry.Envelope.Decode(&evt); err != nil {
			return err
		}
		return s.depositRejected(ctx, evt)
	default:
		s.logger.Debug("notify: ignoring event", "type", entry.Type)
		return nil
	}
}

func formatRand(cents int64) string {
	return fmt.Sprintf("R%d.%02d", cents/100, cents%100)
}

func describePurchase(purpose string, credits int, plan string) string {
	if purpose == string(deposits.PurposePremium) {
		return fmt.Sprintf("premium listing (%s)", plan)
	}
	if credits == 1 {
		return "1 lead credit"
	}
	return fmt.Sprintf("%d lead credits", credits)
}

func (s *Service) depositCreated(ctx context.Context, evt events.DepositCreatedV1) error {
	profile, err := s.recipient(ctx, evt.ProviderID)
	if err != nil {
		return err
	}
	var errs []error
	if profile != nil {
		b := s.cfg.Banking
		var body strings.Builder
		fmt.Fprintf(&body, "Hi %s,\n\n", displayName(profile))
		fmt.Fprintf(&body, "Please pay %s for %s by EFT using the reference below.\n\n",
			formatRand(evt.AmountCents), describePurchase(evt.Purpose, evt.Credits, evt.PlanType))
		fmt.Fprintf(&body, "Reference: %s\n", evt.ReferenceNumber)
		fmt.Fprintf(&body, "Bank: %s\nAccount holder: %s\nAccount number: %s\nBranch code: %s\n\n",
			b.BankName, b.AccountHolder, b.AccountNumber, b.BranchCode)
		body.WriteString("Use the reference exactly as shown so we can match your payment.\n")
		errs = append(errs, s.email.Send(ctx, EmailMessage{
			To:      profile.Email,
			ToName:  profile.Name,
			Subject: "Your ProConnect payment reference " + evt.ReferenceNumber,
			Body:    body.String(),
		}))
	}
	if s.cfg.OpsEmail != "" {
		errs = append(errs, s.email.Send(ctx, EmailMessage{
			To:      s.cfg.OpsEmail,
			Subject: "New deposit request " + evt.ReferenceNumber,
			Body: fmt.Sprintf("Provider %s requested %s for %s.\nReference: %s\nCreated: %s\n",
				evt.ProviderID, describePurchase(evt.Purpose, evt.Credits, evt.PlanType),
				formatRand(evt.AmountCents), evt.ReferenceNumber, evt.CreatedAt.Format(time.RFC1123)),
		}))
	}
	return errors.Join(errs...)
}

func (s *Service) depositVerified(ctx context.Context, evt events.DepositVerifiedV1) error {
	if s.cfg.OpsEmail == "" {
		return nil
	}
	return s.email.Send(ctx, EmailMessage{
		To:      s.cfg.OpsEmail,
		Subject: "Payment received for " + evt.ReferenceNumber,
		Body: fmt.Sprintf("Bank payment %s matched deposit %s (reference %s). It is ready for approval.\n",
			evt.BankReference, evt.DepositID, evt.ReferenceNumber),
	})
}

func (s *Service) depositCompleted(ctx context.Context, evt events.DepositCompletedV1) error {
	profile, err := s.recipient(ctx, evt.ProviderID)
	if err != nil || profile == nil {
		return err
	}
	var detail string
	switch {
	case evt.Purpose == string(deposits.PurposePremium) && evt.PremiumExpires == nil:
		detail = "Your premium listing is now active with no expiry."
	case evt.Purpose == string(deposits.PurposePremium):
		detail = "Your premium listing is active until " + evt.PremiumExpires.Format("2 January 2006") + "."
	case evt.CreditBalance != nil:
		detail = fmt.Sprintf("%d credits were added. Your balance is now %d credits.", evt.Credits, *evt.CreditBalance)
	default:
		detail = fmt.Sprintf("%d credits were added to your account.", evt.Credits)
	}
	return s.email.Send(ctx, EmailMessage{
		To:      profile.Email,
		ToName:  profile.Name,
		Subject: "Payment approved",
		Body: fmt.Sprintf("Hi %s,\n\nWe received your payment of %s (reference %s).\n%s\n",
			displayName(profile), formatRand(evt.AmountCents), evt.ReferenceNumber, detail),
	})
}

func (s *Service) depositRejected(ctx context.Context, evt events.DepositRejectedV1) error {
	profile, err := s.recipient(ctx, evt.ProviderID)
	if err != nil || profile == nil {
		return err
	}
	return s.email.Send(ctx, EmailMessage{
		To:      profile.Email,
		ToName:  profile.Name,
		Subject: "Payment could not be confirmed",
		Body: fmt.Sprintf("Hi %s,\n\nWe could not confirm your payment for reference %s.\nReason: %s\n\nReply to this email if you believe this is a mistake.\n",
			displayName(profile), evt.ReferenceNumber, evt.Reason),
	})
}

// recipient returns nil without error when the provider has no email on file.
func (s *Service) recipient(ctx context.Context, providerID string) (*providers.Profile, error) {
	if s.providers == nil {
		return nil, nil
	}
	profile, err := s.providers.Get(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("notify: load provider: %w", err)
	}
	if strings.TrimSpace(profile.Email) == "" {
		s.logger.Warn("notify: provider has no email", "provider_id", providerID)
		return nil, nil
	}
	return profile, nil
}

func displayName(p *providers.Profile) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return "there"
}
