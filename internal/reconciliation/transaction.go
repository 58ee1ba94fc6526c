// Package reconciliation matches incoming bank transactions to pending
// deposits by reference number.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paasforest/proconnect-access/internal/deposits"
	"github.com/paasforest/proconnect-access/pkg/logging"
)

// Sources recorded in the processed-events table.
const (
	SourceWebhook = "bank_webhook"
	SourceFeed    = "bank_feed"
)

// BankTransaction is one credit to the business account.
type BankTransaction struct {
	ID            string    `json:"id" validate:"required"`
	Reference     string    `json:"reference" validate:"required"`
	BankReference string    `json:"bank_reference"`
	AmountCents   int64     `json:"amount_cents" validate:"gte=0"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Applier applies a match to the deposit it references.
type Applier interface {
	ApplyMatch(ctx context.Context, m deposits.Match) (*deposits.Deposit, deposits.MatchOutcome, error)
}

// ProcessedStore remembers which transactions were already handled.
type ProcessedStore interface {
	AlreadyProcessed(ctx context.Context, source, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, source, eventID string) (bool, error)
}

// Result reports what happened to a single transaction.
type Result string

const (
	ResultVerified  Result = "verified"
	ResultActivated Result = "activated"
	ResultDuplicate Result = "duplicate"
	ResultUnmatched Result = "unmatched"
	ResultMismatch  Result = "amount_mismatch"
)

// Processor applies bank transactions exactly once per source id.
type Processor struct {
	applier   Applier
	processed ProcessedStore
	logger    *logging.Logger
}

func NewProcessor(applier Applier, processed ProcessedStore, logger *logging.Logger) *Processor {
	if applier == nil || processed == nil {
		panic("reconciliation: applier and processed store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{applier: applier, processed: processed, logger: logger}
}

// Process applies txn. Unmatched references and short payments are recorded
// as processed and left for manual review; other errors are returned so the
// transaction is retried.
func (p *Processor) Process(ctx context.Context, source string, txn BankTransaction) (Result, error) {
	if strings.TrimSpace(txn.ID) == "" {
		return "", fmt.Errorf("reconciliation: transaction id required")
	}
	seen, err := p.processed.AlreadyProcessed(ctx, source, txn.ID)
	if err != nil {
		return "", err
	}
	if seen {
		return ResultDuplicate, nil
	}

	bankRef := txn.BankReference
	if bankRef == "" {
		bankRef = txn.ID
	}
	d, outcome, err := p.applier.ApplyMatch(ctx, deposits.Match{
		Reference:     txn.Reference,
		BankReference: bankRef,
		AmountCents:   txn.AmountCents,
		ReceivedAt:    txn.ReceivedAt,
	})

	var result Result
	switch {
	case errors.Is(err, deposits.ErrDepositNotFound):
		result = ResultUnmatched
		p.logger.Warn("bank transaction has no matching deposit",
			"source", source,
			"transaction_id", txn.ID,
			"reference", txn.Reference,
		)
	case errors.Is(err, deposits.ErrAmountMismatch):
		result = ResultMismatch
	case err != nil:
		return "", err
	default:
		result = Result(outcome)
		p.logger.Info("bank transaction applied",
			"source", source,
			"transaction_id", txn.ID,
			"deposit_id", d.ID,
			"result", result,
		)
	}

	if _, err := p.processed.MarkProcessed(ctx, source, txn.ID); err != nil {
		return result, err
	}
	return result, nil
}
