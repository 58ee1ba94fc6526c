package leads

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db pgxDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	if db == nil {
		panic("leads: db required")
	}
	return &PostgresRepository{db: db}
}

const selectLead = `
	SELECT l.id, l.category, l.location, l.budget_min, l.budget_max, l.urgency,
	       l.verification_score, l.max_providers, l.assigned_count, l.views_count,
	       l.responses_count, l.contact_name, l.contact_phone, l.contact_email, l.created_at,
	       COALESCE(ARRAY(SELECT c.provider_id FROM lead_claims c WHERE c.lead_id = l.id ORDER BY c.claimed_at), '{}')
	FROM leads l
	WHERE l.id = $1
`

// GetByID fetches a lead with its current claim set.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	var lead Lead
	if err := r.db.QueryRow(ctx, selectLead, id).Scan(
		&lead.ID,
		&lead.Category,
		&lead.Location,
		&lead.BudgetMin,
		&lead.BudgetMax,
		&lead.Urgency,
		&lead.VerificationScore,
		&lead.MaxProviders,
		&lead.AssignedCount,
		&lead.ViewsCount,
		&lead.ResponsesCount,
		&lead.ContactName,
		&lead.ContactPhone,
		&lead.ContactEmail,
		&lead.CreatedAt,
		&lead.ClaimedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return &lead, nil
}

// Claim locks the lead row, checks capacity and records the claim in one transaction.
func (r *PostgresRepository) Claim(ctx context.Context, leadID, providerID string) (*Lead, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("leads: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var assigned, capacity int
	err = tx.QueryRow(ctx,
		`SELECT assigned_count, max_providers FROM leads WHERE id = $1 FOR UPDATE`, leadID,
	).Scan(&assigned, &capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leads: lock lead: %w", err)
	}

	ct, err := tx.Exec(ctx, `
		INSERT INTO lead_claims (lead_id, provider_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, leadID, providerID)
	if err != nil {
		return nil, fmt.Errorf("leads: insert claim: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrAlreadyClaimed
	}
	if capacity > 0 && assigned >= capacity {
		return nil, ErrLeadFull
	}

	ct, err = tx.Exec(ctx, `
		UPDATE leads SET assigned_count = assigned_count + 1
		WHERE id = $1 AND (max_providers = 0 OR assigned_count < max_providers)
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("leads: increment assigned: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrLeadFull
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("leads: commit claim: %w", err)
	}
	return r.GetByID(ctx, leadID)
}

// Release removes a claim and frees its slot.
func (r *PostgresRepository) Release(ctx context.Context, leadID, providerID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("leads: begin release: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `DELETE FROM lead_claims WHERE lead_id = $1 AND provider_id = $2`, leadID, providerID)
	if err != nil {
		return fmt.Errorf("leads: delete claim: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrClaimNotFound
	}
	if _, err := tx.Exec(ctx, `
		UPDATE leads SET assigned_count = GREATEST(assigned_count - 1, 0) WHERE id = $1
	`, leadID); err != nil {
		return fmt.Errorf("leads: decrement assigned: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("leads: commit release: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RecordView(ctx context.Context, leadID string) error {
	ct, err := r.db.Exec(ctx, `UPDATE leads SET views_count = views_count + 1 WHERE id = $1`, leadID)
	if err != nil {
		return fmt.Errorf("leads: record view: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}
