package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository persists provider profiles, grants and the credit ledger.
type PostgresRepository struct {
	db pgxDB
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("providers: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	if db == nil {
		panic("providers: db required")
	}
	return &PostgresRepository{db: db}
}

const profileColumns = `id, name, email, phone, subscription_tier, credit_balance,
	premium_listing_active, premium_expires_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var (
		p       Profile
		tier    string
		expires *time.Time
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &tier, &p.CreditBalance,
		&p.PremiumListingActive, &expires, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.SubscriptionTier = ParseTier(tier)
	p.PremiumExpiresAt = expires
	return &p, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM providers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("providers: select profile: %w", err)
	}
	return p, nil
}

// SpendCredits deducts with a balance guard so concurrent spends cannot overdraw.
func (r *PostgresRepository) SpendCredits(ctx context.Context, providerID string, amount int, reference string) (*Profile, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("providers: begin spend: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanProfile(tx.QueryRow(ctx, `
		UPDATE providers
		SET credit_balance = credit_balance - $2, updated_at = now()
		WHERE id = $1 AND credit_balance >= $2
		RETURNING `+profileColumns, providerID, amount))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.spendFailure(ctx, tx, providerID)
	}
	if err != nil {
		return nil, fmt.Errorf("providers: spend credits: %w", err)
	}
	if err := insertLedger(ctx, tx, p, EntrySpend, amount, reference); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("providers: commit spend: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) spendFailure(ctx context.Context, tx pgx.Tx, providerID string) error {
	var exists int
	err := tx.QueryRow(ctx, `SELECT 1 FROM providers WHERE id = $1`, providerID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProviderNotFound
	}
	if err != nil {
		return fmt.Errorf("providers: check provider: %w", err)
	}
	return ErrInsufficientCredits
}

// GrantCredits tops up once per grantKey.
func (r *PostgresRepository) GrantCredits(ctx context.Context, providerID, grantKey string, credits int) (bool, *Profile, error) {
	if credits <= 0 {
		return false, nil, ErrInvalidAmount
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("providers: begin grant: %w", err)
	}
	defer tx.Rollback(ctx)

	fresh, err := claimGrant(ctx, tx, grantKey, providerID, "credits")
	if err != nil {
		return false, nil, err
	}
	if !fresh {
		_ = tx.Rollback(ctx)
		p, err := r.Get(ctx, providerID)
		return false, p, err
	}

	p, err := scanProfile(tx.QueryRow(ctx, `
		UPDATE providers
		SET credit_balance = credit_balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+profileColumns, providerID, credits))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, ErrProviderNotFound
	}
	if err != nil {
		return false, nil, fmt.Errorf("providers: grant credits: %w", err)
	}
	if err := insertLedger(ctx, tx, p, EntryTopUp, credits, grantKey); err != nil {
		return false, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, nil, fmt.Errorf("providers: commit grant: %w", err)
	}
	return true, p, nil
}

// ApplyPremium runs fn against the row locked FOR UPDATE, once per grantKey.
func (r *PostgresRepository) ApplyPremium(ctx context.Context, providerID, grantKey string, fn Mutation) (bool, *Profile, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("providers: begin premium: %w", err)
	}
	defer tx.Rollback(ctx)

	fresh, err := claimGrant(ctx, tx, grantKey, providerID, "premium")
	if err != nil {
		return false, nil, err
	}
	if !fresh {
		_ = tx.Rollback(ctx)
		p, err := r.Get(ctx, providerID)
		return false, p, err
	}

	current, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM providers WHERE id = $1 FOR UPDATE`, providerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, ErrProviderNotFound
	}
	if err != nil {
		return false, nil, fmt.Errorf("providers: lock profile: %w", err)
	}

	next := fn(*current)
	p, err := scanProfile(tx.QueryRow(ctx, `
		UPDATE providers
		SET premium_listing_active = $2, premium_expires_at = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+profileColumns, providerID, next.PremiumListingActive, next.PremiumExpiresAt))
	if err != nil {
		return false, nil, fmt.Errorf("providers: update premium: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, nil, fmt.Errorf("providers: commit premium: %w", err)
	}
	return true, p, nil
}

func (r *PostgresRepository) ExpirePremium(ctx context.Context, now time.Time) (int, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE providers
		SET premium_listing_active = false, updated_at = $1
		WHERE premium_listing_active AND premium_expires_at IS NOT NULL AND premium_expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("providers: expire premium: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func (r *PostgresRepository) Ledger(ctx context.Context, providerID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, provider_id, entry_type, amount, balance_after, reference, created_at
		FROM credit_ledger
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, fmt.Errorf("providers: query ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.EntryType, &e.Amount, &e.BalanceAfter, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("providers: scan ledger: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func claimGrant(ctx context.Context, tx pgx.Tx, grantKey, providerID, kind string) (bool, error) {
	ct, err := tx.Exec(ctx, `
		INSERT INTO entitlement_grants (grant_key, provider_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, grantKey, providerID, kind)
	if err != nil {
		return false, fmt.Errorf("providers: record grant: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func insertLedger(ctx context.Context, tx pgx.Tx, p *Profile, entryType string, amount int, reference string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO credit_ledger (provider_id, entry_type, amount, balance_after, reference)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, entryType, amount, p.CreditBalance, reference); err != nil {
		return fmt.Errorf("providers: insert ledger: %w", err)
	}
	return nil
}
