package deposits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paasforest/proconnect-access/internal/events"
	"github.com/paasforest/proconnect-access/internal/premium"
)

const uniqueViolation = "23505"

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores deposits in the deposits table.
type PostgresRepository struct {
	db pgxDB
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("deposits: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	if db == nil {
		panic("deposits: db required")
	}
	return &PostgresRepository{db: db}
}

const depositColumns = `id, provider_id, purpose, amount_cents, credits, plan_type, reference_number,
	bank_reference, status, payment_verified, verified_at, admin_notes, processed_by,
	created_at, processed_at, entitlement_applied_at, proof_object_key`

func scanDeposit(row pgx.Row) (*Deposit, error) {
	var (
		d       Deposit
		purpose string
		plan    *string
		status  string
	)
	err := row.Scan(&d.ID, &d.ProviderID, &purpose, &d.AmountCents, &d.Credits, &plan, &d.ReferenceNumber,
		&d.BankReference, &status, &d.PaymentVerified, &d.VerifiedAt, &d.AdminNotes, &d.ProcessedBy,
		&d.CreatedAt, &d.ProcessedAt, &d.EntitlementAppliedAt, &d.ProofObjectKey)
	if err != nil {
		return nil, err
	}
	d.Purpose = Purpose(purpose)
	d.Status = Status(status)
	if plan != nil {
		d.Plan = premium.Plan(*plan)
	}
	return &d, nil
}

func (r *PostgresRepository) Create(ctx context.Context, d *Deposit) error {
	var plan *string
	if d.Plan != "" {
		p := string(d.Plan)
		plan = &p
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO deposits (id, provider_id, purpose, amount_cents, credits, plan_type,
			reference_number, status, payment_verified, admin_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, '', $9)
	`, d.ID, d.ProviderID, string(d.Purpose), d.AmountCents, d.Credits, plan,
		NormalizeReference(d.ReferenceNumber), string(StatusPending), d.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateReference
	}
	if err != nil {
		return fmt.Errorf("deposits: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*Deposit, error) {
	d, err := scanDeposit(r.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDepositNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deposits: select: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Deposit, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByReference(ctx context.Context, reference string) (*Deposit, error) {
	return r.getOne(ctx, `reference_number = $1`, NormalizeReference(reference))
}

func (r *PostgresRepository) LatestForProvider(ctx context.Context, providerID string) (*Deposit, error) {
	return r.getOne(ctx, `provider_id = $1 ORDER BY created_at DESC LIMIT 1`, providerID)
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id, bankReference string, at time.Time) (*Deposit, bool, error) {
	d, err := scanDeposit(r.db.QueryRow(ctx, `
		UPDATE deposits
		SET payment_verified = true, bank_reference = $2, verified_at = $3
		WHERE id = $1 AND status = 'pending' AND NOT payment_verified
		RETURNING `+depositColumns, id, bankReference, at))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return nil, false, getErr
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("deposits: mark verified: %w", err)
	}
	return d, true, nil
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, to Status, at time.Time, notes, actor string) (*Deposit, error) {
	return r.transition(ctx, r.db, id, to, at, notes, actor)
}

func (r *PostgresRepository) transition(ctx context.Context, q rowQuerier, id string, to Status, at time.Time, notes, actor string) (*Deposit, error) {
	if !to.Terminal() {
		return nil, fmt.Errorf("%w: pending -> %s", ErrInvalidStateTransition, to)
	}
	d, err := scanDeposit(q.QueryRow(ctx, `
		UPDATE deposits
		SET status = $2, processed_at = $3, processed_by = $4,
			admin_notes = CASE WHEN $5 = '' THEN admin_notes ELSE $5 END
		WHERE id = $1 AND status = 'pending'
		RETURNING `+depositColumns, id, string(to), at, actor, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("deposits: transition: %w", err)
	}
	return d, nil
}

// TransitionWithEvent commits the status change and the outbox row for the
// event built from the updated deposit in one transaction.
func (r *PostgresRepository) TransitionWithEvent(ctx context.Context, id string, to Status, at time.Time, notes, actor string, build EventBuilder) (*Deposit, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("deposits: begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := r.transition(ctx, tx, id, to, at, notes, actor)
	if err != nil {
		return nil, err
	}
	if build != nil {
		aggregate, evt := build(d)
		if _, err := events.AppendCanonicalEvent(ctx, tx, aggregate, evt); err != nil {
			return nil, fmt.Errorf("deposits: transition event: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("deposits: commit transition: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) MarkEntitlementApplied(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.Exec(ctx, markAppliedSQL, id, at); err != nil {
		return fmt.Errorf("deposits: mark entitlement applied: %w", err)
	}
	return nil
}

const markAppliedSQL = `
		UPDATE deposits SET entitlement_applied_at = $2
		WHERE id = $1 AND entitlement_applied_at IS NULL
	`

// MarkEntitlementAppliedWithEvent sets the marker and appends evt together.
// When another worker already set the marker nothing is written, so the
// event is recorded once per deposit.
func (r *PostgresRepository) MarkEntitlementAppliedWithEvent(ctx context.Context, id string, at time.Time, aggregate string, evt events.CanonicalEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("deposits: begin mark applied: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, markAppliedSQL, id, at)
	if err != nil {
		return fmt.Errorf("deposits: mark entitlement applied: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil
	}
	if _, err := events.AppendCanonicalEvent(ctx, tx, aggregate, evt); err != nil {
		return fmt.Errorf("deposits: entitlement event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("deposits: commit mark applied: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListUnapplied(ctx context.Context, limit int) ([]*Deposit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+depositColumns+`
		FROM deposits
		WHERE status = 'completed' AND entitlement_applied_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("deposits: list unapplied: %w", err)
	}
	defer rows.Close()

	var out []*Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("deposits: scan unapplied: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetProofObjectKey(ctx context.Context, id, key string) error {
	ct, err := r.db.Exec(ctx, `UPDATE deposits SET proof_object_key = $2 WHERE id = $1`, id, key)
	if err != nil {
		return fmt.Errorf("deposits: set proof key: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrDepositNotFound
	}
	return nil
}
