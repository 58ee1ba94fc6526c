package deposits

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/paasforest/proconnect-access/internal/premium"
)

// ListFilter narrows the admin deposit listing.
type ListFilter struct {
	Statuses   []Status
	ProviderID string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// ListPage is one page of deposits, newest first.
type ListPage struct {
	Deposits   []*Deposit `json:"deposits"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

// Stats aggregates deposit volume for the admin dashboard.
type Stats struct {
	TotalDeposits      int            `json:"total_deposits"`
	TotalAmountCents   int64          `json:"total_amount_cents"`
	ByStatus           map[string]int `json:"by_status"`
	PendingVerified    int            `json:"pending_verified"`
	CompletedCents     int64          `json:"completed_amount_cents"`
	TodayCount         int            `json:"today_count"`
	WeekCount          int            `json:"week_count"`
	AverageAmountCents int64          `json:"average_amount_cents"`
}

// Reporter runs the read-only admin queries over database/sql.
type Reporter struct {
	db *sql.DB
}

func NewReporter(db *sql.DB) *Reporter {
	if db == nil {
		panic("deposits: sql db required")
	}
	return &Reporter{db: db}
}

func (f ListFilter) normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return f
}

func (f ListFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.Replace(clause, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY(?)", pq.Array(statuses))
	}
	if f.ProviderID != "" {
		add("provider_id = ?", f.ProviderID)
	}
	if !f.From.IsZero() {
		add("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < ?", f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns a page of deposits matching the filter.
func (r *Reporter) List(ctx context.Context, filter ListFilter) (*ListPage, error) {
	filter = filter.normalized()
	where, args := filter.where()

	page := &ListPage{Page: filter.Page, PageSize: filter.PageSize, Deposits: []*Deposit{}}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deposits`+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("deposits: count: %w", err)
	}
	if page.Total > 0 {
		page.TotalPages = (page.Total + filter.PageSize - 1) / filter.PageSize
	}

	n := len(args)
	query := `SELECT ` + depositColumns + ` FROM deposits` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("deposits: list: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanSQLDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("deposits: scan: %w", err)
		}
		page.Deposits = append(page.Deposits, d)
	}
	return page, rows.Err()
}

// Stats aggregates all deposits relative to now.
func (r *Reporter) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]int)}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount_cents), 0),
			COUNT(*) FILTER (WHERE status = 'pending' AND payment_verified),
			COALESCE(SUM(amount_cents) FILTER (WHERE status = 'completed'), 0),
			COUNT(*) FILTER (WHERE created_at >= $1),
			COUNT(*) FILTER (WHERE created_at >= $2)
		FROM deposits
	`, now.Truncate(24*time.Hour), now.AddDate(0, 0, -7)).Scan(
		&stats.TotalDeposits, &stats.TotalAmountCents,
		&stats.PendingVerified, &stats.CompletedCents,
		&stats.TodayCount, &stats.WeekCount,
	)
	if err != nil {
		return nil, fmt.Errorf("deposits: stats totals: %w", err)
	}
	if stats.TotalDeposits > 0 {
		stats.AverageAmountCents = stats.TotalAmountCents / int64(stats.TotalDeposits)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM deposits GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("deposits: stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("deposits: stats scan: %w", err)
		}
		stats.ByStatus[status] = count
	}
	return stats, rows.Err()
}

func scanSQLDeposit(rows *sql.Rows) (*Deposit, error) {
	var (
		d             Deposit
		purpose       string
		status        string
		plan          sql.NullString
		bankReference sql.NullString
		processedBy   sql.NullString
		proofKey      sql.NullString
		verifiedAt    sql.NullTime
		processedAt   sql.NullTime
		appliedAt     sql.NullTime
	)
	err := rows.Scan(&d.ID, &d.ProviderID, &purpose, &d.AmountCents, &d.Credits, &plan, &d.ReferenceNumber,
		&bankReference, &status, &d.PaymentVerified, &verifiedAt, &d.AdminNotes, &processedBy,
		&d.CreatedAt, &processedAt, &appliedAt, &proofKey)
	if err != nil {
		return nil, err
	}
	d.Purpose = Purpose(purpose)
	d.Status = Status(status)
	d.Plan = premium.Plan(plan.String)
	d.ProcessedBy = processedBy.String
	if bankReference.Valid {
		d.BankReference = &bankReference.String
	}
	if proofKey.Valid {
		d.ProofObjectKey = &proofKey.String
	}
	if verifiedAt.Valid {
		d.VerifiedAt = &verifiedAt.Time
	}
	if processedAt.Valid {
		d.ProcessedAt = &processedAt.Time
	}
	if appliedAt.Valid {
		d.EntitlementAppliedAt = &appliedAt.Time
	}
	return &d, nil
}
