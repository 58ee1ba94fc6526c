package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var leadColumns = []string{
	"id", "category", "location", "budget_min", "budget_max", "urgency",
	"verification_score", "max_providers", "assigned_count", "views_count",
	"responses_count", "contact_name", "contact_phone", "contact_email", "created_at", "claimed_by",
}

func leadRow(assigned int, claims []string) *pgxmock.Rows {
	return pgxmock.NewRows(leadColumns).AddRow(
		"lead-1", "plumbing", "Cape Town", int64(1000), int64(5000), "urgent",
		75, 3, assigned, 4, 1, "Sipho", "+27821234567", "sipho@example.com",
		time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), claims,
	)
}

func TestPostgresRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectQuery("SELECT l.id").WithArgs("lead-1").WillReturnRows(leadRow(1, []string{"p1"}))
	lead, err := repo.GetByID(context.Background(), "lead-1")
	require.NoError(t, err)
	require.Equal(t, 75, lead.VerificationScore)
	require.True(t, lead.HasClaim("p1"))

	mock.ExpectQuery("SELECT l.id").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(context.Background(), "missing")
	require.True(t, errors.Is(err, ErrLeadNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Claim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT assigned_count, max_providers FROM leads").WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"assigned_count", "max_providers"}).AddRow(1, 3))
	mock.ExpectExec("INSERT INTO lead_claims").WithArgs("lead-1", "p2").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE leads SET assigned_count = assigned_count \\+ 1").WithArgs("lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT l.id").WithArgs("lead-1").WillReturnRows(leadRow(2, []string{"p1", "p2"}))

	lead, err := repo.Claim(context.Background(), "lead-1", "p2")
	require.NoError(t, err)
	require.Equal(t, 2, lead.AssignedCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ClaimUnlimited(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT assigned_count, max_providers FROM leads").WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"assigned_count", "max_providers"}).AddRow(7, 0))
	mock.ExpectExec("INSERT INTO lead_claims").WithArgs("lead-1", "p8").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE leads SET assigned_count = assigned_count \+ 1\s+WHERE id = \$1 AND \(max_providers = 0 OR assigned_count < max_providers\)`).
		WithArgs("lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT l.id").WithArgs("lead-1").WillReturnRows(leadRow(8, []string{"p8"}))

	_, err = repo.Claim(context.Background(), "lead-1", "p8")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ClaimFull(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT assigned_count, max_providers FROM leads").WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"assigned_count", "max_providers"}).AddRow(3, 3))
	mock.ExpectExec("INSERT INTO lead_claims").WithArgs("lead-1", "p4").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	_, err = repo.Claim(context.Background(), "lead-1", "p4")
	require.ErrorIs(t, err, ErrLeadFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ClaimDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT assigned_count, max_providers FROM leads").WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"assigned_count", "max_providers"}).AddRow(1, 3))
	mock.ExpectExec("INSERT INTO lead_claims").WithArgs("lead-1", "p1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	_, err = repo.Claim(context.Background(), "lead-1", "p1")
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ReleaseAndView(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM lead_claims").WithArgs("lead-1", "p1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("UPDATE leads SET assigned_count = GREATEST").WithArgs("lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	require.NoError(t, repo.Release(context.Background(), "lead-1", "p1"))

	mock.ExpectExec("UPDATE leads SET views_count").WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, repo.RecordView(context.Background(), "gone"), ErrLeadNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
