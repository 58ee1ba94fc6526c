package providers

import (
	"context"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profileCols = []string{
	"id", "name", "email", "phone", "subscription_tier", "credit_balance",
	"premium_listing_active", "premium_expires_at", "updated_at",
}

func profileRow(balance int, active bool, expires *time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(profileCols).AddRow(
		"prov-1", "Bongani Plumbing", "b@example.com", "+27821234567", "pay_as_you_go",
		balance, active, expires, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	)
}

func TestPostgres_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectQuery("SELECT (.+) FROM providers WHERE id").WithArgs("prov-1").
		WillReturnRows(profileRow(4, false, (*time.Time)(nil)))
	p, err := repo.Get(context.Background(), "prov-1")
	require.NoError(t, err)
	assert.Equal(t, TierPayAsYouGo, p.SubscriptionTier)
	assert.Equal(t, 4, p.CreditBalance)
	assert.Nil(t, p.PremiumExpiresAt)

	mock.ExpectQuery("SELECT (.+) FROM providers WHERE id").WithArgs("nobody").WillReturnError(pgx.ErrNoRows)
	_, err = repo.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrProviderNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SpendCredits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE providers").WithArgs("prov-1", 2).
		WillReturnRows(profileRow(1, false, (*time.Time)(nil)))
	mock.ExpectExec("INSERT INTO credit_ledger").WithArgs("prov-1", EntrySpend, 2, 1, "lead-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	p, err := repo.SpendCredits(context.Background(), "prov-1", 2, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CreditBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SpendCreditsInsufficient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE providers").WithArgs("prov-1", 9).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM providers").WithArgs("prov-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	mock.ExpectRollback()

	_, err = repo.SpendCredits(context.Background(), "prov-1", 9, "lead-1")
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GrantCreditsOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entitlement_grants").WithArgs("dep-1", "prov-1", "credits").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("UPDATE providers").WithArgs("prov-1", 10).
		WillReturnRows(profileRow(10, false, (*time.Time)(nil)))
	mock.ExpectExec("INSERT INTO credit_ledger").WithArgs("prov-1", EntryTopUp, 10, 10, "dep-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	applied, p, err := repo.GrantCredits(context.Background(), "prov-1", "dep-1", 10)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 10, p.CreditBalance)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entitlement_grants").WithArgs("dep-1", "prov-1", "credits").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT (.+) FROM providers WHERE id").WithArgs("prov-1").
		WillReturnRows(profileRow(10, false, (*time.Time)(nil)))

	applied, p, err = repo.GrantCredits(context.Background(), "prov-1", "dep-1", 10)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 10, p.CreditBalance)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ApplyPremium(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)
	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entitlement_grants").WithArgs("dep-2", "prov-1", "premium").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT (.+) FOR UPDATE").WithArgs("prov-1").
		WillReturnRows(profileRow(0, false, (*time.Time)(nil)))
	mock.ExpectQuery("UPDATE providers").WithArgs("prov-1", true, &expires).
		WillReturnRows(profileRow(0, true, &expires))
	mock.ExpectCommit()

	applied, p, err := repo.ApplyPremium(context.Background(), "prov-1", "dep-2", func(p Profile) Profile {
		p.PremiumListingActive = true
		p.PremiumExpiresAt = &expires
		return p
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, p.PremiumListingActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ExpirePremiumAndLedger(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithDB(mock)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE providers").WithArgs(now).WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	n, err := repo.ExpirePremium(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mock.ExpectQuery("FROM credit_ledger").WithArgs("prov-1", 50).WillReturnRows(
		pgxmock.NewRows([]string{"id", "provider_id", "entry_type", "amount", "balance_after", "reference", "created_at"}).
			AddRow("l-1", "prov-1", EntryTopUp, 10, 10, "dep-1", now),
	)
	entries, err := repo.Ledger(context.Background(), "prov-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dep-1", entries[0].Reference)

	require.NoError(t, mock.ExpectationsWereMet())
}
