package events

import (
	"context"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("bank_feed", "txn").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := store.AlreadyProcessed(context.Background(), "bank_feed", "txn")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("bank_feed", "txn-miss").WillReturnError(pgx.ErrNoRows)
	processed, err = store.AlreadyProcessed(context.Background(), "bank_feed", "txn-miss")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("bank_feed", "txn-new").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.MarkProcessed(context.Background(), "bank_feed", "txn-new")
	if err != nil || !ok {
		t.Fatalf("expected mark processed success, got %v %v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMemoryProcessedStore(t *testing.T) {
	store := NewMemoryProcessedStore()
	ctx := context.Background()

	if seen, _ := store.AlreadyProcessed(ctx, "bank_feed", "txn-1"); seen {
		t.Fatal("expected unseen event")
	}
	if ok, _ := store.MarkProcessed(ctx, "bank_feed", "txn-1"); !ok {
		t.Fatal("expected first mark to succeed")
	}
	if ok, _ := store.MarkProcessed(ctx, "bank_feed", "txn-1"); ok {
		t.Fatal("expected duplicate mark to report false")
	}
	if seen, _ := store.AlreadyProcessed(ctx, "webhook", "txn-1"); seen {
		t.Fatal("sources must not share ids")
	}
}
