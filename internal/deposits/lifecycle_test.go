package deposits

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingDeposit() Deposit {
	return Deposit{
		ID:              "dep-1",
		ProviderID:      "prov-1",
		Purpose:         PurposeCredits,
		AmountCents:     25000,
		Credits:         5,
		ReferenceNumber: "PC234567-ABCD",
		Status:          StatusPending,
		CreatedAt:       time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestTransition(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		from    Status
		to      Status
		notes   string
		wantErr error
	}{
		{name: "approve pending", from: StatusPending, to: StatusCompleted},
		{name: "reject pending with notes", from: StatusPending, to: StatusFailed, notes: "no payment received"},
		{name: "reject without notes", from: StatusPending, to: StatusFailed, wantErr: ErrNotesRequired},
		{name: "reject blank notes", from: StatusPending, to: StatusFailed, notes: "   ", wantErr: ErrNotesRequired},
		{name: "to pending", from: StatusPending, to: StatusPending, wantErr: ErrInvalidStateTransition},
		{name: "completed to failed", from: StatusCompleted, to: StatusFailed, notes: "x", wantErr: ErrInvalidStateTransition},
		{name: "completed to completed", from: StatusCompleted, to: StatusCompleted, wantErr: ErrInvalidStateTransition},
		{name: "failed to completed", from: StatusFailed, to: StatusCompleted, wantErr: ErrInvalidStateTransition},
		{name: "failed to pending", from: StatusFailed, to: StatusPending, wantErr: ErrInvalidStateTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := pendingDeposit()
			d.Status = tt.from

			out, err := Transition(d, tt.to, at, tt.notes, "admin-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, d, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, out.Status)
			require.NotNil(t, out.ProcessedAt)
			assert.Equal(t, at, *out.ProcessedAt)
			assert.Equal(t, "admin-1", out.ProcessedBy)
			assert.Nil(t, d.ProcessedAt, "input must not be mutated")
		})
	}
}

func TestVerify(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	d := pendingDeposit()

	out, changed := Verify(d, "FNB-998877", at)
	require.True(t, changed)
	assert.True(t, out.PaymentVerified)
	require.NotNil(t, out.BankReference)
	assert.Equal(t, "FNB-998877", *out.BankReference)
	assert.Equal(t, StatusPending, out.Status)
	assert.False(t, d.PaymentVerified)

	again, changed := Verify(out, "FNB-000000", at.Add(time.Hour))
	assert.False(t, changed)
	assert.Equal(t, "FNB-998877", *again.BankReference)

	done := pendingDeposit()
	done.Status = StatusFailed
	_, changed = Verify(done, "FNB-1", at)
	assert.False(t, changed)
}

// Random action sequences never move a deposit out of a terminal status.
func TestLifecycle_StatusIsMonotonic(t *testing.T) {
	faker := gofakeit.New(7)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	targets := []Status{StatusPending, StatusCompleted, StatusFailed}

	for run := 0; run < 200; run++ {
		d := pendingDeposit()
		var terminal Status
		for step := 0; step < 12; step++ {
			at = at.Add(time.Minute)
			if faker.Bool() {
				d, _ = Verify(d, faker.LetterN(8), at)
			} else {
				to := targets[faker.IntRange(0, len(targets)-1)]
				notes := ""
				if faker.Bool() {
					notes = faker.Sentence(4)
				}
				next, err := Transition(d, to, at, notes, "admin")
				if err == nil {
					d = next
				}
			}
			if terminal != "" {
				require.Equal(t, terminal, d.Status, "run %d step %d", run, step)
			}
			if d.Status.Terminal() {
				terminal = d.Status
			}
		}
	}
}
