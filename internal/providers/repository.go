package providers

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mutation transforms a profile inside the repository's critical section.
type Mutation func(Profile) Profile

// Repository defines provider profile storage. Grant methods are idempotent on
// grantKey (a deposit id): the second call with the same key returns applied=false.
type Repository interface {
	Get(ctx context.Context, id string) (*Profile, error)
	SpendCredits(ctx context.Context, providerID string, amount int, reference string) (*Profile, error)
	GrantCredits(ctx context.Context, providerID, grantKey string, credits int) (bool, *Profile, error)
	ApplyPremium(ctx context.Context, providerID, grantKey string, fn Mutation) (bool, *Profile, error)
	ExpirePremium(ctx context.Context, now time.Time) (int, error)
	Ledger(ctx context.Context, providerID string, limit int) ([]LedgerEntry, error)
}

// InMemoryRepository keeps profiles in memory with a single lock.
type InMemoryRepository struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	grants   map[string]struct{}
	ledger   []LedgerEntry
	now      func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		profiles: make(map[string]*Profile),
		grants:   make(map[string]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Put stores a profile, replacing any existing one with the same id.
func (r *InMemoryRepository) Put(p *Profile) *Profile {
	cp := p.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.SubscriptionTier == "" {
		cp.SubscriptionTier = TierNone
	}
	r.mu.Lock()
	r.profiles[cp.ID] = cp
	r.mu.Unlock()
	return cp.Clone()
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p.Clone(), nil
}

func (r *InMemoryRepository) SpendCredits(ctx context.Context, providerID string, amount int, reference string) (*Profile, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[providerID]
	if !ok {
		return nil, ErrProviderNotFound
	}
	if p.CreditBalance < amount {
		return nil, ErrInsufficientCredits
	}
	p.CreditBalance -= amount
	p.UpdatedAt = r.now()
	r.appendLedger(p, EntrySpend, amount, reference)
	return p.Clone(), nil
}

func (r *InMemoryRepository) GrantCredits(ctx context.Context, providerID, grantKey string, credits int) (bool, *Profile, error) {
	if credits <= 0 {
		return false, nil, ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[providerID]
	if !ok {
		return false, nil, ErrProviderNotFound
	}
	if _, seen := r.grants[grantKey]; seen {
		return false, p.Clone(), nil
	}
	r.grants[grantKey] = struct{}{}
	p.CreditBalance += credits
	p.UpdatedAt = r.now()
	r.appendLedger(p, EntryTopUp, credits, grantKey)
	return true, p.Clone(), nil
}

func (r *InMemoryRepository) ApplyPremium(ctx context.Context, providerID, grantKey string, fn Mutation) (bool, *Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[providerID]
	if !ok {
		return false, nil, ErrProviderNotFound
	}
	if _, seen := r.grants[grantKey]; seen {
		return false, p.Clone(), nil
	}
	r.grants[grantKey] = struct{}{}
	next := fn(*p.Clone())
	next.ID = p.ID
	next.UpdatedAt = r.now()
	r.profiles[providerID] = next.Clone()
	return true, next.Clone(), nil
}

func (r *InMemoryRepository) ExpirePremium(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expired := 0
	for _, p := range r.profiles {
		if p.PremiumListingActive && !p.PremiumActiveAt(now) {
			p.PremiumListingActive = false
			p.UpdatedAt = now
			expired++
		}
	}
	return expired, nil
}

func (r *InMemoryRepository) Ledger(ctx context.Context, providerID string, limit int) ([]LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LedgerEntry
	for i := len(r.ledger) - 1; i >= 0; i-- {
		if r.ledger[i].ProviderID != providerID {
			continue
		}
		out = append(out, r.ledger[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return slices.Clip(out), nil
}

// appendLedger must be called with r.mu held.
func (r *InMemoryRepository) appendLedger(p *Profile, entryType string, amount int, reference string) {
	r.ledger = append(r.ledger, LedgerEntry{
		ID:           uuid.NewString(),
		ProviderID:   p.ID,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: p.CreditBalance,
		Reference:    reference,
		CreatedAt:    p.UpdatedAt,
	})
}
