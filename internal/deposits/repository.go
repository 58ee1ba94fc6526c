package deposits

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository persists deposits. Transition and MarkVerified are
// compare-and-set operations guarded on the pending status.
type Repository interface {
	// Create returns ErrDuplicateReference if the reference is taken.
	Create(ctx context.Context, d *Deposit) error
	Get(ctx context.Context, id string) (*Deposit, error)
	GetByReference(ctx context.Context, reference string) (*Deposit, error)
	LatestForProvider(ctx context.Context, providerID string) (*Deposit, error)
	// MarkVerified reports false when the deposit is not pending or already verified.
	MarkVerified(ctx context.Context, id, bankReference string, at time.Time) (*Deposit, bool, error)
	// Transition returns ErrConflict when the deposit left pending before the write.
	Transition(ctx context.Context, id string, to Status, at time.Time, notes, actor string) (*Deposit, error)
	MarkEntitlementApplied(ctx context.Context, id string, at time.Time) error
	// ListUnapplied returns completed deposits whose entitlement was never recorded.
	ListUnapplied(ctx context.Context, limit int) ([]*Deposit, error)
	SetProofObjectKey(ctx context.Context, id, key string) error
}

// InMemoryRepository keeps deposits in memory. Used in development and tests.
type InMemoryRepository struct {
	mu          sync.Mutex
	deposits    map[string]*Deposit
	byReference map[string]string
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		deposits:    make(map[string]*Deposit),
		byReference: make(map[string]string),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, d *Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := NormalizeReference(d.ReferenceNumber)
	if _, taken := r.byReference[ref]; taken {
		return ErrDuplicateReference
	}
	cp := d.Clone()
	cp.ReferenceNumber = ref
	r.deposits[cp.ID] = cp
	r.byReference[ref] = cp.ID
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deposits[id]
	if !ok {
		return nil, ErrDepositNotFound
	}
	return d.Clone(), nil
}

func (r *InMemoryRepository) GetByReference(ctx context.Context, reference string) (*Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byReference[NormalizeReference(reference)]
	if !ok {
		return nil, ErrDepositNotFound
	}
	return r.deposits[id].Clone(), nil
}

func (r *InMemoryRepository) LatestForProvider(ctx context.Context, providerID string) (*Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *Deposit
	for _, d := range r.deposits {
		if d.ProviderID != providerID {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, ErrDepositNotFound
	}
	return latest.Clone(), nil
}

func (r *InMemoryRepository) MarkVerified(ctx context.Context, id, bankReference string, at time.Time) (*Deposit, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deposits[id]
	if !ok {
		return nil, false, ErrDepositNotFound
	}
	next, changed := Verify(*d, bankReference, at)
	if !changed {
		return d.Clone(), false, nil
	}
	r.deposits[id] = next.Clone()
	return next.Clone(), true, nil
}

func (r *InMemoryRepository) Transition(ctx context.Context, id string, to Status, at time.Time, notes, actor string) (*Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deposits[id]
	if !ok {
		return nil, ErrDepositNotFound
	}
	if d.Status != StatusPending {
		return nil, ErrConflict
	}
	next, err := Transition(*d, to, at, notes, actor)
	if err != nil {
		return nil, err
	}
	r.deposits[id] = next.Clone()
	return next.Clone(), nil
}

func (r *InMemoryRepository) MarkEntitlementApplied(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deposits[id]
	if !ok {
		return ErrDepositNotFound
	}
	if d.EntitlementAppliedAt == nil {
		applied := at
		d.EntitlementAppliedAt = &applied
	}
	return nil
}

func (r *InMemoryRepository) ListUnapplied(ctx context.Context, limit int) ([]*Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Deposit
	for _, d := range r.deposits {
		if d.Status == StatusCompleted && d.EntitlementAppliedAt == nil {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) SetProofObjectKey(ctx context.Context, id, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deposits[id]
	if !ok {
		return ErrDepositNotFound
	}
	k := key
	d.ProofObjectKey = &k
	return nil
}
