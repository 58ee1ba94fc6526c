package leads

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	GetByID(ctx context.Context, id string) (*Lead, error)
	// Claim takes one slot for providerID, guarded by capacity.
	Claim(ctx context.Context, leadID, providerID string) (*Lead, error)
	// Release gives a slot back, used when a paid unlock fails after claiming.
	Release(ctx context.Context, leadID, providerID string) error
	RecordView(ctx context.Context, leadID string) error
}

// InMemoryRepository keeps leads in a map. Used in development and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

// Put stores a lead, assigning an ID and timestamp when missing.
func (r *InMemoryRepository) Put(lead *Lead) *Lead {
	cp := lead.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.leads[cp.ID] = cp
	r.mu.Unlock()
	return cp.Clone()
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return lead.Clone(), nil
}

func (r *InMemoryRepository) Claim(ctx context.Context, leadID, providerID string) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[leadID]
	if !ok {
		return nil, ErrLeadNotFound
	}
	if lead.HasClaim(providerID) {
		return nil, ErrAlreadyClaimed
	}
	if lead.IsFull() {
		return nil, ErrLeadFull
	}
	lead.ClaimedBy = append(lead.ClaimedBy, providerID)
	lead.AssignedCount++
	return lead.Clone(), nil
}

func (r *InMemoryRepository) Release(ctx context.Context, leadID, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[leadID]
	if !ok {
		return ErrLeadNotFound
	}
	idx := slices.Index(lead.ClaimedBy, providerID)
	if idx < 0 {
		return ErrClaimNotFound
	}
	lead.ClaimedBy = slices.Delete(lead.ClaimedBy, idx, idx+1)
	if lead.AssignedCount > 0 {
		lead.AssignedCount--
	}
	return nil
}

func (r *InMemoryRepository) RecordView(ctx context.Context, leadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[leadID]
	if !ok {
		return ErrLeadNotFound
	}
	lead.ViewsCount++
	return nil
}
