package leads

import (
	"slices"
	"time"
)

// Lead is a client service request that providers can claim.
type Lead struct {
	ID                string    `json:"id"`
	Category          string    `json:"category"`
	Location          string    `json:"location"`
	BudgetMin         int64     `json:"budget_min"`
	BudgetMax         int64     `json:"budget_max"`
	Urgency           string    `json:"urgency"`
	VerificationScore int       `json:"verification_score"`
	MaxProviders      int       `json:"max_providers"`
	AssignedCount     int       `json:"assigned_count"`
	ViewsCount        int       `json:"views_count"`
	ResponsesCount    int       `json:"responses_count"`
	ClaimedBy         []string  `json:"-"`
	ContactName       string    `json:"contact_name"`
	ContactPhone      string    `json:"contact_phone"`
	ContactEmail      string    `json:"contact_email"`
	CreatedAt         time.Time `json:"created_at"`
}

// IsFull reports whether every claim slot is taken.
func (l *Lead) IsFull() bool {
	return l.MaxProviders > 0 && l.AssignedCount >= l.MaxProviders
}

// HasClaim reports whether providerID already claimed the lead.
func (l *Lead) HasClaim(providerID string) bool {
	return providerID != "" && slices.Contains(l.ClaimedBy, providerID)
}

// SlotsRemaining never goes below zero.
func (l *Lead) SlotsRemaining() int {
	if remaining := l.MaxProviders - l.AssignedCount; remaining > 0 {
		return remaining
	}
	return 0
}

// Clone returns a deep copy so callers cannot mutate repository state.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	cp := *l
	cp.ClaimedBy = slices.Clone(l.ClaimedBy)
	return &cp
}
