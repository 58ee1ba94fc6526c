package events

import "time"

// DepositCreatedV1 is emitted when a provider opens a deposit request.
type DepositCreatedV1 struct {
	DepositID       string    `json:"deposit_id"`
	ProviderID      string    `json:"provider_id"`
	Purpose         string    `json:"purpose"`
	AmountCents     int64     `json:"amount_cents"`
	Credits         int       `json:"credits,omitempty"`
	PlanType        string    `json:"plan_type,omitempty"`
	ReferenceNumber string    `json:"reference_number"`
	CreatedAt       time.Time `json:"created_at"`
}

func (DepositCreatedV1) EventType() string { return "deposit.created.v1" }

// DepositVerifiedV1 is emitted when a bank transaction matches a pending deposit.
type DepositVerifiedV1 struct {
	DepositID       string    `json:"deposit_id"`
	ProviderID      string    `json:"provider_id"`
	ReferenceNumber string    `json:"reference_number"`
	BankReference   string    `json:"bank_reference"`
	AmountCents     int64     `json:"amount_cents"`
	VerifiedAt      time.Time `json:"verified_at"`
}

func (DepositVerifiedV1) EventType() string { return "deposit.verified.v1" }

// DepositCompletedV1 is emitted after approval commits.
type DepositCompletedV1 struct {
	DepositID       string     `json:"deposit_id"`
	ProviderID      string     `json:"provider_id"`
	Purpose         string     `json:"purpose"`
	AmountCents     int64      `json:"amount_cents"`
	Credits         int        `json:"credits,omitempty"`
	PlanType        string     `json:"plan_type,omitempty"`
	ReferenceNumber string     `json:"reference_number"`
	ProcessedAt     time.Time  `json:"processed_at"`
	ProcessedBy     string     `json:"processed_by"`
	PremiumExpires  *time.Time `json:"premium_expires_at,omitempty"`
	CreditBalance   *int       `json:"credit_balance,omitempty"`
}

func (DepositCompletedV1) EventType() string { return "deposit.completed.v1" }

// DepositRejectedV1 is emitted after a rejection commits.
type DepositRejectedV1 struct {
	DepositID       string    `json:"deposit_id"`
	ProviderID      string    `json:"provider_id"`
	ReferenceNumber string    `json:"reference_number"`
	AmountCents     int64     `json:"amount_cents"`
	Reason          string    `json:"reason"`
	ProcessedAt     time.Time `json:"processed_at"`
	ProcessedBy     string    `json:"processed_by"`
}

func (DepositRejectedV1) EventType() string { return "deposit.rejected.v1" }
