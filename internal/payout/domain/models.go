package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// SplitRecipientClinic marks the clinic's own allocation inside a split.
const SplitRecipientClinic = "clinic"

// ProviderStatusZeroAmount is recorded when settlement is skipped because
// the computed amount was zero or negative.
const ProviderStatusZeroAmount = "ignored_zero_amount"

// Split is one recipient allocation of a settled payment.
type Split struct {
	Recipient   string  `json:"recipient"`
	Percentage  float64 `json:"percentage"`
	AmountCents int64   `json:"amount_cents"`
}

// PayoutRequest is a durable unit of settlement work. Rows move
// pending -> processing -> completed/failed; failed rows are re-leased
// until attempts reaches the worker's limit, and rows stuck in processing
// are re-leased regardless of attempts.
type PayoutRequest struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID       snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	ClinicID       snowflake.ID `json:"clinic_id" gorm:"not null;index"`
	AppointmentID  snowflake.ID `json:"appointment_id" gorm:"not null"`
	HoldID         snowflake.ID `json:"hold_id" gorm:"not null"`
	ProfessionalID snowflake.ID `json:"professional_id" gorm:"not null"`
	PatientID      snowflake.ID `json:"patient_id" gorm:"not null"`
	ServiceTypeID  snowflake.ID `json:"service_type_id" gorm:"not null"`

	PaymentTransactionID string       `json:"payment_transaction_id" gorm:"type:varchar(128);not null;index"`
	Provider             string       `json:"provider" gorm:"type:varchar(40);not null"`
	CredentialsID        snowflake.ID `json:"credentials_id" gorm:"not null"`
	SandboxMode          bool         `json:"sandbox_mode" gorm:"not null;default:false"`
	BankAccountID        *string      `json:"bank_account_id,omitempty" gorm:"type:varchar(128)"`

	BaseAmountCents int64                      `json:"base_amount_cents" gorm:"not null"`
	NetAmountCents  *int64                     `json:"net_amount_cents,omitempty"`
	RemainderCents  int64                      `json:"remainder_cents" gorm:"not null;default:0"`
	Split           datatypes.JSONSlice[Split] `json:"split,omitempty"`
	Currency        string                     `json:"currency" gorm:"type:varchar(3);not null"`

	GatewayStatus string  `json:"gateway_status" gorm:"type:varchar(40);not null"`
	EventType     *string `json:"event_type,omitempty" gorm:"type:varchar(64)"`
	Fingerprint   *string `json:"fingerprint,omitempty" gorm:"type:varchar(128)"`
	PayloadID     *string `json:"payload_id,omitempty" gorm:"type:varchar(128)"`

	Status    string  `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Attempts  int     `json:"attempts" gorm:"not null;default:0"`
	LastError *string `json:"last_error,omitempty" gorm:"type:varchar(255)"`

	RequestedAt     time.Time  `json:"requested_at" gorm:"not null;index"`
	LastAttemptedAt *time.Time `json:"last_attempted_at,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`

	ProviderPayoutID *string           `json:"provider_payout_id,omitempty" gorm:"type:varchar(128)"`
	ProviderStatus   *string           `json:"provider_status,omitempty" gorm:"type:varchar(40)"`
	ProviderPayload  datatypes.JSONMap `json:"provider_payload,omitempty"`
	ExecutedAt       *time.Time        `json:"executed_at,omitempty"`
}

func (PayoutRequest) TableName() string { return "payout_requests" }

// SettlementAmountCents picks the amount to transfer: the clinic's split
// allocation when positive, then the net amount, then base minus any
// positive remainder, then the base amount itself.
func (p PayoutRequest) SettlementAmountCents() int64 {
	for _, split := range p.Split {
		if split.Recipient == SplitRecipientClinic && split.AmountCents > 0 {
			return split.AmountCents
		}
	}
	if p.NetAmountCents != nil && *p.NetAmountCents > 0 {
		return *p.NetAmountCents
	}
	remainder := p.RemainderCents
	if remainder < 0 {
		remainder = 0
	}
	if net := p.BaseAmountCents - remainder; net > 0 {
		return net
	}
	return p.BaseAmountCents
}
