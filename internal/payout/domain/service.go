package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/clinova/pkg/db/pagination"
)

var (
	ErrPayoutMisconfigured  = errors.New("payout request has no bank account")
	ErrPayoutNotFound       = errors.New("payout request not found")
	ErrInvalidPayoutRequest = errors.New("payout requested event is missing required fields")
	ErrInvalidPageToken     = errors.New("invalid page token")
)

// PayoutRequestedEvent is the upstream "payment settled" occurrence that
// triggers enqueueing. It may arrive more than once for the same logical
// settlement, and may omit the fingerprint.
type PayoutRequestedEvent struct {
	TenantID       snowflake.ID
	ClinicID       snowflake.ID
	AppointmentID  snowflake.ID
	HoldID         snowflake.ID
	ProfessionalID snowflake.ID
	PatientID      snowflake.ID
	ServiceTypeID  snowflake.ID

	PaymentTransactionID string
	Provider             string
	CredentialsID        snowflake.ID
	SandboxMode          bool
	BankAccountID        *string

	BaseAmountCents int64
	NetAmountCents  *int64
	RemainderCents  int64
	Split           []Split
	Currency        string

	GatewayStatus string
	EventType     *string
	Fingerprint   *string
	PayloadID     *string
}

// Processor enqueues settlement work. Handle is idempotent per settlement:
// a duplicate fingerprint or transaction id is a logged no-op.
type Processor interface {
	Handle(ctx context.Context, event PayoutRequestedEvent) error
}

type PayoutCursor struct {
	ID          snowflake.ID
	RequestedAt time.Time
}

type ListFilter struct {
	TenantID snowflake.ID
	ClinicID snowflake.ID
	Status   string
	Cursor   *PayoutCursor
	Limit    int
}

type ListPayoutRequest struct {
	TenantID snowflake.ID
	ClinicID snowflake.ID
	Status   string
	pagination.Pagination
}

type ListPayoutResponse struct {
	Requests []PayoutRequest     `json:"payout_requests"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// Service is the read surface exposed over the API.
type Service interface {
	GetPayoutRequest(ctx context.Context, tenantID, requestID snowflake.ID) (*PayoutRequest, error)
	ListPayoutRequests(ctx context.Context, req ListPayoutRequest) (*ListPayoutResponse, error)
}

// LeaseCriteria bounds one lease attempt. Now is the single time snapshot
// used for both the selection predicate and the write-back.
type LeaseCriteria struct {
	Now         time.Time
	BatchSize   int
	MaxAttempts int
	RetryAfter  time.Duration
	StuckAfter  time.Duration
}

// SettleOutcome is the worker's per-request write-back after execution.
type SettleOutcome struct {
	Status           string
	ProviderPayoutID *string
	ProviderStatus   *string
	ProviderPayload  map[string]any
	ProcessedAt      *time.Time
	ExecutedAt       *time.Time
	LastError        *string
}

type Repository interface {
	ExistsByFingerprint(ctx context.Context, tenantID, clinicID snowflake.ID, fingerprint string) (bool, error)
	ExistsByTransaction(ctx context.Context, tenantID, clinicID snowflake.ID, transactionID string) (bool, error)
	Insert(ctx context.Context, request *PayoutRequest) error
	// Lease selects due rows with skip-locked row locking and marks them
	// processing (attempts incremented) before returning.
	Lease(ctx context.Context, criteria LeaseCriteria) ([]PayoutRequest, error)
	Settle(ctx context.Context, requestID snowflake.ID, outcome SettleOutcome) error
	FindByID(ctx context.Context, tenantID, requestID snowflake.ID) (*PayoutRequest, error)
	List(ctx context.Context, filter ListFilter) ([]*PayoutRequest, error)
}
