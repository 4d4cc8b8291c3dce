package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidHoldWindow = errors.New("hold window end must be after start")
	ErrHoldTooSoon       = errors.New("hold start does not meet the minimum advance time")
	ErrHoldTooFarAhead   = errors.New("hold start exceeds the maximum advance time")
	ErrHoldConflict      = errors.New("professional already has an overlapping hold")
	ErrResourceConflict  = errors.New("location or resources already reserved for this window")
	ErrHoldNotFound      = errors.New("hold not found")
)

type CreateHoldRequest struct {
	TenantID       snowflake.ID
	ClinicID       snowflake.ID
	ProfessionalID snowflake.ID
	PatientID      snowflake.ID
	ServiceTypeID  snowflake.ID

	Start time.Time
	End   time.Time

	LocationID *snowflake.ID
	Resources  []string

	IdempotencyKey string
	RequestedBy    string
	Metadata       map[string]any
}

type Service interface {
	// CreateHold is idempotent per (tenantID, clinicID, idempotencyKey): a
	// repeated key returns the stored hold without re-running validation.
	CreateHold(ctx context.Context, req CreateHoldRequest) (*Hold, error)
	GetHold(ctx context.Context, tenantID, holdID snowflake.ID) (*Hold, error)
}

// ResourceQuery narrows a resource-overlap lookup. Strict mode treats an
// overlapping hold with no recorded location or resources as a conflict
// rather than assuming it needs nothing.
type ResourceQuery struct {
	LocationID *snowflake.ID
	Resources  []string
	Strict     bool
}

type Repository interface {
	Insert(ctx context.Context, hold *Hold) error
	FindByID(ctx context.Context, tenantID, holdID snowflake.ID) (*Hold, error)
	// FindByIdempotencyKey returns (nil, nil) when no hold carries the key.
	FindByIdempotencyKey(ctx context.Context, tenantID, clinicID snowflake.ID, key string) (*Hold, error)
	// FindActiveOverlapsByProfessional returns confirmed holds plus pending
	// holds whose TTL has not passed at now, overlapping [start, end).
	FindActiveOverlapsByProfessional(ctx context.Context, tenantID, professionalID snowflake.ID, start, end, now time.Time) ([]Hold, error)
	FindActiveOverlapsByResources(ctx context.Context, tenantID, clinicID snowflake.ID, start, end, now time.Time, query ResourceQuery) ([]Hold, error)
}
