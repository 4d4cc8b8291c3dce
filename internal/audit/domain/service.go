package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinova/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditLog struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID      `json:"tenant_id" gorm:"not null;index"`
	ClinicID  snowflake.ID      `json:"clinic_id" gorm:"not null;index"`
	ActorType string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID   *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Event     string            `json:"event" gorm:"type:text;not null"`
	Detail    datatypes.JSONMap `json:"detail" gorm:"type:jsonb;not null"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	TenantID  snowflake.ID
	ClinicID  snowflake.ID
	Event     string
	ActorType string
	StartAt   *time.Time
	EndAt     *time.Time
	Cursor    *AuditCursor
	Limit     int
}

type ListAuditLogRequest struct {
	pagination.Pagination
	TenantID  snowflake.ID
	ClinicID  snowflake.ID
	Event     string
	ActorType string
	StartAt   *time.Time
	EndAt     *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Service is the audit sink used by the hold and payout flows. Register is
// fire-and-forget from the caller's perspective: failures are logged and must
// never roll back core state.
type Service interface {
	Register(ctx context.Context, event string, tenantID, clinicID snowflake.ID, detail map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

const (
	ActorTypeSystem = "system"
	ActorTypeUser   = "user"
)

var (
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
