package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// MetadataOverbookingKey is where the admission evaluation lands inside a
// hold's metadata document.
const MetadataOverbookingKey = "overbooking"

// Hold is a provisional reservation of a professional's time, optionally
// pinned to a location and physical resources. It expires at TTLExpiresAt
// unless confirmed first; confirmation and the expiry sweep live outside
// this service.
type Hold struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID       snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	ClinicID       snowflake.ID `json:"clinic_id" gorm:"not null;index"`
	ProfessionalID snowflake.ID `json:"professional_id" gorm:"not null;index"`
	PatientID      snowflake.ID `json:"patient_id" gorm:"not null"`
	ServiceTypeID  snowflake.ID `json:"service_type_id" gorm:"not null"`

	StartAt      time.Time `json:"start_at" gorm:"not null"`
	EndAt        time.Time `json:"end_at" gorm:"not null"`
	TTLExpiresAt time.Time `json:"ttl_expires_at" gorm:"not null"`

	Status         string                      `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	IdempotencyKey string                      `json:"idempotency_key" gorm:"type:varchar(128);not null;uniqueIndex:idx_holds_idempotency,composite:tenant_id,clinic_id"`
	LocationID     *snowflake.ID               `json:"location_id,omitempty"`
	Resources      datatypes.JSONSlice[string] `json:"resources,omitempty"`
	Metadata       datatypes.JSONMap           `json:"metadata,omitempty"`

	CreatedBy    string     `json:"created_by" gorm:"type:varchar(64);not null"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	ConfirmedBy  *string    `json:"confirmed_by,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	CancelledBy  *string    `json:"cancelled_by,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason *string    `json:"cancel_reason,omitempty"`
}

func (Hold) TableName() string { return "holds" }

// Active reports whether the hold still blocks the professional's window at
// the given instant. Pending holds stop counting once their TTL has passed,
// even before the expiry sweep flips their status.
func (h Hold) Active(now time.Time) bool {
	switch h.Status {
	case StatusConfirmed:
		return true
	case StatusPending:
		return h.TTLExpiresAt.After(now)
	default:
		return false
	}
}
