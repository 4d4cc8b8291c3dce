package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DomainEvent captures outbox events consumed by notification and review
// subscribers outside this service.
type DomainEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	TenantID    snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_domain_event_dedupe,priority:1"`
	ClinicID    snowflake.ID      `gorm:"not null;index"`
	EventType   string            `gorm:"type:text;not null"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex:ux_domain_event_dedupe,priority:2"`
	Published   bool              `gorm:"not null;default:false"`
	PublishedAt *time.Time        `gorm:""`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DomainEvent) TableName() string { return "domain_events" }

const (
	EventOverbookingReviewRequested = "overbooking.review_requested"
	EventOverbookingReviewed        = "overbooking.reviewed"
)

// Publisher records a domain event durably. A duplicate dedupe key is a
// silent no-op.
type Publisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}
