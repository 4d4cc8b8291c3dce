package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultHoldTTLMinutes       = 15
	DefaultOverbookingThreshold = 70
)

type Clinic struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	Name     string       `json:"name" gorm:"type:text;not null"`

	HoldTTLMinutes         int       `json:"hold_ttl_minutes" gorm:"not null;default:15"`
	MinAdvanceMinutes      int       `json:"min_advance_minutes" gorm:"not null;default:0"`
	MaxAdvanceMinutes      *int      `json:"max_advance_minutes,omitempty"`
	AllowOverbooking       bool      `json:"allow_overbooking" gorm:"not null;default:false"`
	OverbookingThreshold   *int      `json:"overbooking_threshold,omitempty"`
	ResourceMatchingStrict bool      `json:"resource_matching_strict" gorm:"not null;default:false"`
	CreatedAt              time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Clinic) TableName() string { return "clinics" }

// HoldSettings is the admission policy view of a clinic row with defaults
// applied.
type HoldSettings struct {
	TTLMinutes             int
	MinAdvanceMinutes      int
	MaxAdvanceMinutes      *int
	AllowOverbooking       bool
	OverbookingThreshold   int
	ResourceMatchingStrict bool
}

func (c Clinic) HoldSettings() HoldSettings {
	settings := HoldSettings{
		TTLMinutes:             c.HoldTTLMinutes,
		MinAdvanceMinutes:      c.MinAdvanceMinutes,
		MaxAdvanceMinutes:      c.MaxAdvanceMinutes,
		AllowOverbooking:       c.AllowOverbooking,
		OverbookingThreshold:   DefaultOverbookingThreshold,
		ResourceMatchingStrict: c.ResourceMatchingStrict,
	}
	if settings.TTLMinutes <= 0 {
		settings.TTLMinutes = DefaultHoldTTLMinutes
	}
	if c.OverbookingThreshold != nil && *c.OverbookingThreshold > 0 {
		settings.OverbookingThreshold = *c.OverbookingThreshold
	}
	return settings
}

type ServiceType struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID          snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	ClinicID          snowflake.ID `json:"clinic_id" gorm:"not null;index"`
	Name              string       `json:"name" gorm:"type:text;not null"`
	DurationMinutes   int          `json:"duration_minutes" gorm:"not null;default:30"`
	MinAdvanceMinutes int          `json:"min_advance_minutes" gorm:"not null;default:0"`
	MaxAdvanceMinutes *int         `json:"max_advance_minutes,omitempty"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ServiceType) TableName() string { return "clinic_service_types" }
